package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"metalwatch/internal/alerting"
	"metalwatch/internal/metals"
	"metalwatch/internal/storage"
)

const dayMillis = 24 * 60 * 60 * 1000

// handlePrices serves the dashboard payload, returning the cached copy while
// fresh and rebuilding it otherwise.
func (s *Server) handlePrices(c *gin.Context) {
	if payload, ok := s.cache.Get(); ok {
		c.JSON(http.StatusOK, payload)
		return
	}

	ctx := c.Request.Context()

	cryptoQuotes, err := s.crypto.FetchMarkets(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("crypto feed unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "crypto feed unavailable"})
		return
	}

	var prices map[string]float64
	if s.ingester != nil {
		prices = s.ingester.BestEffortIngest(ctx)
	}

	now := s.now()
	entries := make([]MetalEntry, 0, len(metals.List))
	for _, item := range metals.List {
		entry := MetalEntry{
			Name:        item.Name,
			Code:        item.Code,
			Status:      StatusSourcePending,
			Sparkline1d: []float64{},
			Sparkline7d: []float64{},
		}

		if s.snapshots != nil {
			if history, err := s.snapshots.ListSince(ctx, item.Code, now.UnixMilli()-dayMillis); err != nil {
				s.logger.Warn().Err(err).Str("code", item.Code).Msg("failed to load 1d history")
			} else {
				entry.Sparkline1d = tailPrices(history, s.opts.SparklinePoints)
			}

			if rollups, err := s.snapshots.ListRecentDaily(ctx, item.Code, s.opts.RollupDays); err != nil {
				s.logger.Warn().Err(err).Str("code", item.Code).Msg("failed to load 7d history")
			} else {
				entry.Sparkline7d = reversedPrices(rollups)
			}
		}

		if price, ok := prices[item.Code]; ok {
			p := price
			entry.PriceUSD = &p
			entry.Status = StatusOK
		}
		entries = append(entries, entry)
	}

	if s.evaluator != nil {
		s.evaluator.Evaluate(ctx, prices)
	}

	payload := &Payload{
		UpdatedAt: now.UTC().Format(time.RFC3339),
		Metals:    entries,
		Crypto:    cryptoQuotes,
		Sources: Sources{
			Metals: s.opts.MetalsSource,
			Crypto: s.opts.CryptoSource,
		},
	}

	s.cache.Put(payload)
	c.JSON(http.StatusOK, payload)
}

// handleHistory answers the detail view's series query for one code.
func (s *Server) handleHistory(c *gin.Context) {
	code := strings.ToUpper(c.Query("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	rangeSel := strings.ToLower(c.DefaultQuery("range", "1d"))

	ctx := c.Request.Context()

	if s.snapshots == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	if rangeSel == "7d" {
		rollups, err := s.snapshots.ListRecentDaily(ctx, code, s.opts.RollupDays)
		if err != nil {
			s.logger.Error().Err(err).Str("code", code).Msg("history query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		series := make([]HistoryPoint, 0, len(rollups))
		for i := len(rollups) - 1; i >= 0; i-- {
			series = append(series, HistoryPoint{
				PriceUSD: rollups[i].PriceUSD,
				TS:       rollups[i].Day.UnixMilli(),
				Volume:   1,
			})
		}
		c.JSON(http.StatusOK, HistoryResponse{Code: code, Series: series})
		return
	}

	since := s.now().UnixMilli() - dayMillis
	snapshots, err := s.snapshots.ListSince(ctx, code, since)
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	series := make([]HistoryPoint, 0, len(snapshots))
	for _, snap := range snapshots {
		series = append(series, HistoryPoint{PriceUSD: snap.PriceUSD, TS: snap.TS, Volume: 1})
	}
	c.JSON(http.StatusOK, HistoryResponse{Code: code, Series: series})
}

type createAlertRequest struct {
	Code      string   `json:"code"`
	Condition string   `json:"condition"`
	Threshold *float64 `json:"threshold"`
	Email     string   `json:"email"`
}

// handleCreateAlert registers a price alert for an active-plan user.
func (s *Server) handleCreateAlert(c *gin.Context) {
	ctx := c.Request.Context()

	token, _ := c.Cookie("session")
	var user *User
	if s.auth != nil && token != "" {
		resolved, err := s.auth.Resolve(ctx, token)
		if err != nil {
			s.logger.Warn().Err(err).Msg("session resolution failed")
		} else {
			user = resolved
		}
	}
	if user == nil || !user.PlanActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "pro required"})
		return
	}

	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}
	if req.Code == "" || req.Condition == "" || req.Threshold == nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}
	if req.Condition != alerting.ConditionAbove && req.Condition != alerting.ConditionBelow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}

	if s.alerts == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	alert := storage.AlertDefinition{
		UserID:    user.ID,
		Code:      strings.ToUpper(req.Code),
		Condition: req.Condition,
		Threshold: *req.Threshold,
		Email:     req.Email,
		CreatedAt: s.now().UnixMilli(),
	}

	created, err := s.alerts.CreateAlert(ctx, alert)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create alert")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	if s.notifier != nil {
		note := alerting.Notification{
			To:      created.Email,
			Subject: "Alert created",
			Body:    fmt.Sprintf("<p>Alert created for %s %s %v.</p>", created.Code, created.Condition, created.Threshold),
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Warn().Err(err).Int64("alert_id", created.ID).Msg("confirmation email failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func tailPrices(snapshots []storage.PriceSnapshot, max int) []float64 {
	start := 0
	if len(snapshots) > max {
		start = len(snapshots) - max
	}
	prices := make([]float64, 0, len(snapshots)-start)
	for _, snap := range snapshots[start:] {
		prices = append(prices, snap.PriceUSD)
	}
	return prices
}

func reversedPrices(rollups []storage.DailyRollup) []float64 {
	prices := make([]float64, 0, len(rollups))
	for i := len(rollups) - 1; i >= 0; i-- {
		prices = append(prices, rollups[i].PriceUSD)
	}
	return prices
}
