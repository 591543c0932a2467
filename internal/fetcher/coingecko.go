package fetcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const sparklineCap = 20

// CoinGeckoOptions parameterise the market feed fetcher.
type CoinGeckoOptions struct {
	BaseURL string
	TopN    int
	Timeout time.Duration
}

// CoinGecko fetches a top-N-by-volume market listing.
type CoinGecko struct {
	opts   CoinGeckoOptions
	logger zerolog.Logger
	client *resty.Client
}

type coinGeckoMarket struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	TotalVolume   float64 `json:"total_volume"`
	SparklineIn7d *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

// NewCoinGecko constructs a market feed fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	opts.TopN = topN

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &CoinGecko{
		opts:   opts,
		logger: logger.With().Str("component", "coingecko_fetcher").Logger(),
		client: client,
	}
}

// FetchMarkets retrieves and reshapes the market listing. Unlike the metal
// source, any failure here is a hard error for the caller.
func (c *CoinGecko) FetchMarkets(ctx context.Context) ([]CryptoQuote, error) {
	var markets []coinGeckoMarket

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"order":       "volume_desc",
			"per_page":    strconv.Itoa(c.opts.TopN),
			"page":        "1",
			"sparkline":   "true",
		}).
		SetResult(&markets).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("fetch crypto markets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("crypto feed returned status %d", resp.StatusCode())
	}

	quotes := make([]CryptoQuote, 0, len(markets))
	for _, m := range markets {
		sparkline := []float64{}
		if m.SparklineIn7d != nil && len(m.SparklineIn7d.Price) > 0 {
			sparkline = tailPoints(m.SparklineIn7d.Price, sparklineCap)
		}
		quotes = append(quotes, CryptoQuote{
			ID:        m.ID,
			Symbol:    strings.ToUpper(m.Symbol),
			Name:      m.Name,
			PriceUSD:  m.CurrentPrice,
			Volume24h: m.TotalVolume,
			Sparkline: sparkline,
		})
	}

	c.logger.Debug().Int("markets", len(quotes)).Msg("crypto markets fetched")
	return quotes, nil
}

func tailPoints(points []float64, max int) []float64 {
	if len(points) <= max {
		out := make([]float64, len(points))
		copy(out, points)
		return out
	}
	out := make([]float64, max)
	copy(out, points[len(points)-max:])
	return out
}

var _ CryptoFetcher = (*CoinGecko)(nil)
