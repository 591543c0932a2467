package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"metalwatch/internal/alerting"
	"metalwatch/internal/fetcher"
	"metalwatch/internal/storage"
)

// Ingester is the slice of the ingestion service the HTTP layer drives.
type Ingester interface {
	Start(ctx context.Context)
	BestEffortIngest(ctx context.Context) map[string]float64
}

// Evaluator runs one alert pass for a fresh price set.
type Evaluator interface {
	Evaluate(ctx context.Context, prices map[string]float64)
}

// Options wire the HTTP API's collaborators and tuning knobs.
type Options struct {
	Addr            string
	CacheTTL        time.Duration
	SparklinePoints int
	RollupDays      int
	ShutdownTimeout time.Duration
	MetalsSource    string
	CryptoSource    string
	Debug           bool
}

// Server exposes the dashboard payload, history queries, and alert creation.
type Server struct {
	opts      Options
	cache     *PayloadCache
	snapshots storage.SnapshotStore
	alerts    storage.AlertStore
	crypto    fetcher.CryptoFetcher
	ingester  Ingester
	evaluator Evaluator
	auth      Authorizer
	notifier  alerting.Notifier
	logger    zerolog.Logger
	engine    *gin.Engine
	now       func() time.Time
}

// New constructs the HTTP server.
func New(opts Options, snapshots storage.SnapshotStore, alerts storage.AlertStore, crypto fetcher.CryptoFetcher, ingester Ingester, evaluator Evaluator, auth Authorizer, notifier alerting.Notifier, logger zerolog.Logger) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.SparklinePoints <= 0 {
		opts.SparklinePoints = 20
	}
	if opts.RollupDays <= 0 {
		opts.RollupDays = 7
	}

	s := &Server{
		opts:      opts,
		cache:     NewPayloadCache(opts.CacheTTL),
		snapshots: snapshots,
		alerts:    alerts,
		crypto:    crypto,
		ingester:  ingester,
		evaluator: evaluator,
		auth:      auth,
		notifier:  notifier,
		logger:    logger.With().Str("component", "http_server").Logger(),
		now:       time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	api := engine.Group("/api")
	api.GET("/prices", s.handlePrices)
	api.GET("/metal-history", s.handleHistory)
	api.POST("/alerts", s.handleCreateAlert)

	s.engine = engine
	return s
}

// WithClock overrides the server's time source (cache included).
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	s.cache.WithClock(now)
	return s
}

// Handler exposes the underlying engine, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. The
// background ingestion loop is started here as well.
func (s *Server) Run(ctx context.Context) error {
	if s.ingester != nil {
		s.ingester.Start(ctx)
	}

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}
