package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"metalwatch/internal/alerting"
	"metalwatch/internal/config"
	"metalwatch/internal/fetcher"
	"metalwatch/internal/scheduler"
	"metalwatch/internal/server"
	"metalwatch/internal/service"
	"metalwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newQuoteFetcher() fetcher.QuoteFetcher {
	return fetcher.NewStooq(fetcher.StooqOptions{
		URL:       a.Config.Source.URL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newCryptoFetcher() fetcher.CryptoFetcher {
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL: a.Config.Crypto.BaseURL,
		TopN:    a.Config.Crypto.TopN,
		Timeout: a.Config.Crypto.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Resend
	return alerting.NewResendNotifier(cfg.APIKey, cfg.From, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Serve runs the HTTP API with the background ingestion loop.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var snapshots storage.SnapshotStore
	var alerts storage.AlertStore
	if store != nil {
		snapshots = store
		alerts = store
	}

	sched := scheduler.New(scheduler.Options{
		Interval:  a.Config.Scheduler.Interval,
		Immediate: a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	notifier := a.newNotifier()
	evaluator := alerting.NewEvaluator(alerts, notifier, a.Config.Alerting.Debounce, a.Logger)
	ingestor := service.NewIngestor(a.newQuoteFetcher(), snapshots, evaluator, sched, a.Logger)

	srv := server.New(server.Options{
		Addr:            a.Config.Server.Addr,
		CacheTTL:        a.Config.Server.CacheTTL,
		SparklinePoints: a.Config.Server.SparklinePoints,
		RollupDays:      a.Config.Server.RollupDays,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		MetalsSource:    a.Config.Source.Attribution,
		CryptoSource:    a.Config.Crypto.Attribution,
		Debug:           a.Config.App.Environment == "development",
	}, snapshots, alerts, a.newCryptoFetcher(), ingestor, evaluator, a.newAuthorizer(), notifier, a.Logger)

	a.Logger.Info().Msg("starting metalwatch service")
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("metalwatch service stopped")
	return nil
}

// newAuthorizer returns the identity collaborator. Session and billing state
// live in a hosted service; without an endpoint configured every session
// resolves to no user and alert creation is rejected with the plan error.
func (a *App) newAuthorizer() server.Authorizer {
	if a.Config.Auth.BaseURL == "" {
		return denyAllAuthorizer{}
	}
	return server.NewHTTPAuthorizer(a.Config.Auth.BaseURL, a.Config.Auth.RequestTimeout)
}

type denyAllAuthorizer struct{}

func (denyAllAuthorizer) Resolve(ctx context.Context, token string) (*server.User, error) {
	return nil, nil
}

// ExportOptions hold parameters for exporting historical snapshots.
type ExportOptions struct {
	Code      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
