package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metalwatch/internal/fetcher"
	"metalwatch/internal/scheduler"
	"metalwatch/internal/storage"
)

// Evaluator runs one alert pass for a fresh price set.
type Evaluator interface {
	Evaluate(ctx context.Context, prices map[string]float64)
}

// Ingestor orchestrates one ingestion cycle: fetch the source page, persist
// the parsed prices as an atomic batch, and run the alert pass. It owns its
// scheduler so independent instances can run side by side in tests.
type Ingestor struct {
	quotes    fetcher.QuoteFetcher
	store     storage.SnapshotStore
	evaluator Evaluator
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	now       func() time.Time

	startOnce sync.Once
}

// NewIngestor constructs the ingestion service.
func NewIngestor(quotes fetcher.QuoteFetcher, store storage.SnapshotStore, evaluator Evaluator, sched *scheduler.Scheduler, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		quotes:    quotes,
		store:     store,
		evaluator: evaluator,
		scheduler: sched,
		logger:    logger.With().Str("component", "ingestor").Logger(),
		now:       time.Now,
	}
}

// WithClock overrides the ingestor's time source.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

// Start launches the background ingestion loop. Repeated calls are no-ops;
// the loop runs until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) {
	i.startOnce.Do(func() {
		if i.scheduler == nil {
			i.logger.Warn().Msg("no scheduler configured; background ingestion disabled")
			return
		}
		go func() {
			if err := i.scheduler.Run(ctx, i.Cycle); err != nil && ctx.Err() == nil {
				i.logger.Error().Err(err).Msg("ingestion loop terminated")
			}
		}()
		i.logger.Info().Msg("background ingestion started")
	})
}

// Cycle performs one ingestion pass. An empty parse is a valid no-data cycle,
// not an error.
func (i *Ingestor) Cycle(ctx context.Context) error {
	prices, err := i.quotes.FetchQuotes(ctx)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		i.logger.Debug().Msg("no recognised quotes this cycle")
		return nil
	}

	batch := storage.NewIngestionBatch(prices, i.now())
	if i.store != nil {
		if err := i.store.InsertBatch(ctx, batch); err != nil {
			return err
		}
	}

	if i.evaluator != nil {
		i.evaluator.Evaluate(ctx, prices)
	}

	i.logger.Info().Int("codes", len(prices)).Int64("ts", batch.TS).Msg("ingestion cycle complete")
	return nil
}

// BestEffortIngest runs one request-triggered cycle, swallowing fetch and
// store failures, and returns whatever prices were parsed. A request arriving
// between scheduler ticks still gets a fresh attempt.
func (i *Ingestor) BestEffortIngest(ctx context.Context) map[string]float64 {
	prices, err := i.quotes.FetchQuotes(ctx)
	if err != nil {
		i.logger.Warn().Err(err).Msg("request-triggered fetch failed")
		return nil
	}
	if len(prices) == 0 {
		return nil
	}

	batch := storage.NewIngestionBatch(prices, i.now())
	if i.store != nil {
		if err := i.store.InsertBatch(ctx, batch); err != nil {
			i.logger.Warn().Err(err).Msg("request-triggered batch write failed")
		}
	}
	return prices
}
