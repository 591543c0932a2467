package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval  time.Duration
	Immediate bool
}

// Scheduler drives repeated execution of the ingestion cycle. Tick errors are
// logged and absorbed; a missed cycle is acceptable, a dead loop is not.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function until ctx is cancelled. With
// Options.Immediate the first tick fires before the first interval elapses.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.Immediate {
		s.fire(ctx, tick)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx, tick)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug().Msg("executing scheduled tick")
	if err := tick(ctx); err != nil {
		s.logger.Error().Err(err).Msg("tick execution failed")
	}
}
