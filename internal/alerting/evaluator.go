package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metalwatch/internal/storage"
)

// Alert condition keywords.
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// Evaluator scans alert definitions against freshly ingested prices and
// dispatches notifications with a rolling debounce window per alert.
type Evaluator struct {
	store    storage.AlertStore
	notifier Notifier
	debounce time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvaluator constructs an alert evaluator.
func NewEvaluator(store storage.AlertStore, notifier Notifier, debounce time.Duration, logger zerolog.Logger) *Evaluator {
	if debounce <= 0 {
		debounce = time.Hour
	}
	return &Evaluator{
		store:    store,
		notifier: notifier,
		debounce: debounce,
		logger:   logger.With().Str("component", "alert_evaluator").Logger(),
		now:      time.Now,
	}
}

// WithClock overrides the evaluator's time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate runs one alert pass over the given price set. Definitions without
// a fresh price are skipped. A triggered alert fires at most once per
// debounce window; the window is stamped before delivery is attempted, so a
// failed delivery still counts against it.
func (e *Evaluator) Evaluate(ctx context.Context, prices map[string]float64) {
	if e.store == nil || len(prices) == 0 {
		return
	}

	alerts, err := e.store.ListAlerts(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to list alerts")
		return
	}

	nowMillis := e.now().UnixMilli()
	for _, alert := range alerts {
		price, ok := prices[alert.Code]
		if !ok {
			continue
		}
		if !Triggered(alert.Condition, price, alert.Threshold) {
			continue
		}
		if alert.LastTriggered != nil && nowMillis-*alert.LastTriggered <= e.debounce.Milliseconds() {
			continue
		}

		if err := e.store.MarkTriggered(ctx, alert.ID, nowMillis); err != nil {
			e.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to stamp alert trigger")
			continue
		}

		if e.notifier == nil {
			continue
		}
		note := Notification{
			To:      alert.Email,
			Subject: fmt.Sprintf("Alert triggered: %s", alert.Code),
			Body:    renderAlertBody(alert.Code, alert.Condition, alert.Threshold, price),
		}
		if err := e.notifier.Notify(ctx, note); err != nil {
			e.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to dispatch alert")
			continue
		}
		e.logger.Info().Int64("alert_id", alert.ID).Str("code", alert.Code).Float64("price", price).Msg("alert dispatched")
	}
}

// Triggered reports whether a price satisfies an alert condition.
func Triggered(condition string, price, threshold float64) bool {
	switch condition {
	case ConditionAbove:
		return price > threshold
	case ConditionBelow:
		return price < threshold
	default:
		return false
	}
}

func renderAlertBody(code, condition string, threshold, price float64) string {
	return fmt.Sprintf("<p>%s is %s %v. Current: %v</p>", code, condition, threshold, price)
}
