package app

import (
	"context"
	"errors"
	"strings"

	"metalwatch/internal/alerting"
)

// SimulateAlert runs one evaluation pass against the stored alert
// definitions using an injected price, exercising the full debounce and
// delivery path without touching the source page.
func (a *App) SimulateAlert(ctx context.Context, code string, price float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	if price <= 0 {
		return errors.New("price must be greater than zero")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot simulate alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	evaluator := alerting.NewEvaluator(store, notifier, a.Config.Alerting.Debounce, a.Logger)
	evaluator.Evaluate(ctx, map[string]float64{strings.ToUpper(code): price})
	return nil
}
