package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification is a fire-and-forget outbound message.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers notifications; delivery may fail and callers decide
// whether that matters.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// ResendNotifier sends email through the Resend HTTP API.
type ResendNotifier struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewResendNotifier constructs an email notifier.
func NewResendNotifier(apiKey, from, baseURL string, timeout time.Duration, logger zerolog.Logger) *ResendNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if from == "" {
		from = "onboarding@resend.dev"
	}

	return &ResendNotifier{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify posts the message to the provider's send endpoint.
func (n *ResendNotifier) Notify(ctx context.Context, note Notification) error {
	if n.apiKey == "" {
		return fmt.Errorf("resend api key not configured")
	}

	payload := map[string]string{
		"from":    n.from,
		"to":      note.To,
		"subject": note.Subject,
		"html":    note.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("to", note.To).Str("subject", note.Subject).Msg("notification sent")
	return nil
}

var _ Notifier = (*ResendNotifier)(nil)
