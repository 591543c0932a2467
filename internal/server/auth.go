package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// User is the slice of identity this service needs: who the caller is and
// whether their plan is active. Everything else about identity and billing
// lives in the hosted collaborator behind Authorizer.
type User struct {
	ID         int64
	PlanActive bool
}

// Authorizer resolves a session token to a user. A missing or expired
// session resolves to (nil, nil).
type Authorizer interface {
	Resolve(ctx context.Context, token string) (*User, error)
}

// HTTPAuthorizer resolves sessions against the hosted identity service.
type HTTPAuthorizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthorizer constructs an authorizer for the given identity endpoint.
func NewHTTPAuthorizer(baseURL string, timeout time.Duration) *HTTPAuthorizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthorizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve asks the identity service who owns the session and whether their
// subscription is active.
func (a *HTTPAuthorizer) Resolve(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/me", nil)
	if err != nil {
		return nil, err
	}
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var body struct {
		ID                 int64  `json:"id"`
		SubscriptionStatus string `json:"subscription_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	return &User{ID: body.ID, PlanActive: body.SubscriptionStatus == "active"}, nil
}

var _ Authorizer = (*HTTPAuthorizer)(nil)
