package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestResendNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Fatalf("path should end with /emails, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Fatalf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email_1"})
	}))
	defer srv.Close()

	notifier := NewResendNotifier("key", "alerts@example.com", srv.URL, time.Second, testLogger())
	note := Notification{To: "user@example.com", Subject: "Alert triggered: XAU", Body: "<p>test</p>"}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["to"] != "user@example.com" {
		t.Fatalf("recipient not forwarded: %#v", received)
	}
	if received["from"] != "alerts@example.com" {
		t.Fatalf("sender not forwarded: %#v", received)
	}
	if received["subject"] == "" || received["html"] == "" {
		t.Fatalf("subject/body must be non-empty: %#v", received)
	}
}

func TestResendNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	notifier := NewResendNotifier("key", "", srv.URL, time.Second, testLogger())
	note := Notification{To: "user@example.com", Subject: "s", Body: "b"}

	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("non-2xx response should be an error")
	}
}

func TestResendNotifierMissingKey(t *testing.T) {
	notifier := NewResendNotifier("", "", "", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{}); err == nil {
		t.Fatal("missing api key should be an error")
	}
}
