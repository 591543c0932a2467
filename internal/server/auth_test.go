package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAuthorizerActiveUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "tok" {
			t.Fatalf("session cookie not forwarded: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "subscription_status": "active"})
	}))
	defer srv.Close()

	auth := NewHTTPAuthorizer(srv.URL, time.Second)
	user, err := auth.Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("resolve should succeed: %v", err)
	}
	if user == nil || user.ID != 7 || !user.PlanActive {
		t.Fatalf("unexpected user: %#v", user)
	}
}

func TestHTTPAuthorizerInactivePlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "subscription_status": "inactive"})
	}))
	defer srv.Close()

	auth := NewHTTPAuthorizer(srv.URL, time.Second)
	user, err := auth.Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("resolve should succeed: %v", err)
	}
	if user == nil || user.PlanActive {
		t.Fatalf("plan must be inactive: %#v", user)
	}
}

func TestHTTPAuthorizerUnknownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := NewHTTPAuthorizer(srv.URL, time.Second)
	user, err := auth.Resolve(context.Background(), "expired")
	if err != nil {
		t.Fatalf("unknown session is not an error: %v", err)
	}
	if user != nil {
		t.Fatalf("unknown session must resolve to no user: %#v", user)
	}
}

func TestHTTPAuthorizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	auth := NewHTTPAuthorizer(srv.URL, time.Second)
	if _, err := auth.Resolve(context.Background(), "tok"); err == nil {
		t.Fatal("identity service failure should be an error")
	}
}
