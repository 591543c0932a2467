package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoinGeckoFetchSuccess(t *testing.T) {
	sparkline := make([]float64, 30)
	for i := range sparkline {
		sparkline[i] = float64(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("order") != "volume_desc" {
			t.Fatalf("expected volume ordering, got %s", query.Get("order"))
		}
		if query.Get("per_page") != "10" {
			t.Fatalf("expected per_page 10, got %s", query.Get("per_page"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":              "bitcoin",
				"symbol":          "btc",
				"name":            "Bitcoin",
				"current_price":   65000.5,
				"total_volume":    1234567.0,
				"sparkline_in_7d": map[string]any{"price": sparkline},
			},
			{
				"id":            "tether",
				"symbol":        "usdt",
				"name":          "Tether",
				"current_price": 1.0,
				"total_volume":  999.0,
			},
		})
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, TopN: 10, Timeout: time.Second}, noopLogger())
	quotes, err := c.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}

	btc := quotes[0]
	if btc.ID != "bitcoin" || btc.Symbol != "BTC" || btc.Name != "Bitcoin" {
		t.Fatalf("unexpected reshaped quote: %#v", btc)
	}
	if btc.PriceUSD != 65000.5 || btc.Volume24h != 1234567.0 {
		t.Fatalf("unexpected price/volume: %#v", btc)
	}
	if len(btc.Sparkline) != 20 {
		t.Fatalf("sparkline should be capped to 20 points, got %d", len(btc.Sparkline))
	}
	if btc.Sparkline[0] != 10 || btc.Sparkline[19] != 29 {
		t.Fatalf("sparkline should keep the trailing points: %v", btc.Sparkline)
	}

	if quotes[1].Sparkline == nil || len(quotes[1].Sparkline) != 0 {
		t.Fatalf("missing sparkline should reshape to empty slice, got %#v", quotes[1].Sparkline)
	}
}

func TestCoinGeckoFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, TopN: 10, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchMarkets(context.Background()); err == nil {
		t.Fatal("HTTP error should propagate")
	}
}

func TestCoinGeckoFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, TopN: 10, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchMarkets(context.Background()); err == nil {
		t.Fatal("transport error should propagate")
	}
}
