package server

import "metalwatch/internal/fetcher"

// Metal statuses surfaced in the dashboard payload.
const (
	StatusOK            = "ok"
	StatusSourcePending = "source_pending"
)

// MetalEntry is one metal's slice of the dashboard payload.
type MetalEntry struct {
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	PriceUSD    *float64  `json:"priceUsd"`
	Status      string    `json:"status"`
	Sparkline1d []float64 `json:"sparkline1d"`
	Sparkline7d []float64 `json:"sparkline7d"`
}

// Sources attributes the upstream feeds.
type Sources struct {
	Metals string `json:"metals"`
	Crypto string `json:"crypto"`
}

// Payload is the fully assembled dashboard document.
type Payload struct {
	UpdatedAt string                `json:"updatedAt"`
	Metals    []MetalEntry          `json:"metals"`
	Crypto    []fetcher.CryptoQuote `json:"crypto"`
	Sources   Sources               `json:"sources"`
}

// HistoryPoint is one sample of a history query response.
type HistoryPoint struct {
	PriceUSD float64 `json:"price_usd"`
	TS       int64   `json:"ts"`
	Volume   float64 `json:"volume"`
}

// HistoryResponse answers the UI's detail view query.
type HistoryResponse struct {
	Code   string         `json:"code"`
	Series []HistoryPoint `json:"series"`
}
