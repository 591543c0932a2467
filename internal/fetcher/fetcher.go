package fetcher

import "context"

// QuoteFetcher retrieves the latest metal prices keyed by commodity code.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context) (map[string]float64, error)
}

// CryptoQuote is one reshaped entry of the third-party market feed.
type CryptoQuote struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	PriceUSD  float64   `json:"priceUsd"`
	Volume24h float64   `json:"volume24h"`
	Sparkline []float64 `json:"sparkline"`
}

// CryptoFetcher retrieves a top-N market listing ordered by trading volume.
type CryptoFetcher interface {
	FetchMarkets(ctx context.Context) ([]CryptoQuote, error)
}
