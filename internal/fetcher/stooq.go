package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/metals"
)

var (
	rowPattern    = regexp.MustCompile(`(?s)<tr id=r_\d+>.*?</tr>`)
	symbolPattern = regexp.MustCompile(`(?i)<a href=q/?s=([^>]+)>([^<]+)</a>`)
	lastPattern   = regexp.MustCompile(`(?i)_c\d+>([0-9.,]+)</span>`)
)

// StooqOptions parameterise the quote page fetcher.
type StooqOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Stooq scrapes the commodity futures quote page.
type Stooq struct {
	opts   StooqOptions
	logger zerolog.Logger
	client *http.Client
}

// NewStooq constructs a quote page fetcher.
func NewStooq(opts StooqOptions, logger zerolog.Logger) *Stooq {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Stooq{
		opts:   opts,
		logger: logger.With().Str("component", "stooq_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchQuotes downloads the quote page and extracts code-to-price pairs.
// Markup drift yields an empty map, not an error; only transport failures
// and non-200 responses are reported.
func (s *Stooq) FetchQuotes(ctx context.Context) (map[string]float64, error) {
	if s.opts.URL == "" {
		return nil, fmt.Errorf("source url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quote page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote page: %w", err)
	}

	quotes := ParseQuotes(string(body))
	s.logger.Debug().Int("codes", len(quotes)).Msg("quote page parsed")
	return quotes, nil
}

// ParseQuotes extracts recognised code-to-price pairs from raw quote page
// HTML. Rows missing the symbol or last-price token are skipped; so are rows
// whose price fails numeric parsing. No rows is a valid empty result.
func ParseQuotes(html string) map[string]float64 {
	quotes := make(map[string]float64)

	for _, row := range rowPattern.FindAllString(html, -1) {
		symbolMatch := symbolPattern.FindStringSubmatch(row)
		lastMatch := lastPattern.FindStringSubmatch(row)
		if symbolMatch == nil || lastMatch == nil {
			continue
		}

		code, ok := metals.Translate(symbolMatch[2])
		if !ok {
			continue
		}

		price, ok := parsePrice(lastMatch[1])
		if !ok {
			continue
		}
		quotes[code] = price
	}

	return quotes
}

func parsePrice(token string) (float64, bool) {
	cleaned := strings.ReplaceAll(token, ",", "")
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	price := value.InexactFloat64()
	if price <= 0 {
		return 0, false
	}
	return price, true
}

var _ QuoteFetcher = (*Stooq)(nil)
