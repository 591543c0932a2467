package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"metalwatch/internal/fetcher"
	"metalwatch/internal/storage"
)

type fakeSnapshots struct {
	since map[string][]storage.PriceSnapshot
	daily map[string][]storage.DailyRollup
	err   error
}

func (f *fakeSnapshots) InsertBatch(ctx context.Context, batch storage.IngestionBatch) error {
	return nil
}

func (f *fakeSnapshots) ListSince(ctx context.Context, code string, since int64) ([]storage.PriceSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.since[code], nil
}

func (f *fakeSnapshots) ListRecentDaily(ctx context.Context, code string, n int) ([]storage.DailyRollup, error) {
	if f.err != nil {
		return nil, f.err
	}
	rollups := f.daily[code]
	if len(rollups) > n {
		rollups = rollups[:n]
	}
	return rollups, nil
}

type fakeAlertStore struct {
	created []storage.AlertDefinition
	err     error
}

func (f *fakeAlertStore) ListAlerts(ctx context.Context) ([]storage.AlertDefinition, error) {
	return nil, nil
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, alert storage.AlertDefinition) (storage.AlertDefinition, error) {
	if f.err != nil {
		return storage.AlertDefinition{}, f.err
	}
	alert.ID = int64(len(f.created) + 1)
	f.created = append(f.created, alert)
	return alert, nil
}

func (f *fakeAlertStore) MarkTriggered(ctx context.Context, id int64, ts int64) error {
	return nil
}

type fakeCrypto struct {
	quotes []fetcher.CryptoQuote
	err    error
	calls  int
}

func (f *fakeCrypto) FetchMarkets(ctx context.Context) ([]fetcher.CryptoQuote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

type fakeIngester struct {
	prices map[string]float64
}

func (f *fakeIngester) Start(ctx context.Context) {}

func (f *fakeIngester) BestEffortIngest(ctx context.Context) map[string]float64 {
	return f.prices
}

type fakeEvaluator struct {
	passes int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, prices map[string]float64) {
	f.passes++
}

type fakeAuthorizer struct {
	user *User
	err  error
}

func (f *fakeAuthorizer) Resolve(ctx context.Context, token string) (*User, error) {
	return f.user, f.err
}

type testEnv struct {
	server    *Server
	snapshots *fakeSnapshots
	alerts    *fakeAlertStore
	crypto    *fakeCrypto
	evaluator *fakeEvaluator
	clock     *time.Time
}

func newTestEnv(auth Authorizer, prices map[string]float64) *testEnv {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		snapshots: &fakeSnapshots{
			since: map[string][]storage.PriceSnapshot{},
			daily: map[string][]storage.DailyRollup{},
		},
		alerts:    &fakeAlertStore{},
		crypto:    &fakeCrypto{quotes: []fetcher.CryptoQuote{{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", PriceUSD: 65000, Volume24h: 100, Sparkline: []float64{1, 2}}}},
		evaluator: &fakeEvaluator{},
		clock:     &now,
	}

	env.server = New(Options{
		Addr:            ":0",
		CacheTTL:        5 * time.Minute,
		SparklinePoints: 20,
		RollupDays:      7,
		MetalsSource:    "stooq.com/t/?i=554 (scraped every 5 mins)",
		CryptoSource:    "CoinGecko Demo API",
	}, env.snapshots, env.alerts, env.crypto, &fakeIngester{prices: prices}, env.evaluator, auth, nil, zerolog.Nop()).
		WithClock(func() time.Time { return *env.clock })

	return env
}

func (e *testEnv) do(method, target string, body []byte, cookie string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPricesPayloadAssembly(t *testing.T) {
	env := newTestEnv(nil, map[string]float64{"XAU": 2500.5})
	env.snapshots.since["XAU"] = []storage.PriceSnapshot{
		{Code: "XAU", PriceUSD: 2490, TS: 1},
		{Code: "XAU", PriceUSD: 2500.5, TS: 2},
	}
	env.snapshots.daily["XAU"] = []storage.DailyRollup{
		{Code: "XAU", PriceUSD: 2501, Day: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Code: "XAU", PriceUSD: 2499, Day: time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)},
	}

	rec := env.do(http.MethodGet, "/api/prices", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	if len(payload.Metals) != 13 {
		t.Fatalf("expected all 13 configured metals, got %d", len(payload.Metals))
	}

	gold := payload.Metals[0]
	if gold.Code != "XAU" || gold.Status != StatusOK {
		t.Fatalf("expected priced gold entry, got %#v", gold)
	}
	if gold.PriceUSD == nil || *gold.PriceUSD != 2500.5 {
		t.Fatalf("expected gold price 2500.5, got %#v", gold.PriceUSD)
	}
	if len(gold.Sparkline1d) != 2 || gold.Sparkline1d[1] != 2500.5 {
		t.Fatalf("unexpected 1d sparkline: %v", gold.Sparkline1d)
	}
	if len(gold.Sparkline7d) != 2 || gold.Sparkline7d[0] != 2499 {
		t.Fatalf("7d sparkline must be oldest-first: %v", gold.Sparkline7d)
	}

	silver := payload.Metals[1]
	if silver.Code != "XAG" || silver.Status != StatusSourcePending || silver.PriceUSD != nil {
		t.Fatalf("unpriced code must be pending: %#v", silver)
	}

	if len(payload.Crypto) != 1 || payload.Crypto[0].Symbol != "BTC" {
		t.Fatalf("unexpected crypto section: %#v", payload.Crypto)
	}
	if payload.Sources.Metals == "" || payload.Sources.Crypto == "" {
		t.Fatalf("sources must be attributed: %#v", payload.Sources)
	}
	if env.evaluator.passes != 1 {
		t.Fatalf("rebuild must run one alert pass, got %d", env.evaluator.passes)
	}
}

func TestPricesCacheHitAndExpiry(t *testing.T) {
	env := newTestEnv(nil, map[string]float64{"XAU": 2500.5})

	first := env.do(http.MethodGet, "/api/prices", nil, "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	*env.clock = env.clock.Add(time.Minute)
	second := env.do(http.MethodGet, "/api/prices", nil, "")
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("read within TTL must return the cached payload verbatim")
	}
	if env.crypto.calls != 1 {
		t.Fatalf("cache hit must not refetch crypto, calls: %d", env.crypto.calls)
	}

	*env.clock = env.clock.Add(5 * time.Minute)
	third := env.do(http.MethodGet, "/api/prices", nil, "")
	if bytes.Equal(first.Body.Bytes(), third.Body.Bytes()) {
		t.Fatal("read after TTL must rebuild with a newer updatedAt")
	}
	if env.crypto.calls != 2 {
		t.Fatalf("expired cache must refetch crypto, calls: %d", env.crypto.calls)
	}
}

func TestPricesCryptoFailureIsHard(t *testing.T) {
	env := newTestEnv(nil, map[string]float64{"XAU": 2500.5})
	env.crypto.err = errors.New("rate limited")

	rec := env.do(http.MethodGet, "/api/prices", nil, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("crypto failure must fail the request, got %d", rec.Code)
	}
}

func TestHistory7dAscending(t *testing.T) {
	env := newTestEnv(nil, nil)

	day0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rollups := make([]storage.DailyRollup, 0, 7)
	for i := 0; i < 7; i++ {
		rollups = append(rollups, storage.DailyRollup{
			Code:     "XAU",
			PriceUSD: float64(16 - i),
			Day:      day0.AddDate(0, 0, -i),
		})
	}
	env.snapshots.daily["XAU"] = rollups

	rec := env.do(http.MethodGet, "/api/metal-history?code=xau&range=7d", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if resp.Code != "XAU" {
		t.Fatalf("code must be uppercased, got %s", resp.Code)
	}
	if len(resp.Series) != 7 {
		t.Fatalf("expected 7 points, got %d", len(resp.Series))
	}
	if resp.Series[0].PriceUSD != 10 || resp.Series[6].PriceUSD != 16 {
		t.Fatalf("series must ascend oldest-first: %v", resp.Series)
	}
	if resp.Series[0].TS >= resp.Series[6].TS {
		t.Fatalf("timestamps must ascend: %v", resp.Series)
	}
	if resp.Series[6].TS != day0.UnixMilli() {
		t.Fatalf("rollup ts must be day midnight UTC, got %d", resp.Series[6].TS)
	}
}

func TestHistory1dRawSeries(t *testing.T) {
	env := newTestEnv(nil, nil)
	env.snapshots.since["XAG"] = []storage.PriceSnapshot{
		{Code: "XAG", PriceUSD: 30.1, TS: 100},
		{Code: "XAG", PriceUSD: 30.2, TS: 200},
	}

	rec := env.do(http.MethodGet, "/api/metal-history?code=XAG", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(resp.Series) != 2 || resp.Series[0].TS != 100 || resp.Series[1].PriceUSD != 30.2 {
		t.Fatalf("unexpected 1d series: %v", resp.Series)
	}
}

func TestHistoryMissingCode(t *testing.T) {
	env := newTestEnv(nil, nil)
	rec := env.do(http.MethodGet, "/api/metal-history", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code must be 400, got %d", rec.Code)
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	env := newTestEnv(nil, nil)
	env.snapshots.err = errors.New("db down")

	rec := env.do(http.MethodGet, "/api/metal-history?code=XAU&range=7d", nil, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure must be 500, got %d", rec.Code)
	}
}

func TestCreateAlertRequiresActivePlan(t *testing.T) {
	body := []byte(`{"code":"XAU","condition":"above","threshold":2000,"email":"user@example.com"}`)

	// No session at all.
	env := newTestEnv(nil, nil)
	if rec := env.do(http.MethodPost, "/api/alerts", body, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous caller must get 403, got %d", rec.Code)
	}

	// Session resolves to an inactive plan.
	env = newTestEnv(&fakeAuthorizer{user: &User{ID: 7, PlanActive: false}}, nil)
	if rec := env.do(http.MethodPost, "/api/alerts", body, "tok"); rec.Code != http.StatusForbidden {
		t.Fatalf("inactive plan must get 403, got %d", rec.Code)
	}
}

func TestCreateAlertMissingFields(t *testing.T) {
	env := newTestEnv(&fakeAuthorizer{user: &User{ID: 7, PlanActive: true}}, nil)

	cases := []string{
		`{"condition":"above","threshold":2000,"email":"user@example.com"}`,
		`{"code":"XAU","threshold":2000,"email":"user@example.com"}`,
		`{"code":"XAU","condition":"above","email":"user@example.com"}`,
		`{"code":"XAU","condition":"above","threshold":2000}`,
		`{"code":"XAU","condition":"sideways","threshold":2000,"email":"user@example.com"}`,
		`not json`,
	}
	for _, body := range cases {
		rec := env.do(http.MethodPost, "/api/alerts", []byte(body), "tok")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s must get 400, got %d", body, rec.Code)
		}
	}
	if len(env.alerts.created) != 0 {
		t.Fatalf("rejected requests must not create alerts, got %d", len(env.alerts.created))
	}
}

func TestCreateAlertSuccess(t *testing.T) {
	env := newTestEnv(&fakeAuthorizer{user: &User{ID: 7, PlanActive: true}}, nil)

	body := []byte(`{"code":"xau","condition":"below","threshold":2400,"email":"user@example.com"}`)
	rec := env.do(http.MethodPost, "/api/alerts", body, "tok")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(env.alerts.created) != 1 {
		t.Fatalf("expected one stored alert, got %d", len(env.alerts.created))
	}
	alert := env.alerts.created[0]
	if alert.UserID != 7 || alert.Code != "XAU" || alert.Condition != "below" || alert.Threshold != 2400 {
		t.Fatalf("unexpected stored alert: %#v", alert)
	}
	if alert.Email != "user@example.com" {
		t.Fatalf("unexpected notify target: %#v", alert)
	}
}
