package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bmcnabb/tickerwatch/internal/app"
	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

// --- Mocks ---

type mockQuoteService struct {
	quotes map[string]*models.Quote
}

func (m *mockQuoteService) GetQuotes(_ context.Context, keys []models.SymbolKey) map[string]*models.Quote {
	out := map[string]*models.Quote{}
	for _, k := range keys {
		if q, ok := m.quotes[k.String()]; ok {
			out[k.String()] = q
		}
	}
	return out
}

type mockRankService struct {
	markets []string
	results map[string]*models.RankRebuildResult
	calls   []string
}

func (m *mockRankService) RebuildMarket(_ context.Context, market string) (*models.RankRebuildResult, error) {
	m.calls = append(m.calls, market)
	if r, ok := m.results[market]; ok {
		return r, nil
	}
	return &models.RankRebuildResult{Market: market, Status: models.RankRebuildOK}, nil
}

func (m *mockRankService) Markets() []string { return m.markets }

type mockEnrichService struct {
	lastPersist bool
	attrs       []*models.AttributeMetadata
}

func (m *mockEnrichService) Reconcile(_ context.Context, reqs []models.SymbolRequest, persist bool) []*models.AttributeMetadata {
	m.lastPersist = persist
	if m.attrs != nil {
		return m.attrs
	}
	out := make([]*models.AttributeMetadata, len(reqs))
	for i, r := range reqs {
		out[i] = &models.AttributeMetadata{Ticker: r.Ticker, Market: r.Market}
	}
	return out
}

type mockWatchStore struct {
	entries []*models.WatchEntry
}

func (m *mockWatchStore) Save(_ context.Context, e *models.WatchEntry) error {
	if e.ID == "" {
		e.ID = "generated"
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockWatchStore) ListByUser(_ context.Context, userID string) ([]*models.WatchEntry, error) {
	var out []*models.WatchEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockWatchStore) UpdateEnrichmentBySymbol(_ context.Context, _, _, _ string, _ models.Tier) (int, error) {
	return 0, nil
}

type mockStorageManager struct {
	watch *mockWatchStore
}

func (m *mockStorageManager) SymbolStore() interfaces.SymbolStore { return nil }
func (m *mockStorageManager) WatchStore() interfaces.WatchStore   { return m.watch }
func (m *mockStorageManager) Close() error                        { return nil }

// --- Helpers ---

func newTestServer(t *testing.T) (*Server, *mockQuoteService, *mockRankService, *mockEnrichService, *mockWatchStore) {
	t.Helper()

	quotes := &mockQuoteService{quotes: map[string]*models.Quote{}}
	ranks := &mockRankService{markets: []string{"KOSPI", "KOSDAQ"}}
	enrichSvc := &mockEnrichService{}
	watch := &mockWatchStore{}

	a := &app.App{
		Config:        common.NewDefaultConfig(),
		Logger:        common.NewSilentLogger(),
		Storage:       &mockStorageManager{watch: watch},
		QuoteService:  quotes,
		RankService:   ranks,
		EnrichService: enrichSvc,
	}
	return NewServer(a), quotes, ranks, enrichSvc, watch
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func persistToken(t *testing.T, secret, scope string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "test-user",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// --- Tests ---

func TestHandleHealth(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHandleQuotes_MissingListedNotFailed(t *testing.T) {
	srv, quotes, _, _, _ := newTestServer(t)
	quotes.quotes["005930.KOSPI"] = &models.Quote{Price: 71200, PreviousClose: 70900}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/quotes", quoteRequest{
		Symbols: []models.SymbolRequest{
			{Ticker: "005930", Market: "KOSPI"},
			{Ticker: "GONE", Market: "KOSPI"},
		},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Version string                   `json:"version"`
		Quotes  map[string]*models.Quote `json:"quotes"`
		Missing []string                 `json:"missing"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != apiVersion {
		t.Errorf("expected version %s, got %s", apiVersion, body.Version)
	}
	if len(body.Quotes) != 1 || body.Quotes["005930.KOSPI"] == nil {
		t.Errorf("expected one resolved quote, got %v", body.Quotes)
	}
	if len(body.Missing) != 1 || body.Missing[0] != "GONE.KOSPI" {
		t.Errorf("expected GONE.KOSPI missing, got %v", body.Missing)
	}
}

func TestHandleQuotes_Validation(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/quotes", quoteRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty symbols: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/quotes", quoteRequest{
		Symbols: []models.SymbolRequest{{Ticker: "005930"}},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing market: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/quotes", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", rec.Code)
	}
}

func TestHandleAttributes_PersistRequiresScope(t *testing.T) {
	srv, _, _, enrichSvc, _ := newTestServer(t)
	secret := srv.app.Config.Auth.JWTSecret

	body := attributeRequest{
		Symbols: []models.SymbolRequest{{Ticker: "AAPL", Market: "NASDAQ"}},
		Persist: true,
	}

	// No token: metadata returned, persist downgraded.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/attributes", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if enrichSvc.lastPersist {
		t.Error("persist should be denied without a token")
	}

	// Token without the scope: still denied.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/attributes", body, map[string]string{
		"Authorization": "Bearer " + persistToken(t, secret, "quotes:read"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if enrichSvc.lastPersist {
		t.Error("persist should be denied without the enrich:persist scope")
	}

	// Scoped token: allowed.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/attributes", body, map[string]string{
		"Authorization": "Bearer " + persistToken(t, secret, "enrich:persist"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !enrichSvc.lastPersist {
		t.Error("persist should be allowed with the enrich:persist scope")
	}

	var resp struct {
		Persisted bool `json:"persisted"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Persisted {
		t.Error("response should echo persisted=true")
	}
}

func TestHandleAttributes_InvalidToken(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/attributes", attributeRequest{
		Symbols: []models.SymbolRequest{{Ticker: "AAPL", Market: "NASDAQ"}},
	}, map[string]string{"Authorization": "Bearer not-a-jwt"})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for malformed token, got %d", rec.Code)
	}
}

func TestHandleRankRebuild_SingleMarket(t *testing.T) {
	srv, _, ranks, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/rank/rebuild", rankRebuildRequest{Market: "kospi"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ranks.calls) != 1 || ranks.calls[0] != "KOSPI" {
		t.Errorf("expected one uppercased rebuild call, got %v", ranks.calls)
	}
}

func TestHandleRankRebuild_AllMarkets(t *testing.T) {
	srv, _, ranks, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/rank/rebuild", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ranks.calls) != 2 {
		t.Errorf("expected rebuild for every configured market, got %v", ranks.calls)
	}

	var body struct {
		Results []*models.RankRebuildResult `json:"results"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(body.Results))
	}
}

func TestHandleRankMarkets(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/rank/markets", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Markets []string `json:"markets"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Markets) != 2 {
		t.Errorf("expected 2 markets, got %v", body.Markets)
	}
}

func TestWatchlistSaveAndList(t *testing.T) {
	srv, _, _, _, watch := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/watchlists", models.WatchEntry{
		UserID: "alice", Ticker: "005930", Market: "KOSPI",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(watch.entries) != 1 {
		t.Fatalf("expected 1 entry saved, got %d", len(watch.entries))
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/watchlists/alice", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Entries []*models.WatchEntry `json:"entries"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Entries) != 1 || body.Entries[0].Ticker != "005930" {
		t.Errorf("unexpected entries: %v", body.Entries)
	}
}

func TestWatchlistSave_Validation(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/watchlists", models.WatchEntry{
		Ticker: "005930",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", rec.Code)
	}
}
