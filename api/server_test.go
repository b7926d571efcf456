package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tradechartjp/tradechart/internal/config"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/store"
	"github.com/tradechartjp/tradechart/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

// stubFetcher serves canned data for one model type.
type stubFetcher struct {
	model provider.ModelType
	data  map[string]any // keyed by symbol
}

func (f *stubFetcher) ModelType() provider.ModelType { return f.model }
func (f *stubFetcher) Description() string           { return "stub" }
func (f *stubFetcher) RequiredParams() []string      { return []string{provider.ParamSymbol} }
func (f *stubFetcher) OptionalParams() []string      { return nil }

func (f *stubFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	data, ok := f.data[params[provider.ParamSymbol]]
	if !ok {
		return nil, fmt.Errorf("no data for %s", params[provider.ParamSymbol])
	}
	return &provider.FetchResult{Data: data, FetchedAt: time.Now()}, nil
}

type stubProvider struct {
	fetchers map[provider.ModelType]*stubFetcher
}

func (p *stubProvider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{Name: "stub", Models: p.SupportedModels()}
}
func (p *stubProvider) Init(map[string]string) error { return nil }
func (p *stubProvider) Fetcher(model provider.ModelType) provider.Fetcher {
	f, ok := p.fetchers[model]
	if !ok {
		return nil
	}
	return f
}
func (p *stubProvider) SupportedModels() []provider.ModelType {
	ms := make([]provider.ModelType, 0, len(p.fetchers))
	for m := range p.fetchers {
		ms = append(ms, m)
	}
	return ms
}
func (p *stubProvider) Ping(ctx context.Context) error { return nil }

func testCandles(n int) []models.OHLCV {
	candles := make([]models.OHLCV, n)
	base := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	price := 3000.0
	for i := 0; i < n; i++ {
		price += 5
		candles[i] = models.OHLCV{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price - 5,
			High:      price + 10,
			Low:       price - 10,
			Close:     price,
			Volume:    500000,
		}
	}
	return candles
}

func testServer(t *testing.T) *Server {
	t.Helper()

	reg := provider.NewRegistry()
	sp := &stubProvider{fetchers: map[provider.ModelType]*stubFetcher{
		provider.ModelEquityHistorical: {
			model: provider.ModelEquityHistorical,
			data:  map[string]any{"7203": testCandles(60)},
		},
		provider.ModelEquityQuote: {
			model: provider.ModelEquityQuote,
			data: map[string]any{
				"7203": &models.Quote{Ticker: "7203", Name: "トヨタ自動車", LastPrice: 3100.5, Currency: "JPY"},
				"6758": &models.Quote{Ticker: "6758", Name: "ソニーグループ", LastPrice: 14000, Currency: "JPY"},
			},
		},
		provider.ModelDisclosureEvents: {
			model: provider.ModelDisclosureEvents,
			data: map[string]any{
				"7203": []models.DisclosureEvent{{Code: "7203", Title: "業績予想の修正", Timestamp: "2025-06-02 15:00"}},
			},
		},
	}}
	if err := reg.Register(sp); err != nil {
		t.Fatal(err)
	}

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Market.DefaultRange = "2y"
	cfg.Alerts.RSIThreshold = 40
	cfg.Alerts.RSIPeriod = 14

	srv := NewServer(cfg, reg, st, nil)
	srv.SetServeUI(false)
	go srv.wsHub.Run()
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// ════════════════════════════════════════════════════════════════════
// Health
// ════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success")
	}
	data := resp.Data.(map[string]interface{})
	if data["status"] != "ok" {
		t.Errorf("status = %v", data["status"])
	}
	if data["time_jst"] == "" {
		t.Error("time_jst missing")
	}
}

// ════════════════════════════════════════════════════════════════════
// Market data
// ════════════════════════════════════════════════════════════════════

func TestPrices(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/prices/7203", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["ticker"] != "7203" {
		t.Errorf("ticker = %v", data["ticker"])
	}
	candles := data["candles"].([]interface{})
	if len(candles) != 60 {
		t.Errorf("expected 60 candles, got %d", len(candles))
	}
	rsi := data["rsi"].([]interface{})
	if len(rsi) != 60 {
		t.Errorf("expected RSI column aligned with candles, got %d", len(rsi))
	}
}

func TestPricesUnknownTicker(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/prices/9999", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when all providers fail", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("expected failure envelope")
	}
}

func TestQuote(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/quote/7203.T", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["ticker"] != "7203" {
		t.Errorf("ticker = %v (suffix should be normalized away)", data["ticker"])
	}
	if data["last_price"] != 3100.5 {
		t.Errorf("last_price = %v", data["last_price"])
	}
}

func TestDisclosures(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/disclosures/7203?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	events := resp.Data.([]interface{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

// ════════════════════════════════════════════════════════════════════
// Alerts CRUD
// ════════════════════════════════════════════════════════════════════

func TestAlertsCRUD(t *testing.T) {
	srv := testServer(t)

	// Empty list
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/alerts", "")
	resp := decodeResponse(t, rec)
	if list := resp.Data.([]interface{}); len(list) != 0 {
		t.Errorf("expected empty alert list, got %v", list)
	}

	// Create
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/alerts",
		`{"ticker":"7203.T","threshold":35,"note":"buy zone"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	resp = decodeResponse(t, rec)
	created := resp.Data.(map[string]interface{})
	if created["ticker"] != "7203" {
		t.Errorf("ticker = %v, want normalized 7203", created["ticker"])
	}
	if created["type"] != "RSI" {
		t.Errorf("type = %v, want RSI default", created["type"])
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created alert has no id")
	}

	// List has one
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/alerts", "")
	resp = decodeResponse(t, rec)
	if list := resp.Data.([]interface{}); len(list) != 1 {
		t.Errorf("expected 1 alert, got %d", len(list))
	}

	// Delete
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/alerts/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	// Delete again → 404
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/alerts/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts", `{"threshold":35}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ticker: status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/alerts", `{"ticker":"7203"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing threshold: status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/alerts", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}
}

func TestRunAlerts(t *testing.T) {
	srv := testServer(t)

	// 7203's stub series is rising, so a generous threshold must match.
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/alerts",
		`{"ticker":"7203","threshold":100}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/alerts/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	matches := resp.Data.([]interface{})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0].(map[string]interface{})
	if m["ticker"] != "7203" {
		t.Errorf("match ticker = %v", m["ticker"])
	}
}

// ════════════════════════════════════════════════════════════════════
// Portfolio
// ════════════════════════════════════════════════════════════════════

func TestPortfolioUpsertAndValuation(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/portfolio",
		`{"ticker":"7203","shares":100}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upsert status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/portfolio",
		`{"ticker":"6758","shares":10}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upsert status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/portfolio", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	holdings := data["holdings"].([]interface{})
	if len(holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(holdings))
	}
	// 100 * 3100.5 + 10 * 14000 = 450050
	if data["total_value"] != "450050" {
		t.Errorf("total_value = %v, want 450050", data["total_value"])
	}
	if data["currency"] != "JPY" {
		t.Errorf("currency = %v", data["currency"])
	}

	first := holdings[0].(map[string]interface{})
	if first["market_value"] == "0" {
		t.Error("holding market_value should be priced")
	}
	if first["name"] == "" {
		t.Error("holding should carry the quote name")
	}
}

func TestPortfolioValidation(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/portfolio", `{"shares":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ticker: status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/portfolio", `{"ticker":"7203","shares":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative shares: status = %d, want 400", rec.Code)
	}
}

func TestPortfolioUnpricedHoldingKeptAtZero(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/portfolio",
		`{"ticker":"9999","shares":50}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upsert status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/portfolio", "")
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	holdings := data["holdings"].([]interface{})
	if len(holdings) != 1 {
		t.Fatalf("unpriced holding should still be listed, got %d", len(holdings))
	}
	h := holdings[0].(map[string]interface{})
	if h["market_value"] != "0" {
		t.Errorf("market_value = %v, want 0", h["market_value"])
	}
	if data["total_value"] != "0" {
		t.Errorf("total_value = %v, want 0", data["total_value"])
	}
}

func TestDeleteHoldingNotFound(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/portfolio/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// Providers
// ════════════════════════════════════════════════════════════════════

func TestProviders(t *testing.T) {
	srv := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	providers := data["providers"].([]interface{})
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(providers))
	}
	info := providers[0].(map[string]interface{})
	if info["name"] != "stub" {
		t.Errorf("provider name = %v", info["name"])
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket hub
// ════════════════════════════════════════════════════════════════════

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	client := &WSClient{hub: hub, send: make(chan WSMessage, 8)}
	hub.Register(client)

	// Registration is asynchronous; give the hub loop a moment.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(WSMessage{Type: "alerts_triggered", Data: "x"})
	select {
	case msg := <-client.send:
		if msg.Type != "alerts_triggered" {
			t.Errorf("msg.Type = %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	hub.Unregister(client)
	deadline = time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after unregister", hub.ClientCount())
	}
}

// ════════════════════════════════════════════════════════════════════
// Envelope
// ════════════════════════════════════════════════════════════════════

func TestAPIResponseJSON(t *testing.T) {
	tests := []struct {
		name string
		resp APIResponse
	}{
		{"success with data", APIResponse{Success: true, Data: map[string]string{"key": "value"}}},
		{"error", APIResponse{Success: false, Error: "something went wrong"}},
		{"success with nil data", APIResponse{Success: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got APIResponse
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Success != tt.resp.Success {
				t.Errorf("Success: got %v, want %v", got.Success, tt.resp.Success)
			}
			if got.Error != tt.resp.Error {
				t.Errorf("Error: got %q, want %q", got.Error, tt.resp.Error)
			}
		})
	}
}
