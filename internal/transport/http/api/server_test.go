package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cointrade/internal/ledger"
	"cointrade/internal/market"
	"cointrade/internal/market/aggregator"
	"cointrade/internal/store/quotedb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

type fakeQuotes struct {
	payload market.QuotePayload
	err     error
	price   float64
}

func (f *fakeQuotes) Get(_ context.Context, pair string, _ time.Duration) (market.QuotePayload, error) {
	p := f.payload
	if p.Pair == "" {
		p.Pair = market.NormalizePair(pair)
	}
	return p, f.err
}

func (f *fakeQuotes) Price(context.Context, string, time.Duration) float64 { return f.price }

type fakePrices struct {
	rows map[string]quotedb.PriceRow
}

func (f *fakePrices) GetByKey(_ context.Context, key string) (quotedb.PriceRow, bool, error) {
	row, ok := f.rows[key]
	return row, ok, nil
}

func (f *fakePrices) ListRecent(_ context.Context, limit int) ([]quotedb.PriceRow, error) {
	var out []quotedb.PriceRow
	for _, row := range f.rows {
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeRefresher struct {
	report aggregator.Report
	err    error
}

func (f *fakeRefresher) Refresh(context.Context) (aggregator.Report, error) { return f.report, f.err }

type fakeExecutor struct {
	canPlace bool
	result   ledger.TradeResult
	err      error
	lastQty  float64
}

func (f *fakeExecutor) CanPlaceOrder(context.Context, int64) (bool, error) { return f.canPlace, nil }

func (f *fakeExecutor) ExecuteTrade(_ context.Context, order ledger.Order, _ float64, _ bool) (ledger.TradeResult, error) {
	f.lastQty = order.Quantity
	return f.result, f.err
}

type fakeAccounts struct {
	balance float64
}

func (f *fakeAccounts) Balance(context.Context, int64) (float64, error) { return f.balance, nil }
func (f *fakeAccounts) History(context.Context, int64, int) ([]ledger.HistoryEntry, error) {
	return nil, nil
}
func (f *fakeAccounts) OpenPositions(context.Context, int64) ([]ledger.Position, error) {
	return nil, nil
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Quotes == nil {
		cfg.Quotes = &fakeQuotes{}
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	w, body := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestQuoteEndpoint(t *testing.T) {
	quotes := &fakeQuotes{payload: market.QuotePayload{Ok: true, Pair: "COINBASE:BTCUSD", Value: fp(65000)}}
	s := newTestServer(t, ServerConfig{Quotes: quotes})

	w, body := doJSON(t, s, http.MethodGet, "/api/market/quote?pair=BTC/USD", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 65000.0, body["value"])
}

func TestQuoteEndpointFailureStatuses(t *testing.T) {
	cases := []struct {
		kind   market.ErrorKind
		status int
	}{
		{market.ErrUpstreamUnavailable, http.StatusBadGateway},
		{market.ErrInvalidResponse, http.StatusBadGateway},
		{market.ErrRefreshLockTimeout, http.StatusServiceUnavailable},
		{market.ErrCacheUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		quotes := &fakeQuotes{err: market.NewQuoteError(tc.kind, "boom", nil)}
		s := newTestServer(t, ServerConfig{Quotes: quotes})
		w, body := doJSON(t, s, http.MethodGet, "/api/market/quote?pair=BTC/USD", nil)
		assert.Equal(t, tc.status, w.Code, string(tc.kind))
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, string(tc.kind), body["error"])
	}
}

func TestPricesByPair(t *testing.T) {
	prices := &fakePrices{rows: map[string]quotedb.PriceRow{
		"GOLD": {Name: "Gold", Key: "GOLD", Value: fp(2400.5)},
	}}
	s := newTestServer(t, ServerConfig{Prices: prices})

	w, body := doJSON(t, s, http.MethodGet, "/api/prices?pair=gold", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	w, body = doJSON(t, s, http.MethodGet, "/api/prices?pair=%21%40%23", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_pair", body["error"])

	w, body = doJSON(t, s, http.MethodGet, "/api/prices?pair=platinum", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "pair_not_found", body["error"])
}

func TestPricesList(t *testing.T) {
	prices := &fakePrices{rows: map[string]quotedb.PriceRow{
		"GOLD":   {Name: "Gold", Key: "GOLD"},
		"SILVER": {Name: "Silver", Key: "SILVER"},
	}}
	s := newTestServer(t, ServerConfig{Prices: prices})

	w, body := doJSON(t, s, http.MethodGet, "/api/prices", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, body["count"])
}

func TestRefreshEndpoint(t *testing.T) {
	ref := &fakeRefresher{report: aggregator.Report{RunID: "run-1", RowsReceived: 10, RowsUpserted: 9, TookMS: 42}}
	s := newTestServer(t, ServerConfig{Refresher: ref})

	w, body := doJSON(t, s, http.MethodPost, "/api/prices/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10.0, body["rows_received"])
	assert.Equal(t, 9.0, body["rows_upserted"])

	ref.err = market.NewQuoteError(market.ErrUpstreamUnavailable, "down", nil)
	w, body = doJSON(t, s, http.MethodPost, "/api/prices/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(market.ErrUpstreamUnavailable), body["error"])
}

func TestTradeEndpoint(t *testing.T) {
	exec := &fakeExecutor{canPlace: true, result: ledger.TradeResult{Balance: 500, Price: 100, Operation: "T1", Opened: true}}
	quotes := &fakeQuotes{price: 100}
	s := newTestServer(t, ServerConfig{Quotes: quotes, Executor: exec})

	w, body := doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "buy", "quantity": 5,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 5.0, exec.lastQty)
}

func TestTradeEndpointRejections(t *testing.T) {
	exec := &fakeExecutor{canPlace: true}
	quotes := &fakeQuotes{price: 100}
	s := newTestServer(t, ServerConfig{Quotes: quotes, Executor: exec})

	w, body := doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "hold", "quantity": 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_side", body["error"])

	exec.canPlace = false
	w, body = doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "buy", "quantity": 5,
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", body["error"])

	exec.canPlace = true
	quotes.price = 0
	w, body = doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "buy", "quantity": 5,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "price_unavailable", body["error"])

	quotes.price = 100
	exec.err = ledger.ErrInsufficientFunds
	w, body = doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "buy", "quantity": 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_funds", body["error"])

	exec.err = ledger.ErrTradeLockTimeout
	w, body = doJSON(t, s, http.MethodPost, "/api/trades", map[string]any{
		"user_id": 1, "pair": "BTC/USD", "side": "buy", "quantity": 5,
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "trade_lock_timeout", body["error"])
}

func TestAccountEndpoints(t *testing.T) {
	s := newTestServer(t, ServerConfig{Accounts: &fakeAccounts{balance: 750.5}})

	w, body := doJSON(t, s, http.MethodGet, "/api/balance?user_id=7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 750.5, body["balance"])

	w, body = doJSON(t, s, http.MethodGet, "/api/balance?user_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_user_id", body["error"])

	w, _ = doJSON(t, s, http.MethodGet, "/api/positions?user_id=7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, s, http.MethodGet, "/api/trades/history?user_id=7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
