package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbfee/internal/arbitrage"
	"arbfee/internal/config"
	"arbfee/internal/exchange"
	"arbfee/internal/fees"
	"arbfee/internal/metrics"
	"arbfee/internal/model"
)

const schedule = `
exa:
  trading_fee_buy: 0.001
  trading_fee_sell: 0.001
  payment_fee: 0.0015
  withdrawal_fee:
    crypto:
      BTC: 0.0004
    fiat:
      USD:
        wire: 5
exb:
  trading_fee_buy: 0.001
  trading_fee_sell: 0.001
  withdrawal_fee:
    crypto:
      BTC: 0.0004
    fiat:
      USD:
        wire: 5
`

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) SaveScanResult(ctx context.Context, rec model.ScanRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRepository) ListByRun(ctx context.Context, runID string) ([]model.ScanRecord, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]model.ScanRecord), args.Error(1)
}

func newTestServer(t *testing.T, repo *MockRepository) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := exchange.ParseSchedule(strings.NewReader(schedule))
	require.NoError(t, err)
	calc := fees.NewCalculator(s)
	srv := NewServer(logger, calc,
		arbitrage.NewScanner(logger, calc, config.ScanConfig{}),
		arbitrage.NewSimulator(calc),
		metrics.NewRegistry(logger),
		nil,
	)
	if repo != nil {
		srv.repo = repo
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestFeesEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := post(t, ts.URL+"/v1/fees", `{
		"buy_exchange": "EXA", "sell_exchange": "exb", "crypto": "BTC", "amount": 1,
		"buy_price": 100000, "sell_price": "100500", "withdrawal_currency": "BTC"
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "240.7", out["total_fees"])
	assert.Equal(t, "259.3", out["arbitrage_after_fees"])
	assert.Equal(t, "150", out["payment_fee"])

	resp, out = post(t, ts.URL+"/v1/fees", `{
		"buy_exchange": "exa", "sell_exchange": "exb", "crypto": "BTC", "amount": 1,
		"buy_price": 100, "sell_price": 110, "withdrawal_currency": "USD",
		"rates": {"usd": {"rate": 2, "timestamp": "2023-10-01T00:00:00Z"}}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10", out["withdrawal_fee"])

	resp, out = post(t, ts.URL+"/v1/fees", `{"buy_exchange": "nope", "sell_exchange": "exb", "amount": 1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, out["error"], "nope")

	resp, _ = post(t, ts.URL+"/v1/fees", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScanEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := post(t, ts.URL+"/v1/scan", `[
		{"column": "exa_USD", "value": "100"},
		{"column": "exb_USD", "value": "120"}
	]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "BUY@exa->SELL@exb", out["strategy"])
	assert.Equal(t, "20", out["arbitrage_pct"])

	resp, _ = post(t, ts.URL+"/v1/scan", `[{"column": "exa_EUR", "value": "100"}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSimulateEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := post(t, ts.URL+"/v1/simulate", `{"strategy": "BUY@exa->SELL@exb", "buy_price": 100, "sell_price": 120}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// 20 - (0.1 + 0.12 + 5)
	assert.Equal(t, "14.78", out["arbitrage_after_fees"])

	resp, out = post(t, ts.URL+"/v1/simulate", `{"strategy": "No profitable arbitrage"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", out["arbitrage_after_fees"])

	resp, _ = post(t, ts.URL+"/v1/simulate", `{"strategy": "BUY@exa SELL@exb"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExchangeEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/exchanges")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	assert.Equal(t, []string{"exa", "exb"}, names)

	resp, err = http.Get(ts.URL + "/v1/exchanges/EXA")
	require.NoError(t, err)
	var f exchange.FeeStructure
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	resp.Body.Close()
	assert.Equal(t, 0.0015, f.PaymentFee)
	assert.Equal(t, "wire", f.WithdrawalFee.Fiat["USD"][0].Method)

	resp, err = http.Get(ts.URL + "/v1/exchanges/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/runs/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	repo := new(MockRepository)
	repo.On("ListByRun", mock.Anything, "abc").Return([]model.ScanRecord{
		{RunID: "abc", Row: 0, Result: model.ScanResult{Strategy: "BUY@exa->SELL@exb", TotalFees: decimal.NewFromInt(3)}},
	}, nil).Once()
	ts = newTestServer(t, repo)

	resp, err = http.Get(ts.URL + "/v1/runs/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []model.ScanRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "BUY@exa->SELL@exb", recs[0].Result.Strategy)
	repo.AssertExpectations(t)
}

func TestScanStream(t *testing.T) {
	ts := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/scan"

	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`[{"column":"exa_USD","value":"100"},{"column":"exb_USD","value":"101"}]`)))
	var res model.ScanResult
	require.NoError(t, c.ReadJSON(&res))
	assert.Equal(t, arbitrage.NoProfitableArbitrage, res.Strategy)
	assert.Equal(t, "exa", res.BuyExchange)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	var e errorResponse
	require.NoError(t, c.ReadJSON(&e))
	assert.Contains(t, e.Error, "invalid price row")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`[{"column":"zzz_USD","value":"1"}]`)))
	require.NoError(t, c.ReadJSON(&e))
	assert.Contains(t, e.Error, "exchange not found")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fee_calculations_total")
}
