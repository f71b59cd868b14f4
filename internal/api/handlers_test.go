package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundService/internal/fund"
	"fundService/internal/metrics"
	"fundService/internal/model"
)

const investor = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

type fakeService struct {
	metrics     model.FundMetrics
	metricsErr  error
	tx          model.Transaction
	opErr       error
	balance     decimal.Decimal
	txs         []model.Transaction
	calls       int
	lastAmount  decimal.Decimal
	lastAddress string
	lastLimit   int
}

func (f *fakeService) GetFundMetrics(context.Context) (model.FundMetrics, error) {
	f.calls++
	return f.metrics, f.metricsErr
}

func (f *fakeService) Invest(_ context.Context, addr string, amount decimal.Decimal) (model.Transaction, error) {
	f.calls++
	f.lastAddress, f.lastAmount = addr, amount
	return f.tx, f.opErr
}

func (f *fakeService) Redeem(_ context.Context, addr string, shares decimal.Decimal) (model.Transaction, error) {
	f.calls++
	f.lastAddress, f.lastAmount = addr, shares
	return f.tx, f.opErr
}

func (f *fakeService) GetBalance(_ context.Context, addr string) (decimal.Decimal, error) {
	f.calls++
	f.lastAddress = addr
	return f.balance, f.opErr
}

func (f *fakeService) ListTransactions(_ context.Context, addr string, limit int) ([]model.Transaction, error) {
	f.calls++
	f.lastAddress, f.lastLimit = addr, limit
	return f.txs, f.opErr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestGetMetrics(t *testing.T) {
	svc := &fakeService{metrics: model.FundMetrics{
		TotalAssetValue: decimal.RequireFromString("1000"),
		SharesSupply:    decimal.RequireFromString("1000"),
		LastUpdateTime:  1700000000,
		SharePrice:      decimal.RequireFromString("1"),
	}}
	rec := do(t, NewRouter(svc, Options{}), http.MethodGet, "/api/fund/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got model.FundMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.SharePrice.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1700000000), got.LastUpdateTime)
}

func TestGetMetricsUnavailable(t *testing.T) {
	svc := &fakeService{metricsErr: fmt.Errorf("%w: %w: rpc down", model.ErrMetricsUnavailable, model.ErrChainRead)}
	rec := do(t, NewRouter(svc, Options{}), http.MethodGet, "/api/fund/metrics", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "rpc down")
}

func TestInvest(t *testing.T) {
	svc := &fakeService{tx: model.Transaction{
		ID:              "id-1",
		InvestorAddress: investor,
		USDAmount:       decimal.RequireFromString("500"),
		Shares:          decimal.RequireFromString("500"),
		SharePrice:      decimal.RequireFromString("1"),
		Type:            model.TransactionInvestment,
		TransactionHash: "0xabc",
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}}
	body := fmt.Sprintf(`{"investorAddress":%q,"usdAmount":500}`, investor)
	rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/fund/invest", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, investor, svc.lastAddress)
	assert.True(t, svc.lastAmount.Equal(decimal.NewFromInt(500)))

	var got model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0xabc", got.TransactionHash)
	assert.Equal(t, model.TransactionInvestment, got.Type)
}

func TestInvestAcceptsStringAmount(t *testing.T) {
	svc := &fakeService{}
	body := fmt.Sprintf(`{"investorAddress":%q,"usdAmount":"1000.5"}`, investor)
	rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/fund/invest", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.lastAmount.Equal(decimal.RequireFromString("1000.5")))
}

func TestRedeem(t *testing.T) {
	svc := &fakeService{tx: model.Transaction{Type: model.TransactionRedemption, TransactionHash: "0xdef"}}
	body := fmt.Sprintf(`{"investorAddress":%q,"shares":200}`, investor)
	rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/fund/redeem", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.lastAmount.Equal(decimal.NewFromInt(200)))
}

func TestOperationValidation(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		want string
	}{
		{"missing usd amount", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q}`, investor), "Missing required parameters"},
		{"missing address", "/api/fund/invest", `{"usdAmount":10}`, "Missing required parameters"},
		{"zero amount", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q,"usdAmount":0}`, investor), "Missing required parameters"},
		{"null amount", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q,"usdAmount":null}`, investor), "Missing required parameters"},
		{"empty body", "/api/fund/invest", "", "Missing required parameters"},
		{"bad address", "/api/fund/invest", `{"investorAddress":"0x123","usdAmount":10}`, "invalid investor address"},
		{"negative amount", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q,"usdAmount":-1}`, investor), "must be positive"},
		{"too many decimals", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q,"usdAmount":"1.0000001"}`, investor), "decimal places"},
		{"malformed json", "/api/fund/invest", `{"investorAddress":`, "invalid request body"},
		{"non numeric amount", "/api/fund/invest", fmt.Sprintf(`{"investorAddress":%q,"usdAmount":"abc"}`, investor), "invalid request body"},
		{"missing shares", "/api/fund/redeem", fmt.Sprintf(`{"investorAddress":%q}`, investor), "Missing required parameters"},
		{"negative shares", "/api/fund/redeem", fmt.Sprintf(`{"investorAddress":%q,"shares":-5}`, investor), "must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			var req *http.Request
			if tc.body == "" {
				req = httptest.NewRequest(http.MethodPost, tc.path, http.NoBody)
			} else {
				req = httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			}
			rec := httptest.NewRecorder()
			NewRouter(svc, Options{}).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tc.want)
			assert.Equal(t, 0, svc.calls, "orchestrator must not be called")
		})
	}
}

func TestOperationErrorStatus(t *testing.T) {
	ledgerErr := &fund.LedgerWriteError{
		Transaction: model.Transaction{TransactionHash: "0xabc"},
		Err:         fmt.Errorf("%w: duplicate", model.ErrConflict),
	}
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: bad", model.ErrValidation), http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("%w: %w: %w", model.ErrInvestmentFailed, model.ErrChainWrite, model.ErrUnauthorized), http.StatusUnauthorized},
		{"rejected", fmt.Errorf("%w: %w: %w", model.ErrInvestmentFailed, model.ErrChainWrite, model.ErrRejected), http.StatusConflict},
		{"conflict", fmt.Errorf("%w: dup", model.ErrConflict), http.StatusConflict},
		{"not found", fmt.Errorf("%w: gone", model.ErrNotFound), http.StatusNotFound},
		{"ledger write wins over conflict", ledgerErr, http.StatusInternalServerError},
		{"chain write", fmt.Errorf("%w: %w: timeout", model.ErrInvestmentFailed, model.ErrChainWrite), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{opErr: tc.err}
			body := fmt.Sprintf(`{"investorAddress":%q,"usdAmount":10}`, investor)
			rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/fund/invest", body)

			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.err.Error(), errorMessage(t, rec))
		})
	}
}

func TestGetBalance(t *testing.T) {
	svc := &fakeService{balance: decimal.RequireFromString("42.5")}
	rec := do(t, NewRouter(svc, Options{}), http.MethodGet, "/api/fund/balance/"+investor, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, investor, got.Address)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("42.5")))

	rec = do(t, NewRouter(svc, Options{}), http.MethodGet, "/api/fund/balance/nothex", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTransactions(t *testing.T) {
	svc := &fakeService{txs: []model.Transaction{{ID: "a"}, {ID: "b"}}}
	router := NewRouter(svc, Options{})

	rec := do(t, router, http.MethodGet, "/api/fund/transactions/"+investor+"?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.lastLimit)
	var got []model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = do(t, router, http.MethodGet, "/api/fund/transactions/"+investor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.lastLimit)

	rec = do(t, router, http.MethodGet, "/api/fund/transactions/"+investor+"?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	head := func(context.Context) (uint64, error) { return 1234, nil }
	rec := do(t, NewRouter(&fakeService{}, Options{Head: head}), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, uint64(1234), got.ChainHead)

	down := func(context.Context) (uint64, error) { return 0, errors.New("dial tcp: refused") }
	rec = do(t, NewRouter(&fakeService{}, Options{Head: down}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNotFound(t *testing.T) {
	router := NewRouter(&fakeService{}, Options{})

	rec := do(t, router, http.MethodGet, "/api/fund/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", errorMessage(t, rec))

	rec = do(t, router, http.MethodGet, "/api/fund/invest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	router := NewRouter(&fakeService{}, Options{Metrics: m, Gatherer: reg})

	rec := do(t, router, http.MethodGet, "/api/fund/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fund_http_requests_total{method="GET",route="/api/fund/metrics",status="200"} 1`)
}
