package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundService/internal/metrics"
	"fundService/internal/model"
)

// FundService is the orchestrator surface exposed over HTTP. *fund.Service implements it.
type FundService interface {
	GetFundMetrics(ctx context.Context) (model.FundMetrics, error)
	Invest(ctx context.Context, investor string, usdAmount decimal.Decimal) (model.Transaction, error)
	Redeem(ctx context.Context, investor string, shares decimal.Decimal) (model.Transaction, error)
	GetBalance(ctx context.Context, investor string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, investor string, limit int) ([]model.Transaction, error)
}

// ChainHead reports the latest block number of the connected chain.
type ChainHead func(ctx context.Context) (uint64, error)

// Options configures optional router dependencies.
type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Head     ChainHead
}

type handler struct {
	svc    FundService
	head   ChainHead
	logger *zap.Logger
}

// NewRouter builds the HTTP routes for the fund API.
func NewRouter(svc FundService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: svc, head: opts.Head, logger: logger}

	r := mux.NewRouter()
	r.Use(observe(logger, opts.Metrics))

	fund := r.PathPrefix("/api/fund").Subrouter()
	fund.HandleFunc("/metrics", h.getMetrics).Methods(http.MethodGet)
	fund.HandleFunc("/invest", h.invest).Methods(http.MethodPost)
	fund.HandleFunc("/redeem", h.redeem).Methods(http.MethodPost)
	fund.HandleFunc("/balance/{address}", h.getBalance).Methods(http.MethodGet)
	fund.HandleFunc("/transactions/{address}", h.listTransactions).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	return r
}
