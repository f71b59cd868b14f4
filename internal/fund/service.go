package fund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundService/internal/cache"
	"fundService/internal/metrics"
	"fundService/internal/model"
	"fundService/internal/storage"
)

const (
	// MetricsCacheKey is the only key the service stores in the cache.
	MetricsCacheKey = "fundMetrics"
	// DefaultMetricsTTL is how long cached metrics are served.
	DefaultMetricsTTL = 300 * time.Second

	defaultListLimit = 50
	maxListLimit     = 500
)

// Stages an invest or redeem call passes through, in order.
const (
	StageStart            = "start"
	StageMetricsResolved  = "metrics_resolved"
	StageChainConfirmed   = "chain_confirmed"
	StagePersisted        = "persisted"
	StageCacheInvalidated = "cache_invalidated"
)

// Outcomes of an invest or redeem call, used as metric labels.
const (
	OutcomeMetricsFailed    = "metrics_failed"
	OutcomeChainFailed      = "chain_failed"
	OutcomeChainUnconfirmed = "chain_unconfirmed"
	OutcomeLedgerFailed     = "ledger_failed"
	OutcomeCacheInvalidated = "cache_invalidated"
)

// Gateway is the chain side of the fund. *fundtoken.Gateway implements it.
type Gateway interface {
	GetFundMetrics(ctx context.Context) (model.FundMetrics, error)
	Invest(ctx context.Context, investor string, usdAmount decimal.Decimal) (string, error)
	Redeem(ctx context.Context, investor string, shares decimal.Decimal) (string, error)
	GetBalance(ctx context.Context, investor string) (decimal.Decimal, error)
}

// Config holds orchestrator settings.
type Config struct {
	MetricsTTL time.Duration
	// Serialize runs metrics read, chain call, and persist of each invest or
	// redeem under one process-wide lock.
	Serialize bool
}

// Service coordinates the metrics cache, the chain gateway, and the ledger.
type Service struct {
	cfg     Config
	gateway Gateway
	cache   cache.Cache
	ledger  storage.Ledger
	journal storage.Journal
	metrics *metrics.Metrics
	logger  *zap.Logger

	opMu     sync.Mutex
	inFlight sync.WaitGroup
}

// NewService builds a Service with its dependencies.
func NewService(cfg Config, gateway Gateway, metricsCache cache.Cache, ledger storage.Ledger, logger *zap.Logger) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if metricsCache == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if cfg.MetricsTTL <= 0 {
		cfg.MetricsTTL = DefaultMetricsTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		gateway: gateway,
		cache:   metricsCache,
		ledger:  ledger,
		logger:  logger,
	}, nil
}

// WithJournal sets where unsaved records go when a ledger write fails.
func (s *Service) WithJournal(journal storage.Journal) *Service {
	s.journal = journal
	return s
}

// WithMetrics attaches prometheus collectors.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// GetFundMetrics returns cached metrics, reading through to the chain on a miss.
func (s *Service) GetFundMetrics(ctx context.Context) (model.FundMetrics, error) {
	if cached, ok := s.cachedMetrics(ctx); ok {
		return cached, nil
	}

	fresh, err := s.gateway.GetFundMetrics(ctx)
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: %w", model.ErrMetricsUnavailable, err)
	}

	if raw, err := json.Marshal(fresh); err != nil {
		s.logger.Warn("encode fund metrics failed", zap.Error(err))
	} else if err := s.cache.Set(ctx, MetricsCacheKey, raw, s.cfg.MetricsTTL); err != nil {
		s.logger.Warn("cache fund metrics failed", zap.Error(err))
	}
	return fresh, nil
}

func (s *Service) cachedMetrics(ctx context.Context) (model.FundMetrics, bool) {
	raw, ok, err := s.cache.Get(ctx, MetricsCacheKey)
	if err != nil {
		s.metrics.CacheLookup("error")
		s.logger.Warn("read cached fund metrics failed", zap.Error(err))
		return model.FundMetrics{}, false
	}
	if !ok {
		s.metrics.CacheLookup("miss")
		return model.FundMetrics{}, false
	}

	var cached model.FundMetrics
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.metrics.CacheLookup("error")
		s.logger.Warn("discarding undecodable cached fund metrics", zap.Error(err))
		return model.FundMetrics{}, false
	}
	s.metrics.CacheLookup("hit")
	return cached, true
}

// Invest records an investment of usdAmount at the current share price.
func (s *Service) Invest(ctx context.Context, investor string, usdAmount decimal.Decimal) (model.Transaction, error) {
	return s.execute(ctx, operation{
		kind:    model.TransactionInvestment,
		failure: model.ErrInvestmentFailed,
		submit:  s.gateway.Invest,
		price: func(amount, sharePrice decimal.Decimal) (usd, shares decimal.Decimal) {
			return amount, amount.DivRound(sharePrice, model.Scale)
		},
	}, investor, usdAmount)
}

// Redeem records a redemption of shares at the current share price.
func (s *Service) Redeem(ctx context.Context, investor string, shares decimal.Decimal) (model.Transaction, error) {
	return s.execute(ctx, operation{
		kind:    model.TransactionRedemption,
		failure: model.ErrRedemptionFailed,
		submit:  s.gateway.Redeem,
		price: func(amount, sharePrice decimal.Decimal) (usd, shares decimal.Decimal) {
			return amount.Mul(sharePrice).Round(model.Scale), amount
		},
	}, investor, shares)
}

// GetBalance returns the on-chain share balance of investor.
func (s *Service) GetBalance(ctx context.Context, investor string) (decimal.Decimal, error) {
	return s.gateway.GetBalance(ctx, investor)
}

// ListTransactions returns ledger records for investor, newest first.
func (s *Service) ListTransactions(ctx context.Context, investor string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.ledger.ListTransactions(ctx, investor, limit)
}

type operation struct {
	kind    model.TransactionType
	failure error
	submit  func(ctx context.Context, investor string, amount decimal.Decimal) (string, error)
	price   func(amount, sharePrice decimal.Decimal) (usd, shares decimal.Decimal)
}

// execute runs metrics -> chain call -> persist -> invalidate. A chain call,
// once started, is not abandoned when the caller goes away.
func (s *Service) execute(ctx context.Context, op operation, investor string, amount decimal.Decimal) (model.Transaction, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	ctx = context.WithoutCancel(ctx)
	if s.cfg.Serialize {
		s.opMu.Lock()
		defer s.opMu.Unlock()
	}

	log := s.logger.With(
		zap.String("type", string(op.kind)),
		zap.String("investor", investor),
		zap.String("amount", amount.String()),
	)

	fundMetrics, err := s.GetFundMetrics(ctx)
	if err != nil {
		s.finish(log, op.kind, StageStart, OutcomeMetricsFailed, err)
		return model.Transaction{}, fmt.Errorf("%w: %w", op.failure, err)
	}
	if !fundMetrics.SharePrice.IsPositive() {
		err := fmt.Errorf("%w: share price is %s", model.ErrMetricsUnavailable, fundMetrics.SharePrice)
		s.finish(log, op.kind, StageStart, OutcomeMetricsFailed, err)
		return model.Transaction{}, fmt.Errorf("%w: %w", op.failure, err)
	}
	log.Debug("stage reached", zap.String("stage", StageMetricsResolved), zap.String("share_price", fundMetrics.SharePrice.String()))

	usd, shares := op.price(amount, fundMetrics.SharePrice)
	record := model.Transaction{
		InvestorAddress: investor,
		USDAmount:       usd,
		Shares:          shares,
		SharePrice:      fundMetrics.SharePrice,
		Type:            op.kind,
	}

	txHash, err := op.submit(ctx, investor, amount)
	if err != nil {
		var unconfirmed *model.UnconfirmedError
		if errors.As(err, &unconfirmed) {
			// Broadcast but unobserved: the transfer may still land.
			record.TransactionHash = unconfirmed.TxHash
			s.recordUnreconciled(log.With(zap.String("tx_hash", unconfirmed.TxHash)), record, err)
			s.invalidate(ctx, log)
			s.finish(log, op.kind, StageMetricsResolved, OutcomeChainUnconfirmed, err)
			return model.Transaction{}, fmt.Errorf("%w: %w", op.failure, err)
		}
		s.finish(log, op.kind, StageMetricsResolved, OutcomeChainFailed, err)
		return model.Transaction{}, fmt.Errorf("%w: %w", op.failure, err)
	}
	record.TransactionHash = txHash
	log = log.With(zap.String("tx_hash", txHash))
	log.Debug("stage reached", zap.String("stage", StageChainConfirmed))

	saved, err := s.ledger.CreateTransaction(ctx, record)
	if err != nil {
		s.recordUnreconciled(log, record, err)
		// The chain state changed, so the cached share price is stale either way.
		s.invalidate(ctx, log)
		s.finish(log, op.kind, StageChainConfirmed, OutcomeLedgerFailed, err)
		return model.Transaction{}, &LedgerWriteError{Transaction: record, Err: err}
	}
	log.Debug("stage reached", zap.String("stage", StagePersisted))

	s.invalidate(ctx, log)
	s.finish(log, op.kind, StageCacheInvalidated, OutcomeCacheInvalidated, nil)
	return saved, nil
}

// Wait blocks until every in-flight invest and redeem has returned, or ctx is done.
// Call it after the HTTP server stops accepting requests and before closing the ledger.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) invalidate(ctx context.Context, log *zap.Logger) {
	if err := s.cache.Delete(ctx, MetricsCacheKey); err != nil {
		log.Warn("invalidate cached fund metrics failed", zap.Error(err))
	}
}

func (s *Service) recordUnreconciled(log *zap.Logger, record model.Transaction, cause error) {
	log.Error("ledger write failed after chain confirmation", zap.Error(cause))
	if s.journal == nil {
		return
	}
	if err := s.journal.PutUnreconciled(record, cause); err != nil {
		log.Error("journal unreconciled transaction failed", zap.Error(err))
	}
}

func (s *Service) finish(log *zap.Logger, kind model.TransactionType, stage, outcome string, err error) {
	s.metrics.Operation(string(kind), outcome)
	if err != nil {
		log.Warn("fund operation failed", zap.String("stage", stage), zap.String("outcome", outcome), zap.Error(err))
		return
	}
	log.Info("fund operation completed", zap.String("stage", stage), zap.String("outcome", outcome))
}
