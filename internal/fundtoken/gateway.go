package fundtoken

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundService/internal/chain"
	"fundService/internal/model"
)

// Backend is the subset of chain RPC used by the gateway. *chain.Client implements it.
type Backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Config holds gateway settings.
type Config struct {
	Contract       common.Address
	ChainID        *big.Int
	ReceiptTimeout time.Duration
}

// Gateway issues reads and writes against a deployed FundToken contract
// using one signing identity.
type Gateway struct {
	cfg     Config
	abi     abi.ABI
	backend Backend
	signer  *chain.Signer
	logger  *zap.Logger

	// sendMu orders nonce assignment and submission for the single signer.
	sendMu sync.Mutex
}

// NewGateway builds a Gateway. signer may be nil for a read-only gateway.
func NewGateway(cfg Config, backend Backend, signer *chain.Signer, logger *zap.Logger) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	parsed, err := FundTokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse fund token abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:     cfg,
		abi:     parsed,
		backend: backend,
		signer:  signer,
		logger:  logger,
	}, nil
}

// GetFundMetrics reads fund metrics and the share price from the contract.
func (g *Gateway) GetFundMetrics(ctx context.Context) (model.FundMetrics, error) {
	values, err := g.call(ctx, "getFundMetrics")
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: %w", model.ErrChainRead, err)
	}
	if len(values) < 3 {
		return model.FundMetrics{}, fmt.Errorf("%w: getFundMetrics returned %d values", model.ErrChainRead, len(values))
	}
	totalAssets, err := asBigInt(values[0])
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: total asset value: %w", model.ErrChainRead, err)
	}
	supply, err := asBigInt(values[1])
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: shares supply: %w", model.ErrChainRead, err)
	}
	updated, err := asBigInt(values[2])
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: last update time: %w", model.ErrChainRead, err)
	}
	if !updated.IsInt64() {
		return model.FundMetrics{}, fmt.Errorf("%w: last update time overflow: %s", model.ErrChainRead, updated)
	}

	values, err = g.call(ctx, "getSharePrice")
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: %w", model.ErrChainRead, err)
	}
	price, err := asBigInt(values[0])
	if err != nil {
		return model.FundMetrics{}, fmt.Errorf("%w: share price: %w", model.ErrChainRead, err)
	}

	return model.FundMetrics{
		TotalAssetValue: model.FromUnits(totalAssets),
		SharesSupply:    model.FromUnits(supply),
		LastUpdateTime:  updated.Int64(),
		SharePrice:      model.FromUnits(price),
	}, nil
}

// GetBalance returns the share balance of investor.
func (g *Gateway) GetBalance(ctx context.Context, investor string) (decimal.Decimal, error) {
	addr, err := parseInvestor(investor)
	if err != nil {
		return decimal.Zero, err
	}
	values, err := g.call(ctx, "balanceOf", addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", model.ErrChainRead, err)
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance: %w", model.ErrChainRead, err)
	}
	return model.FromUnits(balance), nil
}

// Invest submits invest(investor, usdAmount) and waits for confirmation.
func (g *Gateway) Invest(ctx context.Context, investor string, usdAmount decimal.Decimal) (string, error) {
	return g.submit(ctx, "invest", investor, usdAmount)
}

// Redeem submits redeem(investor, shares) and waits for confirmation.
func (g *Gateway) Redeem(ctx context.Context, investor string, shares decimal.Decimal) (string, error) {
	return g.submit(ctx, "redeem", investor, shares)
}

func (g *Gateway) submit(ctx context.Context, method string, investor string, amount decimal.Decimal) (string, error) {
	if g.signer == nil {
		return "", fmt.Errorf("%w: %w: no signer configured", model.ErrChainWrite, model.ErrUnauthorized)
	}
	addr, err := parseInvestor(investor)
	if err != nil {
		return "", err
	}
	units, err := model.ToUnits(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", model.ErrChainWrite, model.ErrValidation, err)
	}

	data, err := g.abi.Pack(method, addr, units)
	if err != nil {
		return "", fmt.Errorf("%w: pack %s: %w", model.ErrChainWrite, method, err)
	}

	msg := ethereum.CallMsg{From: g.signer.Address(), To: &g.cfg.Contract, Data: data}
	gas, err := g.backend.EstimateGas(ctx, msg)
	if err != nil {
		return "", writeError("estimate gas", err)
	}

	tx, err := g.send(ctx, data, gas)
	if err != nil {
		return "", err
	}

	g.logger.Info("contract call submitted",
		zap.String("method", method),
		zap.String("investor", addr.Hex()),
		zap.String("units", units.String()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("gas", gas),
	)

	waitCtx := ctx
	if g.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.cfg.ReceiptTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, g.backend, tx)
	if err != nil {
		return "", &model.UnconfirmedError{TxHash: tx.Hash().Hex(), Err: writeError("wait receipt", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %w: transaction %s reverted", model.ErrChainWrite, model.ErrRejected, tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

func (g *Gateway) send(ctx context.Context, data []byte, gas uint64) (*types.Transaction, error) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	from := g.signer.Address()
	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, writeError("pending nonce", err)
	}

	unsigned, err := g.buildTx(ctx, nonce, gas, data)
	if err != nil {
		return nil, err
	}
	signed, err := g.signer.Sign(unsigned, g.cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %w", model.ErrChainWrite, err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, writeError("send transaction", err)
	}
	return signed, nil
}

func (g *Gateway) buildTx(ctx context.Context, nonce uint64, gas uint64, data []byte) (*types.Transaction, error) {
	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, writeError("latest header", err)
	}

	to := g.cfg.Contract
	if head.BaseFee == nil {
		gasPrice, err := g.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, writeError("gas price", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}), nil
	}

	tip, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, writeError("gas tip", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &g.cfg.Contract, Data: data}
	if g.signer != nil {
		msg.From = g.signer.Address()
	}
	resp, err := g.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := g.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func parseInvestor(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: invalid investor address: %q", model.ErrValidation, input)
	}
	return common.HexToAddress(input), nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
