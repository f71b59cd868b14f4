package model

import "errors"

// Error kinds shared by the gateway, orchestrator, and HTTP boundary.
// Callers classify failures with errors.Is; one error may carry several kinds.
var (
	ErrChainRead          = errors.New("chain read failed")
	ErrChainWrite         = errors.New("chain write failed")
	ErrMetricsUnavailable = errors.New("fund metrics unavailable")
	ErrInvestmentFailed   = errors.New("investment failed")
	ErrRedemptionFailed   = errors.New("redemption failed")
	ErrLedgerWrite        = errors.New("ledger write failed")
	ErrValidation         = errors.New("invalid request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRejected           = errors.New("rejected by contract")
)

// UnconfirmedError reports a transaction that was broadcast but whose receipt
// was never observed. It may still be mined.
type UnconfirmedError struct {
	TxHash string
	Err    error
}

func (e *UnconfirmedError) Error() string {
	return "transaction " + e.TxHash + " unconfirmed: " + e.Err.Error()
}

func (e *UnconfirmedError) Unwrap() error {
	return e.Err
}
