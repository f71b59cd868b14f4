package fund

import (
	"fmt"

	"fundService/internal/model"
)

// LedgerWriteError reports a confirmed chain effect whose ledger record could
// not be saved. Transaction holds the unsaved record for reconciliation.
type LedgerWriteError struct {
	Transaction model.Transaction
	Err         error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write failed for transaction %s: %v", e.Transaction.TransactionHash, e.Err)
}

func (e *LedgerWriteError) Unwrap() []error {
	return []error{model.ErrLedgerWrite, e.Err}
}
