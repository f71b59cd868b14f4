package storage

import (
	"context"

	"fundService/internal/model"
)

// Ledger is the append-only store of fund transactions.
type Ledger interface {
	// CreateTransaction assigns id and creation time and persists tx.
	CreateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	// ListTransactions returns the newest records for an investor, up to limit.
	ListTransactions(ctx context.Context, investor string, limit int) ([]model.Transaction, error)
}

// Journal records transactions whose chain effect is confirmed but whose
// ledger write failed.
type Journal interface {
	PutUnreconciled(tx model.Transaction, cause error) error
}
