package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fundService/internal/model"
)

const uniqueViolation = "23505"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fund_transactions (
	id               UUID PRIMARY KEY,
	investor_address TEXT NOT NULL,
	usd_amount       NUMERIC(18, 6) NOT NULL,
	shares           NUMERIC(18, 6) NOT NULL,
	share_price      NUMERIC(18, 6) NOT NULL,
	type             TEXT NOT NULL CHECK (type IN ('INVESTMENT', 'REDEMPTION')),
	transaction_hash TEXT NOT NULL UNIQUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fund_transactions_investor_idx
	ON fund_transactions (lower(investor_address), created_at DESC);
`

// Store provides Postgres persistence for the fund ledger.
type Store struct {
	pool  *pgxpool.Pool
	newID func() uuid.UUID
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, newID: uuid.New}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateTransaction inserts tx with a fresh id; created_at comes from the database.
func (s *Store) CreateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	if !tx.Type.Valid() {
		return model.Transaction{}, fmt.Errorf("%w: unknown transaction type %q", model.ErrValidation, tx.Type)
	}
	for name, value := range map[string]decimal.Decimal{
		"usd amount":  tx.USDAmount,
		"shares":      tx.Shares,
		"share price": tx.SharePrice,
	} {
		if err := model.CheckScale(value); err != nil {
			return model.Transaction{}, fmt.Errorf("%w: %s: %w", model.ErrValidation, name, err)
		}
	}

	tx.ID = s.newID().String()
	var createdAt time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO fund_transactions (
			id, investor_address, usd_amount, shares, share_price, type, transaction_hash
		) VALUES ($1::text::uuid, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6, $7)
		RETURNING created_at
	`,
		tx.ID,
		tx.InvestorAddress,
		tx.USDAmount.String(),
		tx.Shares.String(),
		tx.SharePrice.String(),
		string(tx.Type),
		tx.TransactionHash,
	).Scan(&createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Transaction{}, fmt.Errorf("%w: transaction %s already recorded", model.ErrConflict, tx.TransactionHash)
		}
		return model.Transaction{}, err
	}
	tx.CreatedAt = createdAt.UTC()
	return tx, nil
}

// ListTransactions returns an investor's records, newest first.
func (s *Store) ListTransactions(ctx context.Context, investor string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, investor_address, usd_amount::text, shares::text, share_price::text,
			type, transaction_hash, created_at
		FROM fund_transactions
		WHERE lower(investor_address) = lower($1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`, investor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var (
		tx                       model.Transaction
		usd, shares, price, kind string
	)
	if err := row.Scan(&tx.ID, &tx.InvestorAddress, &usd, &shares, &price, &kind, &tx.TransactionHash, &tx.CreatedAt); err != nil {
		return model.Transaction{}, err
	}

	var err error
	if tx.USDAmount, err = decimal.NewFromString(usd); err != nil {
		return model.Transaction{}, fmt.Errorf("parse usd amount: %w", err)
	}
	if tx.Shares, err = decimal.NewFromString(shares); err != nil {
		return model.Transaction{}, fmt.Errorf("parse shares: %w", err)
	}
	if tx.SharePrice, err = decimal.NewFromString(price); err != nil {
		return model.Transaction{}, fmt.Errorf("parse share price: %w", err)
	}
	if tx.Type, err = model.ParseTransactionType(kind); err != nil {
		return model.Transaction{}, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}
