package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fundService/internal/model"
)

// setupTestStore starts a PostgreSQL container and returns a store with the schema applied.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("fund_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err, "failed to create store")
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	// Schema creation is idempotent.
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func sampleTransaction(hash string) model.Transaction {
	return model.Transaction{
		InvestorAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		USDAmount:       decimal.RequireFromString("333.333333"),
		Shares:          decimal.RequireFromString("222.222222"),
		SharePrice:      decimal.RequireFromString("1.5"),
		Type:            model.TransactionInvestment,
		TransactionHash: hash,
	}
}

func TestStoreCreateTransaction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.CreateTransaction(ctx, sampleTransaction("0xaaa"))
	require.NoError(t, err)

	_, err = uuid.Parse(created.ID)
	require.NoError(t, err, "id should be a uuid")
	assert.False(t, created.CreatedAt.IsZero())

	listed, err := store.ListTransactions(ctx, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	got := listed[0]
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.USDAmount.Equal(decimal.RequireFromString("333.333333")), "usd amount %s", got.USDAmount)
	assert.True(t, got.Shares.Equal(decimal.RequireFromString("222.222222")), "shares %s", got.Shares)
	assert.True(t, got.SharePrice.Equal(decimal.RequireFromString("1.5")), "share price %s", got.SharePrice)
	assert.Equal(t, model.TransactionInvestment, got.Type)
	assert.Equal(t, "0xaaa", got.TransactionHash)
}

func TestStoreAssignsUniqueIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.CreateTransaction(ctx, sampleTransaction("0x01"))
	require.NoError(t, err)
	second, err := store.CreateTransaction(ctx, sampleTransaction("0x02"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	listed, err := store.ListTransactions(ctx, first.InvestorAddress, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestStoreDuplicateHashConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTransaction(ctx, sampleTransaction("0xdup"))
	require.NoError(t, err)

	_, err = store.CreateTransaction(ctx, sampleTransaction("0xdup"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict), "expected conflict, got %v", err)
}

func TestStoreRejectsInvalidRecord(t *testing.T) {
	store := &Store{newID: uuid.New}

	tx := sampleTransaction("0xbad")
	tx.Type = "TRANSFER"
	_, err := store.CreateTransaction(context.Background(), tx)
	assert.True(t, errors.Is(err, model.ErrValidation))

	tx = sampleTransaction("0xbad")
	tx.Shares = decimal.RequireFromString("0.0000001")
	_, err = store.CreateTransaction(context.Background(), tx)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
