package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// WithRollback runs fn inside a transaction that is always rolled back,
// so repository code exercised through it leaves no trace in the
// database. Useful for testing the transaction-bound repository copies
// without polluting shared fixtures.
func WithRollback(t *testing.T, pool *pgxpool.Pool, fn func(tx pgx.Tx)) {
	t.Helper()

	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			t.Errorf("failed to rollback transaction: %v", rbErr)
		}
	}()

	fn(tx)
}
