package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ErrSerialization reports that a repeatable-read transaction lost a race
// with a concurrent writer. Callers translate it into their own conflict error.
var ErrSerialization = errors.New("platform/db: serialization failure")

// WithTx executes fn within a repeatable-read transaction. The transaction is
// rolled back when fn fails; serialization failures from fn or from commit are
// reported as ErrSerialization.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func classify(err error) error {
	if shared.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return err
}
