package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txRetryAttempts = 3

// IsSerializationFailure reports whether err is a transient conflict that is
// safe to retry: serialization_failure (40001) or deadlock_detected (40P01).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// WithTx runs fn inside a transaction, retrying a bounded number of times on
// serialization failures. Any other error rolls back and is returned as-is.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= txRetryAttempts; attempt++ {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			if IsSerializationFailure(err) {
				lastErr = err
				slog.Debug("retrying transaction after serialization failure", "attempt", attempt)
				time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if IsSerializationFailure(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	}

	return fmt.Errorf("transaction conflicted after %d attempts: %w", txRetryAttempts, lastErr)
}
