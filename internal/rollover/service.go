package rollover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/metrics"
)

// Service resets elapsed billing periods and stale daily counters. Both
// operations are single UPDATE statements, so reruns and concurrent
// invocations are harmless.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a rollover Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// RolloverElapsedPeriods zeroes the monthly counters of every ledger whose
// period has ended and moves its window to the calendar month containing
// now. Ledgers mid-period are untouched, so running this twice is a no-op.
// Returns the number of ledgers rolled over.
func (s *Service) RolloverElapsedPeriods(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quota_ledgers SET
		   tokens_used = 0,
		   requests_used = 0,
		   cost_used = 0,
		   daily_requests_used = 0,
		   current_period_start = date_trunc('month', NOW()),
		   current_period_end = date_trunc('month', NOW()) + interval '1 month',
		   last_daily_reset = NOW(),
		   updated_at = NOW()
		 WHERE current_period_end <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("rolling over elapsed periods: %w", err)
	}

	count := tag.RowsAffected()
	if count > 0 {
		metrics.LedgerRolloversTotal.Add(float64(count))
		s.logger.Info("rolled over quota ledgers", "count", count)
	}
	return count, nil
}

// ResetDailyCounters zeroes daily_requests_used on every ledger whose last
// daily reset predates today. The gate also does this lazily per account;
// the bulk pass keeps idle accounts from reporting stale daily usage.
func (s *Service) ResetDailyCounters(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quota_ledgers SET
		   daily_requests_used = 0,
		   last_daily_reset = NOW(),
		   updated_at = NOW()
		 WHERE last_daily_reset < date_trunc('day', NOW())`)
	if err != nil {
		return 0, fmt.Errorf("resetting daily counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Run executes one full maintenance pass: period rollovers first, then the
// daily sweep.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.RolloverElapsedPeriods(ctx); err != nil {
		return err
	}
	if _, err := s.ResetDailyCounters(ctx); err != nil {
		return err
	}
	return nil
}
