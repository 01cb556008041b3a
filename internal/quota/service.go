package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/database"
	"github.com/insanelabs/witchcraft/internal/metrics"
)

// ReasonPerMinuteRate denies on the Redis fast path before the ledger is
// ever locked.
const ReasonPerMinuteRate = "per_minute_rate"

// AlertSink is notified inside the gate's transaction with the
// post-decision ledger, and out of band when the per-minute limiter denies.
// Implemented by the alerts monitor.
type AlertSink interface {
	OnLedgerChange(ctx context.Context, q database.Querier, led *Ledger) error
	OnRateLimited(ctx context.Context, accountID uuid.UUID)
}

// Service is the quota gate: the single writer of ledger usage counters.
type Service struct {
	pool    *pgxpool.Pool
	repo    *Repository
	limiter *RateLimiter
	alerts  AlertSink
}

// NewService creates a new quota Service. limiter and alerts may be nil.
func NewService(pool *pgxpool.Pool, repo *Repository, limiter *RateLimiter, alerts AlertSink) *Service {
	return &Service{
		pool:    pool,
		repo:    repo,
		limiter: limiter,
		alerts:  alerts,
	}
}

// TryConsume atomically checks the account's budgets and, if every limit
// fits, reserves tokenDelta tokens and costDelta cost against the ledger.
// A denial mutates nothing. The reservation is optimistic: it is not
// refunded if the metered operation later fails downstream.
func (s *Service) TryConsume(ctx context.Context, accountID uuid.UUID, tokenDelta int64, costDelta float64) (Decision, error) {
	if tokenDelta < 0 || costDelta < 0 {
		return Decision{}, fmt.Errorf("negative consumption deltas are not allowed")
	}

	// Redis per-minute fast path. Fails open on Redis errors so a cache
	// outage never blocks admitted traffic.
	if s.limiter != nil {
		allowed, err := s.limiter.CheckAndIncrement(ctx, accountID)
		if err != nil {
			slog.Warn("quota: rate limiter check failed, continuing to ledger", "error", err)
		} else if !allowed {
			if s.alerts != nil {
				s.alerts.OnRateLimited(ctx, accountID)
			}
			metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
			return Decision{Reason: ReasonPerMinuteRate}, nil
		}
	}

	var dec Decision
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		led, err := s.repo.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		// Lazy daily rollover, inside the row lock so the check below
		// sees fresh counters.
		reset, err := s.repo.ResetDailyIfStale(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if reset {
			led.DailyRequestsUsed = 0
		}

		dec = Decide(led, tokenDelta, costDelta)
		if !dec.Admitted {
			// The ledger did not move, but a spent daily budget still
			// needs its alert. The keyed insert keeps this idempotent.
			if s.alerts != nil {
				return s.alerts.OnLedgerChange(ctx, tx, led)
			}
			return nil
		}

		if err := s.repo.ApplyConsumption(ctx, tx, accountID, tokenDelta, costDelta); err != nil {
			return err
		}

		led.TokensUsed += tokenDelta
		led.RequestsUsed++
		led.DailyRequestsUsed++
		led.CostUsed += costDelta

		if s.alerts != nil {
			return s.alerts.OnLedgerChange(ctx, tx, led)
		}
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("consuming quota for %s: %w", accountID, err)
	}

	if dec.Admitted {
		metrics.QuotaChecksTotal.WithLabelValues("admitted").Inc()
		metrics.TokensConsumedTotal.Add(float64(tokenDelta))
	} else {
		metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
	}
	return dec, nil
}

// Remaining reports the budgets left in the current period. An account with
// no ledger gets the zero value rather than an error.
func (s *Service) Remaining(ctx context.Context, accountID uuid.UUID) (Remaining, error) {
	if _, err := s.repo.ResetDailyIfStale(ctx, s.pool, accountID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	led, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return Remaining{}, fmt.Errorf("getting quota ledger: %w", err)
	}
	if led == nil {
		return Remaining{}, nil
	}
	return RemainingOf(led), nil
}
