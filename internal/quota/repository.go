package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/database"
)

// ErrLedgerNotFound is returned when an account has no quota ledger.
// The gate treats this as fatal, not as a denial.
var ErrLedgerNotFound = errors.New("quota ledger not found")

const ledgerColumns = `account_id, monthly_token_limit, monthly_request_limit,
	monthly_cost_limit, daily_request_limit, tokens_used, requests_used,
	cost_used, daily_requests_used, current_period_start, current_period_end,
	last_daily_reset, updated_at`

// Repository handles quota_ledgers PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TierLimits carries the ledger defaults a plan provisions new accounts
// with. Nil limits mean unlimited.
type TierLimits struct {
	MonthlyTokenLimit   *int64
	MonthlyRequestLimit *int64
	MonthlyCostLimit    *float64
	DailyRequestLimit   *int64
}

// Provision creates the account's ledger with the plan's defaults if it does
// not exist yet. The billing period starts at the beginning of the current
// month.
func (r *Repository) Provision(ctx context.Context, accountID uuid.UUID, lim TierLimits) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_ledgers
		   (account_id, monthly_token_limit, monthly_request_limit, monthly_cost_limit, daily_request_limit,
		    current_period_start, current_period_end)
		 VALUES ($1, $2, $3, $4, $5,
		    date_trunc('month', NOW()), date_trunc('month', NOW()) + INTERVAL '1 month')
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID, lim.MonthlyTokenLimit, lim.MonthlyRequestLimit,
		lim.MonthlyCostLimit, lim.DailyRequestLimit)
	if err != nil {
		return fmt.Errorf("provisioning quota ledger: %w", err)
	}
	return nil
}

// Get returns the account's ledger, or nil if none exists.
func (r *Repository) Get(ctx context.Context, accountID uuid.UUID) (*Ledger, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM quota_ledgers WHERE account_id = $1`, accountID)

	led, err := scanLedger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying quota ledger: %w", err)
	}
	return led, nil
}

// GetForUpdate locks the account's ledger row for the duration of the
// caller's transaction. Concurrent gate calls for the same account serialize
// on this lock.
func (r *Repository) GetForUpdate(ctx context.Context, q database.Querier, accountID uuid.UUID) (*Ledger, error) {
	row := q.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM quota_ledgers WHERE account_id = $1 FOR UPDATE`, accountID)

	led, err := scanLedger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, fmt.Errorf("locking quota ledger: %w", err)
	}
	return led, nil
}

// ApplyConsumption adds the admitted deltas to the ledger counters. Must run
// in the same transaction as the GetForUpdate that admitted them.
func (r *Repository) ApplyConsumption(ctx context.Context, q database.Querier, accountID uuid.UUID, tokens int64, cost float64) error {
	_, err := q.Exec(ctx,
		`UPDATE quota_ledgers
		 SET tokens_used = tokens_used + $2,
		     requests_used = requests_used + 1,
		     daily_requests_used = daily_requests_used + 1,
		     cost_used = cost_used + $3,
		     updated_at = NOW()
		 WHERE account_id = $1`, accountID, tokens, cost)
	if err != nil {
		return fmt.Errorf("applying quota consumption: %w", err)
	}
	return nil
}

// ResetDailyIfStale zeroes the daily counter when the last reset was before
// today. Returns true if a reset was performed. The date guard makes it safe
// to call from both the gate and the scheduled job.
func (r *Repository) ResetDailyIfStale(ctx context.Context, q database.Querier, accountID uuid.UUID) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE quota_ledgers
		 SET daily_requests_used = 0,
		     last_daily_reset = NOW(),
		     updated_at = NOW()
		 WHERE account_id = $1 AND last_daily_reset < date_trunc('day', NOW())`, accountID)
	if err != nil {
		return false, fmt.Errorf("resetting daily counters: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanLedger(row pgx.Row) (*Ledger, error) {
	var (
		led          Ledger
		tokenLimit   *int64
		requestLimit *int64
		costLimit    *float64
		dailyLimit   *int64
	)
	err := row.Scan(&led.AccountID, &tokenLimit, &requestLimit, &costLimit, &dailyLimit,
		&led.TokensUsed, &led.RequestsUsed, &led.CostUsed, &led.DailyRequestsUsed,
		&led.CurrentPeriodStart, &led.CurrentPeriodEnd, &led.LastDailyReset, &led.UpdatedAt)
	if err != nil {
		return nil, err
	}
	led.MonthlyTokenLimit = LimitFromPtr(tokenLimit)
	led.MonthlyRequestLimit = LimitFromPtr(requestLimit)
	led.MonthlyCostLimit = CostLimitFromPtr(costLimit)
	led.DailyRequestLimit = LimitFromPtr(dailyLimit)
	return &led, nil
}
