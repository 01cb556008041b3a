package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/database"
)

// Repository handles usage_events and rollup PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new usage Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEvent appends one immutable usage event.
func (r *Repository) InsertEvent(ctx context.Context, q database.Querier, e *Event) error {
	_, err := q.Exec(ctx,
		`INSERT INTO usage_events
		   (id, account_id, session_id, provider, model, mode,
		    prompt_tokens, completion_tokens, total_tokens,
		    prompt_cost, completion_cost, total_cost,
		    latency_ms, success, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.AccountID, e.SessionID, e.Provider, e.Model, e.Mode,
		e.PromptTokens, e.CompletionTokens, e.TotalTokens,
		e.PromptCost, e.CompletionCost, e.TotalCost,
		e.LatencyMs, e.Success, e.ErrorMessage, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage event: %w", err)
	}
	return nil
}

// ApplyToRollups folds the event into the daily and monthly aggregates.
// Both writes are insert-or-increment upserts, so concurrent events for the
// same tuple never lose updates. Must be called exactly once per event, in
// the same transaction as InsertEvent.
func (r *Repository) ApplyToRollups(ctx context.Context, q database.Querier, e *Event) error {
	successDelta := 0
	errorDelta := 0
	if e.Success {
		successDelta = 1
	} else {
		errorDelta = 1
	}

	_, err := q.Exec(ctx,
		`INSERT INTO usage_daily
		   (account_id, day, provider, model, mode,
		    request_count, total_tokens, prompt_tokens, completion_tokens,
		    total_cost, success_count, error_count, last_latency_ms)
		 VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (account_id, day, provider, model, mode) DO UPDATE SET
		    request_count = usage_daily.request_count + 1,
		    total_tokens = usage_daily.total_tokens + EXCLUDED.total_tokens,
		    prompt_tokens = usage_daily.prompt_tokens + EXCLUDED.prompt_tokens,
		    completion_tokens = usage_daily.completion_tokens + EXCLUDED.completion_tokens,
		    total_cost = usage_daily.total_cost + EXCLUDED.total_cost,
		    success_count = usage_daily.success_count + EXCLUDED.success_count,
		    error_count = usage_daily.error_count + EXCLUDED.error_count,
		    last_latency_ms = EXCLUDED.last_latency_ms,
		    updated_at = NOW()`,
		e.AccountID, e.CreatedAt.Truncate(24*time.Hour), e.Provider, e.Model, e.Mode,
		e.TotalTokens, e.PromptTokens, e.CompletionTokens,
		e.TotalCost, successDelta, errorDelta, e.LatencyMs)
	if err != nil {
		return fmt.Errorf("upserting daily rollup: %w", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO usage_monthly
		   (account_id, year, month, provider, model,
		    request_count, total_tokens, prompt_tokens, completion_tokens,
		    total_cost, success_count, error_count)
		 VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (account_id, year, month, provider, model) DO UPDATE SET
		    request_count = usage_monthly.request_count + 1,
		    total_tokens = usage_monthly.total_tokens + EXCLUDED.total_tokens,
		    prompt_tokens = usage_monthly.prompt_tokens + EXCLUDED.prompt_tokens,
		    completion_tokens = usage_monthly.completion_tokens + EXCLUDED.completion_tokens,
		    total_cost = usage_monthly.total_cost + EXCLUDED.total_cost,
		    success_count = usage_monthly.success_count + EXCLUDED.success_count,
		    error_count = usage_monthly.error_count + EXCLUDED.error_count,
		    updated_at = NOW()`,
		e.AccountID, e.CreatedAt.Year(), int(e.CreatedAt.Month()), e.Provider, e.Model,
		e.TotalTokens, e.PromptTokens, e.CompletionTokens,
		e.TotalCost, successDelta, errorDelta)
	if err != nil {
		return fmt.Errorf("upserting monthly rollup: %w", err)
	}
	return nil
}

// ListDaily returns the account's daily rollups for the last `days` days,
// newest first.
func (r *Repository) ListDaily(ctx context.Context, accountID uuid.UUID, days int) ([]DailyRollup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT account_id, day, provider, model, mode,
		        request_count, total_tokens, prompt_tokens, completion_tokens,
		        total_cost, success_count, error_count, last_latency_ms
		 FROM usage_daily
		 WHERE account_id = $1 AND day >= date_trunc('day', NOW()) - make_interval(days => $2)
		 ORDER BY day DESC, provider, model`, accountID, days)
	if err != nil {
		return nil, fmt.Errorf("querying daily rollups: %w", err)
	}
	defer rows.Close()

	var rollups []DailyRollup
	for rows.Next() {
		var ru DailyRollup
		if err := rows.Scan(&ru.AccountID, &ru.Day, &ru.Provider, &ru.Model, &ru.Mode,
			&ru.RequestCount, &ru.TotalTokens, &ru.PromptTokens, &ru.CompletionTokens,
			&ru.TotalCost, &ru.SuccessCount, &ru.ErrorCount, &ru.LastLatencyMs); err != nil {
			return nil, fmt.Errorf("scanning daily rollup: %w", err)
		}
		rollups = append(rollups, ru)
	}
	return rollups, rows.Err()
}

// Totals sums requests, tokens and cost over the daily rollups since the
// given time.
func (r *Repository) Totals(ctx context.Context, accountID uuid.UUID, since time.Time) (requests, tokens int64, cost float64, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(request_count), 0),
		        COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(total_cost), 0)
		 FROM usage_daily
		 WHERE account_id = $1 AND day >= $2`, accountID, since).
		Scan(&requests, &tokens, &cost)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summing usage totals: %w", err)
	}
	return requests, tokens, cost, nil
}
