package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/database"
)

// Repository handles usage_alerts PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new alerts Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateIfAbsent inserts the alert unless one with the same
// (account, type, threshold, period_start) key already exists. Returns true
// when a row was inserted. Safe under concurrent gate transactions because
// the insert races resolve on the table's unique index.
func (r *Repository) CreateIfAbsent(ctx context.Context, q database.Querier, a *Alert) (bool, error) {
	tag, err := q.Exec(ctx,
		`INSERT INTO usage_alerts
		   (id, account_id, alert_type, threshold, title, message, priority,
		    action_url, action_label, period_start, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (account_id, alert_type, threshold, period_start) DO NOTHING`,
		a.ID, a.AccountID, a.Type, a.Threshold, a.Title, a.Message, a.Priority,
		a.ActionURL, a.ActionLabel, a.PeriodStart, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the account's alerts, newest first. Dismissed alerts are
// excluded unless includeDismissed is set.
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, includeDismissed bool) ([]Alert, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, alert_type, threshold, title, message, priority,
		        action_url, action_label, period_start, read, dismissed, created_at, read_at
		 FROM usage_alerts
		 WHERE account_id = $1 AND (dismissed = FALSE OR $2)
		 ORDER BY created_at DESC
		 LIMIT 100`, accountID, includeDismissed)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Type, &a.Threshold, &a.Title,
			&a.Message, &a.Priority, &a.ActionURL, &a.ActionLabel, &a.PeriodStart,
			&a.Read, &a.Dismissed, &a.CreatedAt, &a.ReadAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkRead marks one alert as read. Returns false when the alert does not
// exist or belongs to another account.
func (r *Repository) MarkRead(ctx context.Context, accountID, alertID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_alerts SET read = TRUE, read_at = NOW()
		 WHERE id = $1 AND account_id = $2 AND read = FALSE`, alertID, accountID)
	if err != nil {
		return false, fmt.Errorf("marking alert read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Dismiss hides one alert from the default listing.
func (r *Repository) Dismiss(ctx context.Context, accountID, alertID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_alerts SET dismissed = TRUE
		 WHERE id = $1 AND account_id = $2 AND dismissed = FALSE`, alertID, accountID)
	if err != nil {
		return false, fmt.Errorf("dismissing alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnreadCount returns the number of unread, undismissed alerts.
func (r *Repository) UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_alerts
		 WHERE account_id = $1 AND read = FALSE AND dismissed = FALSE`, accountID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread alerts: %w", err)
	}
	return count, nil
}

// dayOf truncates to the UTC day, the dedup key for rate_limit alerts.
func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
