package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insanelabs/witchcraft/internal/database"
	"github.com/insanelabs/witchcraft/internal/metrics"
	"github.com/insanelabs/witchcraft/internal/nats"
	"github.com/insanelabs/witchcraft/internal/quota"
)

// Monitor watches ledger changes and raises threshold alerts. It runs
// inside the quota gate's transaction, so an alert commits atomically with
// the counters that triggered it.
type Monitor struct {
	repo      *Repository
	publisher *nats.Publisher
	logger    *slog.Logger
}

// NewMonitor creates an alert Monitor. publisher may be nil.
func NewMonitor(repo *Repository, publisher *nats.Publisher, logger *slog.Logger) *Monitor {
	return &Monitor{repo: repo, publisher: publisher, logger: logger}
}

// OnLedgerChange raises one alert per newly reached threshold, and a daily
// rate_limit alert once the daily request budget is spent. Re-crossing a
// threshold within the same billing period, or re-hitting the daily budget
// within the same day, is suppressed by the keyed insert. Unlimited ledgers
// never alert.
func (m *Monitor) OnLedgerChange(ctx context.Context, q database.Querier, led *quota.Ledger) error {
	if pct := led.UsagePercent(); pct != nil {
		for _, threshold := range reachedThresholds(*pct) {
			alert := newThresholdAlert(led.AccountID, threshold, *pct, led.CurrentPeriodStart)
			if err := m.raise(ctx, q, alert); err != nil {
				return err
			}
		}
	}

	if limit, ok := led.DailyRequestLimit.Value(); ok && led.DailyRequestsUsed >= limit {
		alert := newRateLimitAlert(led.AccountID, dayOf(time.Now()))
		if err := m.raise(ctx, q, alert); err != nil {
			return err
		}
	}
	return nil
}

// raise inserts the alert unless its dedup key already exists, then counts
// and publishes the ones actually created.
func (m *Monitor) raise(ctx context.Context, q database.Querier, alert *Alert) error {
	created, err := m.repo.CreateIfAbsent(ctx, q, alert)
	if err != nil {
		return err
	}
	if created {
		metrics.AlertsCreatedTotal.WithLabelValues(alert.Type).Inc()
		m.publish(ctx, alert)
	}
	return nil
}

// OnRateLimited records at most one rate_limit alert per account per day.
// It runs outside any transaction and never blocks the gate's denial path.
func (m *Monitor) OnRateLimited(ctx context.Context, accountID uuid.UUID) {
	alert := newRateLimitAlert(accountID, dayOf(time.Now()))
	if err := m.raise(ctx, m.repo.pool, alert); err != nil {
		m.logger.Warn("failed to record rate limit alert", "account_id", accountID, "error", err)
	}
}

// publish emits the alert to JetStream best effort. Delivery is at least
// once; consumers dedupe on the alert ID.
func (m *Monitor) publish(ctx context.Context, a *Alert) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishAlertCreated(ctx, nats.AlertCreatedEvent{
		AlertID:     a.ID,
		AccountID:   a.AccountID,
		AlertType:   a.Type,
		Threshold:   a.Threshold,
		Title:       a.Title,
		Message:     a.Message,
		Priority:    a.Priority,
		ActionURL:   a.ActionURL,
		ActionLabel: a.ActionLabel,
		Timestamp:   a.CreatedAt,
	})
	if err != nil {
		m.logger.Warn("failed to publish alert event", "alert_id", a.ID, "error", err)
	}
}
