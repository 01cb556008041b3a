package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/database"
	"github.com/insanelabs/witchcraft/internal/metrics"
	"github.com/insanelabs/witchcraft/internal/nats"
)

// ErrInvalidEvent is returned when a recorded event fails validation.
var ErrInvalidEvent = errors.New("invalid usage event")

// SessionStats reports live session activity for an account.
type SessionStats struct {
	ActiveSessions    int64
	AvgSessionMinutes float64
}

// SessionStatsProvider supplies session activity for summaries. Implemented
// by the sessions repository.
type SessionStatsProvider interface {
	ActivityStats(ctx context.Context, accountID uuid.UUID, since time.Time) (SessionStats, error)
}

// Service records usage events and serves activity summaries.
type Service struct {
	pool      *pgxpool.Pool
	repo      *Repository
	sessions  SessionStatsProvider
	publisher *nats.Publisher
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates a usage Service. publisher and sessions may be nil.
func NewService(pool *pgxpool.Pool, repo *Repository, sessions SessionStatsProvider, publisher *nats.Publisher, logger *slog.Logger) *Service {
	return &Service{
		pool:      pool,
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Record validates the input, then appends the event and folds it into the
// daily and monthly rollups in a single transaction, so the aggregates never
// diverge from the event log. The event is published to JetStream best
// effort after commit.
func (s *Service) Record(ctx context.Context, in *RecordInput) (*Event, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}

	event := in.Event()

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
		return s.repo.ApplyToRollups(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	outcome := "success"
	if !event.Success {
		outcome = "error"
	}
	metrics.UsageEventsTotal.WithLabelValues(event.Provider, outcome).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishUsageRecorded(ctx, nats.UsageRecordedEvent{
			EventID:     event.ID,
			AccountID:   event.AccountID,
			Provider:    event.Provider,
			Model:       event.Model,
			TotalTokens: event.TotalTokens,
			TotalCost:   event.TotalCost,
			Success:     event.Success,
			Timestamp:   event.CreatedAt,
		}); err != nil {
			s.logger.Warn("failed to publish usage event", "event_id", event.ID, "error", err)
		}
	}

	return event, nil
}

// Summary aggregates the account's activity over the last `days` days.
func (s *Service) Summary(ctx context.Context, accountID uuid.UUID, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	requests, tokens, cost, err := s.repo.Totals(ctx, accountID, since)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Days:        days,
		Requests:    requests,
		TotalTokens: tokens,
		TotalCost:   cost,
	}

	if s.sessions != nil {
		stats, err := s.sessions.ActivityStats(ctx, accountID, since)
		if err != nil {
			return nil, err
		}
		summary.ActiveSessions = stats.ActiveSessions
		summary.AvgSessionMinutes = stats.AvgSessionMinutes
	}

	return summary, nil
}

// Daily returns the per-day, per-model breakdown for the last `days` days.
func (s *Service) Daily(ctx context.Context, accountID uuid.UUID, days int) ([]DailyRollup, error) {
	if days <= 0 {
		days = 30
	}
	return s.repo.ListDaily(ctx, accountID, days)
}
