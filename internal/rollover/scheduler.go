package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner is one maintenance pass. Implemented by Service.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler runs the rollover maintenance pass on a cron schedule. Periods
// also roll over lazily when the gate touches a ledger, so a missed run only
// delays the sweep of idle accounts.
type Scheduler struct {
	svc      Runner
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a rollover Scheduler. An empty schedule disables it.
func NewScheduler(svc Runner, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:      svc,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "rollover.scheduler"),
	}
}

// Start begins scheduled maintenance and runs one pass immediately so
// ledgers that elapsed while the service was down reset without waiting for
// the next tick. Stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("rollover schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule rollover: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("rollover scheduler started", "schedule", s.schedule)

	go s.runOnce(ctx)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.svc.Run(ctx); err != nil {
		s.logger.Error("scheduled rollover failed", "error", err)
	}
}

// Stop stops the scheduler and waits for a running pass to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("rollover scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled maintenance time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
