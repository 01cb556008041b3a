package rollover

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int64
}

func (c *countingRunner) Run(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestSchedulerStart(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid daily schedule", "0 3 * * *", true, false},
		{"valid hourly schedule", "0 * * * *", true, false},
		{"empty schedule disables scheduler", "", false, false},
		{"invalid schedule", "not a cron expression", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &countingRunner{}
			sched := NewScheduler(runner, tt.schedule, slog.Default())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := sched.Start(ctx)
			if tt.wantError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRunning, sched.IsRunning())

			if tt.wantRunning {
				assert.NotNil(t, sched.NextRun())
			}

			sched.Stop()
			assert.False(t, sched.IsRunning())
		})
	}
}

func TestSchedulerRunsImmediatePass(t *testing.T) {
	runner := &countingRunner{}
	sched := NewScheduler(runner, "0 3 * * *", slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	sched := NewScheduler(&countingRunner{}, "0 3 * * *", slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))

	cancel()

	assert.Eventually(t, func() bool {
		return !sched.IsRunning()
	}, time.Second, 10*time.Millisecond)
}
