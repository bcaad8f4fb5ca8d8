package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"exectrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		spec  string
		valid bool
	}{
		{"@every 1m", true},
		{"@hourly", true},
		{"*/5 * * * *", true},
		{"0 */10 * * * *", true},
		{"", false},
		{"every tuesday", false},
		{"61 * * * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCronSchedulerRunsAndRemovesTasks(t *testing.T) {
	s := NewCronScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var runs atomic.Int32
	require.NoError(t, s.AddTask(domain.ScheduledTask{
		Name: "session-reports",
		Spec: "* * * * * *",
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("report store down")
		},
	}))
	require.Error(t, s.AddTask(domain.ScheduledTask{Name: "bad", Spec: "nope", Run: func(context.Context) error { return nil }}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, s.RemoveTask("session-reports"))
	s.Stop()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
