package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSchedular struct {
	mu      sync.Mutex
	added   []string
	started chan struct{}
	stopped int
}

func (s *recordingSchedular) Start(ctx context.Context) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func (s *recordingSchedular) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *recordingSchedular) AddTask(task domain.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, task.Name)
	return nil
}

func (s *recordingSchedular) RemoveTask(string) error { return nil }

func TestSchedularServiceRunsTasksWhileLeading(t *testing.T) {
	election := memory.NewLeaderElection()
	schedular := &recordingSchedular{started: make(chan struct{})}
	tasks := []domain.ScheduledTask{{Name: "session-reports", Spec: "@every 1m", Run: func(context.Context) error { return nil }}}
	svc := NewSchedularService(election, schedular, tasks, "node-a", discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-schedular.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler not started after winning leadership")
	}
	assert.True(t, election.IsLeader())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, election.IsLeader())

	schedular.mu.Lock()
	defer schedular.mu.Unlock()
	assert.Equal(t, []string{"session-reports"}, schedular.added)
	assert.Equal(t, 1, schedular.stopped)
}
