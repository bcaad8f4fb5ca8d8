package memory

import (
	"context"
	"sync"
)

// LeaderElection is a single-process domain.LeaderElectionManager: Campaign
// wins once no other caller holds leadership.
type LeaderElection struct {
	mu     sync.Mutex
	held   chan struct{}
	lost   chan struct{}
	leader bool
}

func NewLeaderElection() *LeaderElection {
	return &LeaderElection{held: make(chan struct{}, 1)}
}

func (e *LeaderElection) Campaign(ctx context.Context) (<-chan struct{}, error) {
	select {
	case e.held <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.leader = true
	e.lost = make(chan struct{})
	return e.lost, nil
}

func (e *LeaderElection) Resign(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.leader {
		return nil
	}
	e.leader = false
	close(e.lost)
	<-e.held
	return nil
}

func (e *LeaderElection) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}
