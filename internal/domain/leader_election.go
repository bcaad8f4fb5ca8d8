package domain

import "context"

type LeaderElectionManager interface {
	// Campaign blocks until this node leads; the returned channel is closed when
	// leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
