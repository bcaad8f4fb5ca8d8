package etcd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

type etcdLeaderElectionManager struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
	mutex    sync.RWMutex
	nodeID   string // The ID of the current node
	ttl      time.Duration
	logger   *slog.Logger
}

// NewEtcdLeaderElectionManager creates a manager for leader election using etcd.
// The leader is the single node that runs the session reporter.
func NewEtcdLeaderElectionManager(client *clientv3.Client, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger.With("component", "leader-election"),
	}
}

func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	// If this node fails, the lease expires and another node takes over.
	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(int(m.ttl.Seconds())))
	if err != nil {
		return nil, err
	}
	election := concurrency.NewElection(session, LeaderElectionKey)

	// Campaign blocks until this node becomes the leader or the context is canceled.
	if err := election.Campaign(ctx, m.nodeID); err != nil {
		_ = session.Close()
		return nil, err
	}

	m.logger.Info("successfully campaigned and became the leader", "node_id", m.nodeID)
	m.mutex.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mutex.Unlock()

	// The returned channel is closed if the session expires, meaning leadership is lost.
	return session.Done(), nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	election, session := m.election, m.session
	m.isLeader = false
	m.election, m.session = nil, nil
	m.mutex.Unlock()

	if election == nil {
		return nil
	}
	m.logger.Info("resigning leadership", "node_id", m.nodeID)
	defer session.Close()
	return election.Resign(ctx)
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}
