// internal/infra/etcd/locker.go
package etcd

import (
	"context"
	"fmt"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// LockSessionTTL bounds how long a crashed holder keeps a lock, in seconds.
const LockSessionTTL = 10

type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

// Unlock releases the lock and closes the session that held its lease.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		_ = l.session.Close()
	}()

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.name, err)
	}
	return nil
}

type etcdLocker struct {
	client *clientv3.Client
}

// NewEtcdLocker returns a Locker whose waiters queue on etcd revisions, so
// writers of the same name are served in arrival order across nodes.
func NewEtcdLocker(client *clientv3.Client) domain.Locker {
	return &etcdLocker{client: client}
}

// Lock blocks until the named lock is held or ctx is done.
func (l *etcdLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(LockSessionTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w", name, err)
	}

	mutex := concurrency.NewMutex(session, lockKey(name))
	if err := mutex.Lock(ctx); err != nil {
		_ = session.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockNotAcquired, name, ctx.Err())
		}
		return nil, fmt.Errorf("failed to acquire etcd lock %s: %w", name, err)
	}

	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
	}, nil
}
