// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock cannot be acquired before the
// context expires.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker serializes writers of the same name. Lock blocks until the lock is
// held or ctx is done; waiters are served in arrival order.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}

// ExecutionLockName is the lock guarding one (test case, session) execution slot.
func ExecutionLockName(testCaseID, sessionID string) string {
	if sessionID == "" {
		sessionID = "_"
	}
	return "executions/" + testCaseID + "/" + sessionID
}
