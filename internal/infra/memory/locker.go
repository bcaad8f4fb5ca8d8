package memory

import (
	"context"
	"fmt"
	"sync"

	"exectrack/internal/domain"
)

type lockEntry struct {
	slot chan struct{}
	refs int
}

// Locker is a process-local domain.Locker. Blocked callers of the same name
// are released in arrival order.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewLocker() *Locker {
	return &Locker{entries: make(map[string]*lockEntry)}
}

func (l *Locker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	l.mu.Lock()
	e, ok := l.entries[name]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[name] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
		return &memoryLock{locker: l, name: name, entry: e}, nil
	case <-ctx.Done():
		l.release(name, e)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLockNotAcquired, name, ctx.Err())
	}
}

func (l *Locker) release(name string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, name)
	}
}

type memoryLock struct {
	once   sync.Once
	locker *Locker
	name   string
	entry  *lockEntry
}

func (m *memoryLock) Unlock(context.Context) error {
	m.once.Do(func() {
		<-m.entry.slot
		m.locker.release(m.name, m.entry)
	})
	return nil
}
