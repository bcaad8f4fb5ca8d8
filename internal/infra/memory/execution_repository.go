// Package memory holds process-local implementations of the domain
// repositories, used for single-node deployments and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"exectrack/internal/domain"
)

type storedExecution struct {
	seq    uint64
	record *domain.ExecutionRecord
}

// ExecutionRepository keeps every inserted row, so history is retained the
// same way the persistent stores retain it.
type ExecutionRepository struct {
	mu   sync.RWMutex
	seq  uint64
	rows map[string]*storedExecution
}

// NewExecutionRepository creates an empty repository.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{rows: make(map[string]*storedExecution)}
}

func (r *ExecutionRepository) Query(ctx context.Context, q domain.ExecutionQuery) ([]*domain.ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*storedExecution, 0)
	for _, row := range r.rows {
		if row.record.SessionID != q.SessionID {
			continue
		}
		if !slices.Contains(q.TestCaseIDs, row.record.TestCaseID) {
			continue
		}
		matched = append(matched, row)
	}
	sortNewestFirst(matched)

	out := make([]*domain.ExecutionRecord, 0, len(matched))
	for _, row := range matched {
		out = append(out, row.record.Clone())
	}
	return out, nil
}

func (r *ExecutionRepository) Latest(ctx context.Context, testCaseID, sessionID string) (*domain.ExecutionRecord, error) {
	records, err := r.Query(ctx, domain.ExecutionQuery{TestCaseIDs: []string{testCaseID}, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrExecutionNotFound
	}
	return records[0], nil
}

func (r *ExecutionRepository) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return row.record.Clone(), nil
}

func (r *ExecutionRepository) Insert(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("execution record for %s has no id", record.TestCaseID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[record.ID]; exists {
		return fmt.Errorf("execution %s already exists", record.ID)
	}
	r.seq++
	r.rows[record.ID] = &storedExecution{seq: r.seq, record: record.Clone()}
	return nil
}

func (r *ExecutionRepository) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[record.ID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	row.record = record.Clone()
	return nil
}

// Len returns the number of stored rows, history included.
func (r *ExecutionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func sortNewestFirst(rows []*storedExecution) {
	slices.SortFunc(rows, func(a, b *storedExecution) int {
		if c := b.record.CreatedAt.Compare(a.record.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
}
