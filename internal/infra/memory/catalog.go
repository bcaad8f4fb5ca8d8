package memory

import (
	"context"
	"slices"
	"sync"

	"exectrack/internal/domain"
)

// TestCaseRepository is an in-memory domain.TestCaseRepository.
type TestCaseRepository struct {
	mu    sync.RWMutex
	cases map[string]*domain.TestCase
}

func NewTestCaseRepository() *TestCaseRepository {
	return &TestCaseRepository{cases: make(map[string]*domain.TestCase)}
}

func (r *TestCaseRepository) Save(_ context.Context, testCase *domain.TestCase) error {
	c := *testCase
	c.Steps = slices.Clone(testCase.Steps)
	r.mu.Lock()
	r.cases[c.ID] = &c
	r.mu.Unlock()
	return nil
}

func (r *TestCaseRepository) Get(_ context.Context, id string) (*domain.TestCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, domain.ErrTestCaseNotFound
	}
	out := *c
	return &out, nil
}

func (r *TestCaseRepository) ListByGeneration(_ context.Context, generationID string) ([]*domain.TestCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.TestCase, 0)
	for _, c := range r.cases {
		if c.GenerationID == generationID {
			cc := *c
			out = append(out, &cc)
		}
	}
	slices.SortFunc(out, func(a, b *domain.TestCase) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// SessionRepository is an in-memory domain.SessionRepository.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.TestSession
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.TestSession)}
}

func (r *SessionRepository) Save(_ context.Context, session *domain.TestSession) error {
	s := *session
	r.mu.Lock()
	r.sessions[s.ID] = &s
	r.mu.Unlock()
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id string) (*domain.TestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

func (r *SessionRepository) List(_ context.Context) ([]*domain.TestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.TestSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss := *s
		out = append(out, &ss)
	}
	slices.SortFunc(out, func(a, b *domain.TestSession) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// ReportRepository is an in-memory domain.ReportRepository.
type ReportRepository struct {
	mu      sync.RWMutex
	reports map[string]*domain.SessionReport
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{reports: make(map[string]*domain.SessionReport)}
}

func (r *ReportRepository) Save(_ context.Context, report *domain.SessionReport) error {
	rep := *report
	r.mu.Lock()
	r.reports[rep.SessionID] = &rep
	r.mu.Unlock()
	return nil
}

func (r *ReportRepository) Get(_ context.Context, sessionID string) (*domain.SessionReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[sessionID]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	out := *rep
	return &out, nil
}
