package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/metrics"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionMap maps test case ids to their current execution, in request order.
type ExecutionMap = orderedmap.OrderedMap[string, *domain.ExecutionRecord]

// ExecutionService owns the persistence contract of test executions: one
// current record per (test case, session), created lazily and updated in place.
type ExecutionService struct {
	execRepo    domain.ExecutionRepository
	cases       domain.TestCaseRepository
	sessions    domain.SessionRepository
	locker      domain.Locker
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewExecutionService creates a new ExecutionService instance. Writes to the
// same (test case, session) slot are serialized through locker.
func NewExecutionService(
	execRepo domain.ExecutionRepository,
	cases domain.TestCaseRepository,
	sessions domain.SessionRepository,
	locker domain.Locker,
	lockTimeout time.Duration,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		execRepo:    execRepo,
		cases:       cases,
		sessions:    sessions,
		locker:      locker,
		lockTimeout: lockTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger.With("component", "execution-service"),
		tracer:      otel.Tracer("exectrack-usecase"),
	}
}

// LoadExecutions returns exactly one execution per requested test case. Cases
// without a stored row get an unsaved not_run placeholder; when several rows
// exist the most recently created one is used.
func (s *ExecutionService) LoadExecutions(ctx context.Context, testCaseIDs []string, sessionID string) (*ExecutionMap, error) {
	ctx, span := s.tracer.Start(ctx, "service.LoadExecutions")
	defer span.End()

	ids := uniqueIDs(testCaseIDs)
	span.SetAttributes(
		attribute.Int("test_case.count", len(ids)),
		attribute.String("session.id", sessionID),
	)

	out := orderedmap.New[string, *domain.ExecutionRecord]()
	if len(ids) == 0 {
		return out, nil
	}

	records, err := s.execRepo.Query(ctx, domain.ExecutionQuery{TestCaseIDs: ids, SessionID: sessionID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query executions")
		return nil, fmt.Errorf("%w: load executions: %w", domain.ErrPersistence, err)
	}

	latest := latestPerTestCase(records)
	for _, id := range ids {
		if rec, ok := latest[id]; ok {
			out.Set(id, rec)
			continue
		}
		out.Set(id, domain.NewPlaceholder(id, sessionID))
	}
	span.SetAttributes(attribute.Int("execution.stored", len(latest)))
	return out, nil
}

// SaveProgress merges req.Update onto the current execution, creating the row
// if none is stored yet. Exactly one row is written.
func (s *ExecutionService) SaveProgress(ctx context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.SaveProgress")
	defer span.End()
	span.SetAttributes(
		attribute.String("test_case.id", req.TestCaseID),
		attribute.String("session.id", req.SessionID),
	)

	if req.Update.IsEmpty() {
		return nil, fmt.Errorf("%w: empty update for test case %s", domain.ErrValidation, req.TestCaseID)
	}
	if req.Update.Status != nil && !req.Update.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid execution status %q", domain.ErrValidation, *req.Update.Status)
	}
	testCase, err := s.validateScope(ctx, req.TestCaseID, req.SessionID, req.ExecutedBy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid save request")
		return nil, err
	}

	rec, err := s.mutate(ctx, testCase, req.SessionID, req.ExecutionID, req.ExecutedBy,
		func(*domain.ExecutionRecord) (domain.ExecutionUpdate, error) {
			return req.Update, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save progress")
	}
	return rec, err
}

// Transition runs a state machine action against the stored execution while
// holding the slot, so the action always sees the latest write.
func (s *ExecutionService) Transition(ctx context.Context, req domain.TransitionRequest) (*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("test_case.id", req.TestCaseID),
		attribute.String("session.id", req.SessionID),
		attribute.String("transition.kind", string(req.Kind)),
	)

	testCase, err := s.validateScope(ctx, req.TestCaseID, req.SessionID, req.ExecutedBy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid transition request")
		return nil, err
	}

	rec, err := s.mutate(ctx, testCase, req.SessionID, "", req.ExecutedBy,
		func(current *domain.ExecutionRecord) (domain.ExecutionUpdate, error) {
			return req.Plan(current, s.now())
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply transition")
	}
	return rec, err
}

// ComputeStats aggregates the current executions of the given test cases.
func (s *ExecutionService) ComputeStats(ctx context.Context, testCaseIDs []string, sessionID string) (domain.ExecutionStats, error) {
	ctx, span := s.tracer.Start(ctx, "service.ComputeStats")
	defer span.End()

	executions, err := s.LoadExecutions(ctx, testCaseIDs, sessionID)
	if err != nil {
		span.RecordError(err)
		return domain.ExecutionStats{}, err
	}
	return domain.ComputeStats(values(executions), executions.Len()), nil
}

// GenerationStats aggregates the executions of every test case of a generation.
func (s *ExecutionService) GenerationStats(ctx context.Context, generationID, sessionID string) (domain.ExecutionStats, error) {
	ctx, span := s.tracer.Start(ctx, "service.GenerationStats")
	defer span.End()
	span.SetAttributes(attribute.String("generation.id", generationID))

	ids, err := s.ResolveTestCases(ctx, nil, generationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list test cases")
		return domain.ExecutionStats{}, err
	}
	return s.ComputeStats(ctx, ids, sessionID)
}

// ResolveTestCases returns the test case ids of a view: ids when given,
// otherwise every test case of generationID in catalog order.
func (s *ExecutionService) ResolveTestCases(ctx context.Context, ids []string, generationID string) ([]string, error) {
	if len(ids) > 0 {
		return uniqueIDs(ids), nil
	}
	if generationID == "" {
		return nil, fmt.Errorf("%w: test case ids or a generation are required", domain.ErrValidation)
	}
	cases, err := s.cases.ListByGeneration(ctx, generationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list test cases of generation %s: %w", domain.ErrPersistence, generationID, err)
	}
	out := make([]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.ID)
	}
	return out, nil
}

func (s *ExecutionService) validateScope(ctx context.Context, testCaseID, sessionID, actor string) (*domain.TestCase, error) {
	if testCaseID == "" {
		return nil, fmt.Errorf("%w: test case id is required", domain.ErrValidation)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: acting user is required", domain.ErrValidation)
	}

	testCase, err := s.cases.Get(ctx, testCaseID)
	if err != nil {
		if errors.Is(err, domain.ErrTestCaseNotFound) {
			return nil, fmt.Errorf("%w: %w: %s", domain.ErrValidation, err, testCaseID)
		}
		return nil, fmt.Errorf("%w: get test case %s: %w", domain.ErrPersistence, testCaseID, err)
	}

	if sessionID != "" {
		if _, err := s.sessions.Get(ctx, sessionID); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil, fmt.Errorf("%w: %w: %s", domain.ErrValidation, err, sessionID)
			}
			return nil, fmt.Errorf("%w: get session %s: %w", domain.ErrPersistence, sessionID, err)
		}
	}
	return testCase, nil
}

type planFunc func(current *domain.ExecutionRecord) (domain.ExecutionUpdate, error)

// mutate holds the (test case, session) slot while it reads the current row,
// plans the update and writes the result.
func (s *ExecutionService) mutate(ctx context.Context, testCase *domain.TestCase, sessionID, executionID, actor string, plan planFunc) (*domain.ExecutionRecord, error) {
	logger := s.logger.With("test_case_id", testCase.ID, "session_id", sessionID)

	waitStart := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	lock, err := s.locker.Lock(lockCtx, domain.ExecutionLockName(testCase.ID, sessionID))
	cancel()
	metrics.ExecutionLockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: acquire execution slot: %w", domain.ErrPersistence, err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Unlock(unlockCtx); err != nil {
			logger.Error("failed to release execution slot", "error", err)
		}
	}()

	current, err := s.current(ctx, testCase.ID, sessionID, executionID)
	if err != nil {
		return nil, err
	}

	update, err := plan(current)
	if errors.Is(err, domain.ErrNoTransition) {
		logger.Debug("execution already in requested state")
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	for _, step := range update.StepNumbers() {
		if !testCase.HasStep(step) {
			return nil, fmt.Errorf("%w: test case %s has no step %d", domain.ErrValidation, testCase.ID, step)
		}
	}

	next := current.Clone()
	next.Apply(update)
	next.ExecutedBy = actor
	now := s.now()
	next.UpdatedAt = now

	op := "update"
	if !next.IsPersisted() {
		op = "insert"
		next.ID = s.newID()
		next.CreatedAt = now
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if op == "insert" {
		err = s.execRepo.Insert(ctx, next)
	} else {
		err = s.execRepo.Update(ctx, next)
	}
	if err != nil {
		metrics.ExecutionWritesTotal.WithLabelValues(string(next.Status), "error").Inc()
		logger.Error("failed to write execution", "op", op, "error", err)
		return nil, fmt.Errorf("%w: %s execution: %w", domain.ErrPersistence, op, err)
	}

	metrics.ExecutionWritesTotal.WithLabelValues(string(next.Status), op).Inc()
	logger.Info("execution saved", "op", op, "execution_id", next.ID, "status", next.Status)
	return next, nil
}

// current returns the row a write applies to: the known execution id if it
// still belongs to the slot, otherwise the latest row, otherwise a placeholder.
func (s *ExecutionService) current(ctx context.Context, testCaseID, sessionID, executionID string) (*domain.ExecutionRecord, error) {
	if executionID != "" {
		rec, err := s.execRepo.Get(ctx, executionID)
		switch {
		case err == nil && rec.TestCaseID == testCaseID && rec.SessionID == sessionID:
			return rec, nil
		case err == nil:
			return nil, fmt.Errorf("%w: execution %s does not belong to test case %s", domain.ErrValidation, executionID, testCaseID)
		case !errors.Is(err, domain.ErrExecutionNotFound):
			return nil, fmt.Errorf("%w: get execution %s: %w", domain.ErrPersistence, executionID, err)
		}
	}

	rec, err := s.execRepo.Latest(ctx, testCaseID, sessionID)
	if errors.Is(err, domain.ErrExecutionNotFound) {
		return domain.NewPlaceholder(testCaseID, sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get latest execution of %s: %w", domain.ErrPersistence, testCaseID, err)
	}
	return rec, nil
}

func latestPerTestCase(records []*domain.ExecutionRecord) map[string]*domain.ExecutionRecord {
	latest := make(map[string]*domain.ExecutionRecord, len(records))
	for _, rec := range records {
		cur, ok := latest[rec.TestCaseID]
		if !ok || rec.CreatedAt.After(cur.CreatedAt) {
			latest[rec.TestCaseID] = rec
		}
	}
	return latest
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func values(m *ExecutionMap) []*domain.ExecutionRecord {
	out := make([]*domain.ExecutionRecord, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
