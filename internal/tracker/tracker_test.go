package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/infra/memory"
	"exectrack/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	t0      = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
)

func testCases() []*domain.TestCase {
	steps := []domain.TestStep{{StepNumber: 1}, {StepNumber: 2}, {StepNumber: 3}}
	return []*domain.TestCase{
		{ID: "tc-1", GenerationID: "gen-1", Title: "Login", Steps: steps, CreatedAt: t0},
		{ID: "tc-2", GenerationID: "gen-1", Title: "Logout", Steps: steps, CreatedAt: t0.Add(time.Second)},
		{ID: "tc-3", GenerationID: "gen-1", Title: "Reset password", Steps: steps, CreatedAt: t0.Add(2 * time.Second)},
	}
}

// recordingNotifier collects notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (n *recordingNotifier) Notify(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, x)
}

func (n *recordingNotifier) kinds() []FailureKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []FailureKind
	for _, x := range n.items {
		if x.Level == LevelError {
			out = append(out, x.Kind)
		}
	}
	return out
}

// fakeStore counts calls and fails on demand.
type fakeStore struct {
	mu      sync.Mutex
	loadErr error
	saveErr error
	saves   []domain.SaveRequest
	rows    map[string]*domain.ExecutionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*domain.ExecutionRecord)}
}

func (s *fakeStore) LoadExecutions(_ context.Context, ids []string, sessionID string) ([]*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]*domain.ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.rows[id]; ok {
			out = append(out, rec.Clone())
			continue
		}
		out = append(out, domain.NewPlaceholder(id, sessionID))
	}
	return out, nil
}

func (s *fakeStore) SaveProgress(_ context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, req)
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	rec, ok := s.rows[req.TestCaseID]
	if !ok {
		rec = domain.NewPlaceholder(req.TestCaseID, req.SessionID)
		rec.ID = "ex-" + req.TestCaseID
		rec.CreatedAt = t0
	}
	rec.Apply(req.Update)
	rec.ExecutedBy = req.ExecutedBy
	s.rows[req.TestCaseID] = rec
	return rec.Clone(), nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func newTracker(t *testing.T, store Store, notifier Notifier, actor string, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return t0 }), WithLogger(discard)}, opts...)
	tr := New(store, notifier, actor, "", opts...)
	require.NoError(t, tr.Load(context.Background(), testCases()))
	return tr
}

func TestToggleTwiceRestoresSteps(t *testing.T) {
	tr := newTracker(t, newFakeStore(), &recordingNotifier{}, "alice")
	ctx := context.Background()

	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 2))
	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, []int{2}, rec.CompletedSteps)
	assert.Equal(t, domain.ExecutionStatusInProgress, rec.Status)

	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 2))
	rec, _ = tr.Execution("tc-1")
	assert.Empty(t, rec.CompletedSteps)
	assert.Equal(t, domain.ExecutionStatusInProgress, rec.Status, "toggling alone never moves status back")
}

func TestOneIntentIsOneSave(t *testing.T) {
	store := newFakeStore()
	tr := newTracker(t, store, &recordingNotifier{}, "alice")

	err := tr.Do(context.Background(), "tc-1", Toggle(1), Result(domain.ExecutionStatusPassed, domain.ResultDetail{}))
	require.NoError(t, err)

	require.Equal(t, 1, store.saveCount())
	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, domain.ExecutionStatusPassed, rec.Status)
	assert.Equal(t, []int{1}, rec.CompletedSteps)
	assert.Equal(t, "ex-tc-1", rec.ID)
	require.NotNil(t, rec.CompletedAt)
	require.NotNil(t, rec.DurationMinutes)
	assert.Equal(t, 0, *rec.DurationMinutes)
}

func TestNoOpActionDoesNotSave(t *testing.T) {
	store := newFakeStore()
	tr := newTracker(t, store, &recordingNotifier{}, "alice")
	ctx := context.Background()

	require.NoError(t, tr.Reset(ctx, "tc-1"))
	require.NoError(t, tr.MarkPassed(ctx, "tc-1"))
	require.NoError(t, tr.MarkPassed(ctx, "tc-1"))
	assert.Equal(t, 1, store.saveCount())
}

func TestSaveFailureKeepsOptimisticState(t *testing.T) {
	store := newFakeStore()
	store.saveErr = fmt.Errorf("%w: connection reset", domain.ErrPersistence)
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, notifier, "alice")

	err := tr.MarkResult(context.Background(), "tc-1", domain.ExecutionStatusFailed, domain.ResultDetail{FailureReason: "Login button unresponsive"})

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, SaveFailure, actionErr.Kind)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, domain.ExecutionStatusFailed, rec.Status, "local change is not reverted")
	assert.Equal(t, "Login button unresponsive", rec.FailureReason)
	assert.Equal(t, []FailureKind{SaveFailure}, notifier.kinds())
}

func TestRollbackPolicyRestoresState(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("boom")
	tr := newTracker(t, store, &recordingNotifier{}, "alice", WithWritePolicy(RollbackOnFailure))

	require.Error(t, tr.ToggleStep(context.Background(), "tc-2", 1))

	rec, _ := tr.Execution("tc-2")
	assert.Equal(t, domain.ExecutionStatusNotRun, rec.Status)
	assert.Empty(t, rec.CompletedSteps)
}

func TestLoadFailureKeepsPreviousState(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, notifier, "alice")
	require.NoError(t, tr.ToggleStep(context.Background(), "tc-1", 1))

	store.loadErr = errors.New("store unreachable")
	err := tr.Load(context.Background(), testCases()[:1])

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, LoadFailure, actionErr.Kind)
	assert.Len(t, tr.Cases(), 3)
	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, []int{1}, rec.CompletedSteps)
	assert.Equal(t, []FailureKind{LoadFailure}, notifier.kinds())
}

func TestMissingActorIsValidationFailure(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, notifier, "")

	err := tr.ToggleStep(context.Background(), "tc-1", 1)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, ValidationFailure, actionErr.Kind)
	assert.Zero(t, store.saveCount())
	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, domain.ExecutionStatusNotRun, rec.Status)
}

func TestUnknownStepIsRejectedLocally(t *testing.T) {
	store := newFakeStore()
	tr := newTracker(t, store, &recordingNotifier{}, "alice")

	err := tr.ToggleStep(context.Background(), "tc-1", 42)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, store.saveCount())

	err = tr.ToggleStep(context.Background(), "tc-9", 1)
	require.ErrorIs(t, err, domain.ErrTestCaseNotFound)
}

// A step may be completed and flagged failed at the same time; neither
// collection is adjusted when the other changes.
func TestCompletedAndFailedStepsAreIndependent(t *testing.T) {
	tr := newTracker(t, newFakeStore(), &recordingNotifier{}, "alice")
	ctx := context.Background()

	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 2))
	require.NoError(t, tr.FlagStepFailure(ctx, "tc-1", 2, "wrong redirect"))

	rec, _ := tr.Execution("tc-1")
	assert.Equal(t, []int{2}, rec.CompletedSteps)
	assert.Equal(t, []domain.FailedStep{{StepNumber: 2, FailureReason: "wrong redirect"}}, rec.FailedSteps)

	require.NoError(t, tr.ClearStepFailure(ctx, "tc-1", 2))
	rec, _ = tr.Execution("tc-1")
	assert.Equal(t, []int{2}, rec.CompletedSteps)
	assert.Empty(t, rec.FailedSteps)
}

func TestExpandCollapses(t *testing.T) {
	tr := newTracker(t, newFakeStore(), &recordingNotifier{}, "alice")

	tr.Expand("tc-2")
	assert.Equal(t, "tc-2", tr.Expanded())
	tr.Expand("tc-2")
	assert.Empty(t, tr.Expanded())
}

// End to end against the in-process service: stats follow each action and
// the first mutation creates exactly one row.
func TestTrackerAgainstService(t *testing.T) {
	ctx := context.Background()
	cases := memory.NewTestCaseRepository()
	for _, tc := range testCases() {
		require.NoError(t, cases.Save(ctx, tc))
	}
	execs := memory.NewExecutionRepository()
	svc := usecase.NewExecutionService(execs, cases, memory.NewSessionRepository(), memory.NewLocker(), time.Second, discard)

	tr := newTracker(t, ServiceStore{Service: svc}, &recordingNotifier{}, "alice")
	assert.Equal(t, domain.ExecutionStats{Total: 3, NotRun: 3}, tr.Stats())
	assert.Zero(t, execs.Len())

	require.NoError(t, tr.MarkPassed(ctx, "tc-1"))
	assert.Equal(t, domain.ExecutionStats{Total: 3, Passed: 1, NotRun: 2}, tr.Stats())

	require.NoError(t, tr.ToggleStep(ctx, "tc-2", 1))
	assert.Equal(t, domain.ExecutionStats{Total: 3, Passed: 1, InProgress: 1, NotRun: 1}, tr.Stats())
	assert.Equal(t, 2, execs.Len())

	require.NoError(t, tr.ToggleStep(ctx, "tc-2", 2))
	assert.Equal(t, 2, execs.Len(), "later writes update the same row")

	// A fresh view over the same store sees what was written.
	reloaded := newTracker(t, ServiceStore{Service: svc}, &recordingNotifier{}, "bob")
	rec, _ := reloaded.Execution("tc-2")
	assert.Equal(t, []int{1, 2}, rec.CompletedSteps)
}

func TestConcurrentActionsOnOneCaseAreQueued(t *testing.T) {
	store := newFakeStore()
	tr := newTracker(t, store, &recordingNotifier{}, "alice")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, step := range []int{1, 2, 3} {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			assert.NoError(t, tr.ToggleStep(ctx, "tc-3", step))
		}(step)
	}
	wg.Wait()

	rec, _ := tr.Execution("tc-3")
	assert.Equal(t, []int{1, 2, 3}, rec.CompletedSteps)
	assert.Equal(t, 3, store.saveCount())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, store.rows["tc-3"].CompletedSteps)
	assert.Equal(t, "", store.saves[0].ExecutionID)
	assert.Equal(t, "ex-tc-3", store.saves[2].ExecutionID)
}

// flakyStore fails the next failures saves, then passes through.
type flakyStore struct {
	Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *flakyStore) SaveProgress(ctx context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: connection reset", domain.ErrPersistence)
	}
	return s.Store.SaveProgress(ctx, req)
}

func newExecutionService(t *testing.T) *usecase.ExecutionService {
	t.Helper()
	ctx := context.Background()
	cases := memory.NewTestCaseRepository()
	for _, tc := range testCases() {
		require.NoError(t, cases.Save(ctx, tc))
	}
	return usecase.NewExecutionService(memory.NewExecutionRepository(), cases, memory.NewSessionRepository(), memory.NewLocker(), time.Second, discard)
}

func TestFailedFirstSaveReachesStoreWithNextAction(t *testing.T) {
	ctx := context.Background()
	svc := newExecutionService(t)
	store := &flakyStore{Store: ServiceStore{Service: svc}}
	store.failNext(1)
	tr := newTracker(t, store, &recordingNotifier{}, "alice")

	var actionErr *ActionError
	require.ErrorAs(t, tr.ToggleStep(ctx, "tc-1", 1), &actionErr)
	assert.Equal(t, SaveFailure, actionErr.Kind)
	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 2))

	local, _ := tr.Execution("tc-1")
	assert.Equal(t, domain.ExecutionStatusInProgress, local.Status)
	assert.Equal(t, []int{1, 2}, local.CompletedSteps)
	require.NotNil(t, local.StartedAt)
	assert.True(t, t0.Equal(*local.StartedAt))
	assert.True(t, local.IsPersisted())

	reloaded := newTracker(t, ServiceStore{Service: svc}, &recordingNotifier{}, "bob")
	stored, _ := reloaded.Execution("tc-1")
	assert.Equal(t, domain.ExecutionStatusInProgress, stored.Status)
	assert.Equal(t, []int{1, 2}, stored.CompletedSteps)
	require.NotNil(t, stored.StartedAt)
	assert.True(t, t0.Equal(*stored.StartedAt))
	assert.Equal(t, domain.ExecutionStats{Total: 3, InProgress: 1, NotRun: 2}, reloaded.Stats())
}

func TestUnsavedResultIsNotRevertedByLaterSave(t *testing.T) {
	ctx := context.Background()
	svc := newExecutionService(t)
	store := &flakyStore{Store: ServiceStore{Service: svc}}
	tr := newTracker(t, store, &recordingNotifier{}, "alice")

	require.NoError(t, tr.ToggleStep(ctx, "tc-2", 1))
	store.failNext(1)
	require.Error(t, tr.MarkResult(ctx, "tc-2", domain.ExecutionStatusFailed, domain.ResultDetail{FailureReason: "Logout link missing"}))
	require.NoError(t, tr.ToggleStep(ctx, "tc-2", 2))

	local, _ := tr.Execution("tc-2")
	assert.Equal(t, domain.ExecutionStatusFailed, local.Status, "unsaved result survives the next save")
	assert.Equal(t, "Logout link missing", local.FailureReason)
	assert.Equal(t, []int{1, 2}, local.CompletedSteps)

	reloaded := newTracker(t, ServiceStore{Service: svc}, &recordingNotifier{}, "bob")
	stored, _ := reloaded.Execution("tc-2")
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "Logout link missing", stored.FailureReason)
	assert.Equal(t, []int{1, 2}, stored.CompletedSteps)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, domain.ExecutionStats{Total: 3, Failed: 1, NotRun: 2}, reloaded.Stats())
}

func TestRollbackThenSaveMatchesLocalState(t *testing.T) {
	ctx := context.Background()
	svc := newExecutionService(t)
	store := &flakyStore{Store: ServiceStore{Service: svc}}
	tr := newTracker(t, store, &recordingNotifier{}, "alice", WithWritePolicy(RollbackOnFailure))

	require.NoError(t, tr.ToggleStep(ctx, "tc-3", 1))
	store.failNext(1)
	require.Error(t, tr.MarkPassed(ctx, "tc-3"))
	require.NoError(t, tr.ToggleStep(ctx, "tc-3", 2))

	local, _ := tr.Execution("tc-3")
	reloaded := newTracker(t, ServiceStore{Service: svc}, &recordingNotifier{}, "bob")
	stored, _ := reloaded.Execution("tc-3")
	assert.Equal(t, domain.ExecutionStatusInProgress, local.Status)
	assert.Equal(t, local.Status, stored.Status)
	assert.Equal(t, local.CompletedSteps, stored.CompletedSteps)
	assert.Nil(t, stored.CompletedAt)
}

func TestSaveAfterFailureSendsWholeExecution(t *testing.T) {
	store := newFakeStore()
	tr := newTracker(t, store, &recordingNotifier{}, "alice")
	ctx := context.Background()

	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 1))
	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 2))

	store.mu.Lock()
	store.saveErr = errors.New("boom")
	store.mu.Unlock()
	require.Error(t, tr.MarkResult(ctx, "tc-1", domain.ExecutionStatusBlocked, domain.ResultDetail{FailureReason: "no test data"}))

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	require.NoError(t, tr.ToggleStep(ctx, "tc-1", 3))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saves, 4)
	assert.True(t, store.saves[0].Update.Reset, "first write creates the row from the local record")
	assert.False(t, store.saves[1].Update.Reset, "synced row gets the delta")
	last := store.saves[3].Update
	assert.True(t, last.Reset)
	require.NotNil(t, last.Status)
	assert.Equal(t, domain.ExecutionStatusBlocked, *last.Status)
	assert.Equal(t, domain.ExecutionStatusBlocked, store.rows["tc-1"].Status)
	assert.Equal(t, "no test data", store.rows["tc-1"].FailureReason)
	assert.Equal(t, []int{1, 2, 3}, store.rows["tc-1"].CompletedSteps)
}
