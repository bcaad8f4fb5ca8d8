// Package tracker owns the state of one execution view: the test cases being
// worked through, their current executions and the expanded case. A Tracker
// lives as long as the view and is not shared between views.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"exectrack/internal/domain"
)

// Action computes the update one user intent applies to an execution.
type Action func(rec *domain.ExecutionRecord, now time.Time) (domain.ExecutionUpdate, error)

// Toggle adds or removes a completed step.
func Toggle(step int) Action {
	return func(rec *domain.ExecutionRecord, now time.Time) (domain.ExecutionUpdate, error) {
		return domain.ToggleStep(rec, step, now)
	}
}

// FlagFailure records a failure reason against a step.
func FlagFailure(step int, reason string) Action {
	return func(rec *domain.ExecutionRecord, _ time.Time) (domain.ExecutionUpdate, error) {
		return domain.FlagStepFailure(rec, step, reason)
	}
}

// ClearFailure removes a step's failure flag.
func ClearFailure(step int) Action {
	return func(rec *domain.ExecutionRecord, _ time.Time) (domain.ExecutionUpdate, error) {
		return domain.ClearStepFailure(rec, step)
	}
}

// Result records a result status with the collected detail.
func Result(status domain.ExecutionStatus, detail domain.ResultDetail) Action {
	return func(rec *domain.ExecutionRecord, now time.Time) (domain.ExecutionUpdate, error) {
		return domain.MarkResult(rec, status, detail, now)
	}
}

// ResetAction clears the attempt. Resetting an untouched execution changes nothing.
func ResetAction() Action {
	return func(rec *domain.ExecutionRecord, now time.Time) (domain.ExecutionUpdate, error) {
		return domain.TransitionRequest{Kind: domain.TransitionReset}.Plan(rec, now)
	}
}

// Tracker is the explicit state object of one view.
type Tracker struct {
	store    Store
	notifier Notifier
	policy   WritePolicy
	now      func() time.Time
	logger   *slog.Logger

	actor     string
	sessionID string

	mu           sync.Mutex
	cases        []*domain.TestCase
	executions   map[string]*domain.ExecutionRecord
	expandedCase string
	queues       map[string]chan struct{} // tail of each test case's write queue
	unsynced     map[string]bool          // a save failed since the last successful one
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithWritePolicy(p WritePolicy) Option { return func(t *Tracker) { t.policy = p } }

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// New creates the state for a view acting as actor within sessionID (which
// may be empty).
func New(store Store, notifier Notifier, actor, sessionID string, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		notifier:   notifier,
		policy:     OptimisticWriteThrough,
		now:        time.Now,
		logger:     slog.Default(),
		actor:      actor,
		sessionID:  sessionID,
		executions: make(map[string]*domain.ExecutionRecord),
		queues:     make(map[string]chan struct{}),
		unsynced:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tracker", "session_id", sessionID)
	return t
}

// Load replaces the view with cases and their current executions. On failure
// the previous state is kept.
func (t *Tracker) Load(ctx context.Context, cases []*domain.TestCase) error {
	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		ids = append(ids, c.ID)
	}

	records, err := t.store.LoadExecutions(ctx, ids, t.sessionID)
	if err != nil {
		return t.fail(LoadFailure, "", "Could not load executions", err)
	}

	executions := make(map[string]*domain.ExecutionRecord, len(ids))
	for _, rec := range records {
		executions[rec.TestCaseID] = rec.Clone()
	}
	for _, id := range ids {
		if _, ok := executions[id]; !ok {
			executions[id] = domain.NewPlaceholder(id, t.sessionID)
		}
	}

	t.mu.Lock()
	t.cases = slices.Clone(cases)
	t.executions = executions
	t.unsynced = make(map[string]bool)
	if _, ok := executions[t.expandedCase]; !ok {
		t.expandedCase = ""
	}
	t.mu.Unlock()
	t.logger.Debug("view loaded", "test_cases", len(cases), "stored", len(records))
	return nil
}

func (t *Tracker) ToggleStep(ctx context.Context, testCaseID string, step int) error {
	return t.Do(ctx, testCaseID, Toggle(step))
}

func (t *Tracker) FlagStepFailure(ctx context.Context, testCaseID string, step int, reason string) error {
	return t.Do(ctx, testCaseID, FlagFailure(step, reason))
}

func (t *Tracker) ClearStepFailure(ctx context.Context, testCaseID string, step int) error {
	return t.Do(ctx, testCaseID, ClearFailure(step))
}

// MarkPassed is the simple pass: no detail is collected.
func (t *Tracker) MarkPassed(ctx context.Context, testCaseID string) error {
	return t.Do(ctx, testCaseID, Result(domain.ExecutionStatusPassed, domain.ResultDetail{}))
}

func (t *Tracker) MarkResult(ctx context.Context, testCaseID string, status domain.ExecutionStatus, detail domain.ResultDetail) error {
	return t.Do(ctx, testCaseID, Result(status, detail))
}

func (t *Tracker) Reset(ctx context.Context, testCaseID string) error {
	return t.Do(ctx, testCaseID, ResetAction())
}

// Do applies the actions of one user intent in order and persists their
// merged effect with a single save. Actions that change nothing are skipped;
// if none changes anything, nothing is written.
func (t *Tracker) Do(ctx context.Context, testCaseID string, actions ...Action) error {
	if t.actor == "" {
		return t.fail(ValidationFailure, testCaseID, "Sign in before recording progress", errors.New("acting user is required"))
	}

	t.mu.Lock()
	current, ok := t.executions[testCaseID]
	if !ok {
		t.mu.Unlock()
		return t.fail(ValidationFailure, testCaseID, "Test case is not part of this view",
			fmt.Errorf("%w: %s", domain.ErrTestCaseNotFound, testCaseID))
	}

	now := t.now()
	working := current.Clone()
	var (
		merged  domain.ExecutionUpdate
		changed bool
	)
	for _, action := range actions {
		u, err := action(working, now)
		if errors.Is(err, domain.ErrNoTransition) {
			continue
		}
		if err != nil {
			t.mu.Unlock()
			return t.fail(ValidationFailure, testCaseID, "Action rejected", err)
		}
		if err := t.checkSteps(testCaseID, u); err != nil {
			t.mu.Unlock()
			return t.fail(ValidationFailure, testCaseID, "Action rejected", err)
		}
		working.Apply(u)
		merged = merged.Merge(u)
		changed = true
	}
	if !changed {
		t.mu.Unlock()
		return nil
	}

	before := current
	t.executions[testCaseID] = working
	prev, done := t.enqueue(testCaseID)
	t.mu.Unlock()

	defer close(done)
	select {
	case <-prev:
	case <-ctx.Done():
		t.settleFailure(testCaseID, before, working)
		return t.fail(SaveFailure, testCaseID, "Progress not saved", ctx.Err())
	}
	return t.save(ctx, testCaseID, merged, before, working)
}

// enqueue appends a write to the test case's FIFO queue. The caller waits on
// prev and closes done when finished. Must hold t.mu.
func (t *Tracker) enqueue(testCaseID string) (prev <-chan struct{}, done chan struct{}) {
	p, ok := t.queues[testCaseID]
	if !ok {
		closed := make(chan struct{})
		close(closed)
		p = closed
	}
	done = make(chan struct{})
	t.queues[testCaseID] = done
	return p, done
}

// save writes u for testCaseID. When the row may not exist yet or an earlier
// save failed, the whole of after is sent instead of u.
func (t *Tracker) save(ctx context.Context, testCaseID string, u domain.ExecutionUpdate, before, after *domain.ExecutionRecord) error {
	var executionID string
	t.mu.Lock()
	if local, ok := t.executions[testCaseID]; ok {
		executionID = local.ID
	}
	resync := t.unsynced[testCaseID] || executionID == ""
	t.mu.Unlock()

	payload := u
	if resync {
		payload = after.Snapshot()
		t.logger.Debug("sending full execution", "test_case_id", testCaseID, "execution_id", executionID)
	}

	saved, err := t.store.SaveProgress(ctx, domain.SaveRequest{
		TestCaseID:  testCaseID,
		SessionID:   t.sessionID,
		ExecutionID: executionID,
		ExecutedBy:  t.actor,
		Update:      payload,
	})
	if err != nil {
		t.settleFailure(testCaseID, before, after)
		if errors.Is(err, domain.ErrValidation) {
			return t.fail(ValidationFailure, testCaseID, "Progress rejected", err)
		}
		return t.fail(SaveFailure, testCaseID, "Progress not saved", err)
	}

	t.mu.Lock()
	delete(t.unsynced, testCaseID)
	switch local, ok := t.executions[testCaseID]; {
	case !ok:
		// Reloaded without this test case in the meantime.
	case local == after:
		// No later action touched the execution: the stored row is the view.
		t.executions[testCaseID] = saved.Clone()
	default:
		local.ID = saved.ID
		local.CreatedAt = saved.CreatedAt
		local.UpdatedAt = saved.UpdatedAt
		local.ExecutedBy = saved.ExecutedBy
	}
	t.mu.Unlock()

	if u.Status != nil && u.Status.IsResult() {
		t.notifier.Notify(Notification{Level: LevelInfo, TestCaseID: testCaseID, Message: "Marked " + string(*u.Status)})
	}
	return nil
}

// settleFailure applies the write policy after a failed save and marks the
// test case for a full write next time.
func (t *Tracker) settleFailure(testCaseID string, before, after *domain.ExecutionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsynced[testCaseID] = true
	if t.policy == RollbackOnFailure && t.executions[testCaseID] == after {
		t.executions[testCaseID] = before
	}
}

// checkSteps rejects step numbers the test case does not define. Must hold t.mu.
func (t *Tracker) checkSteps(testCaseID string, u domain.ExecutionUpdate) error {
	idx := slices.IndexFunc(t.cases, func(c *domain.TestCase) bool { return c.ID == testCaseID })
	if idx < 0 {
		return nil
	}
	for _, step := range u.StepNumbers() {
		if !t.cases[idx].HasStep(step) {
			return fmt.Errorf("%w: test case %s has no step %d", domain.ErrValidation, testCaseID, step)
		}
	}
	return nil
}

func (t *Tracker) fail(kind FailureKind, testCaseID, message string, err error) error {
	t.logger.Warn("tracker action failed", "kind", kind, "test_case_id", testCaseID, "error", err)
	t.notifier.Notify(Notification{Level: LevelError, Kind: kind, TestCaseID: testCaseID, Message: message})
	return &ActionError{Kind: kind, TestCaseID: testCaseID, Err: err}
}

// Expand shows the steps of testCaseID; expanding the expanded case collapses it.
func (t *Tracker) Expand(testCaseID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expandedCase == testCaseID {
		t.expandedCase = ""
		return
	}
	t.expandedCase = testCaseID
}

// Expanded returns the expanded test case id, or "".
func (t *Tracker) Expanded() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expandedCase
}

// Execution returns a copy of the current execution of testCaseID.
func (t *Tracker) Execution(testCaseID string) (*domain.ExecutionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.executions[testCaseID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Cases returns the test cases of the view in order.
func (t *Tracker) Cases() []*domain.TestCase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.cases)
}

// Stats aggregates the view's executions over all of its test cases.
func (t *Tracker) Stats() domain.ExecutionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	executions := make([]*domain.ExecutionRecord, 0, len(t.executions))
	for _, c := range t.cases {
		if rec, ok := t.executions[c.ID]; ok {
			executions = append(executions, rec)
		}
	}
	return domain.ComputeStats(executions, len(t.cases))
}
