// internal/domain/execution.go
package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ExecutionStatus defines the status of a test execution.
type ExecutionStatus string

const (
	ExecutionStatusNotRun     ExecutionStatus = "not_run"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusPassed     ExecutionStatus = "passed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusBlocked    ExecutionStatus = "blocked"
	ExecutionStatusSkipped    ExecutionStatus = "skipped"
)

// Valid reports whether s is one of the known statuses.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusNotRun, ExecutionStatusInProgress, ExecutionStatusPassed,
		ExecutionStatusFailed, ExecutionStatusBlocked, ExecutionStatusSkipped:
		return true
	}
	return false
}

// IsResult reports whether s ends an attempt (passed, failed, blocked or skipped).
func (s ExecutionStatus) IsResult() bool {
	switch s {
	case ExecutionStatusPassed, ExecutionStatusFailed, ExecutionStatusBlocked, ExecutionStatusSkipped:
		return true
	}
	return false
}

// FailedStep is a step the tester explicitly flagged as failed.
type FailedStep struct {
	StepNumber    int    `json:"step_number"`
	FailureReason string `json:"failure_reason"`
}

// ExecutionRecord is the current recorded attempt to run one test case within an
// optional session. The same type is used for reads and writes.
type ExecutionRecord struct {
	ID         string `json:"id,omitempty"` // empty until persisted
	TestCaseID string `json:"test_case_id"`
	SessionID  string `json:"session_id,omitempty"`
	ExecutedBy string `json:"executed_by,omitempty"`

	Status         ExecutionStatus `json:"execution_status"`
	CompletedSteps []int           `json:"completed_steps"`
	FailedSteps    []FailedStep    `json:"failed_steps"`

	ExecutionNotes  string `json:"execution_notes,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
	TestEnvironment string `json:"test_environment,omitempty"`
	Browser         string `json:"browser,omitempty"`
	OSVersion       string `json:"os_version,omitempty"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewPlaceholder returns the in-memory not_run execution used for a test case
// that has no stored row yet.
func NewPlaceholder(testCaseID, sessionID string) *ExecutionRecord {
	return &ExecutionRecord{
		TestCaseID:     testCaseID,
		SessionID:      sessionID,
		Status:         ExecutionStatusNotRun,
		CompletedSteps: []int{},
		FailedSteps:    []FailedStep{},
	}
}

// IsPersisted reports whether the record has been written to the store.
func (r *ExecutionRecord) IsPersisted() bool {
	return r.ID != ""
}

// Clone returns a deep copy of the record.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	c := *r
	c.CompletedSteps = slices.Clone(r.CompletedSteps)
	c.FailedSteps = slices.Clone(r.FailedSteps)
	if c.CompletedSteps == nil {
		c.CompletedSteps = []int{}
	}
	if c.FailedSteps == nil {
		c.FailedSteps = []FailedStep{}
	}
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	if r.DurationMinutes != nil {
		d := *r.DurationMinutes
		c.DurationMinutes = &d
	}
	return &c
}

// Snapshot returns the update that brings any execution of the same slot to
// r's progress and result. Empty step lists are sent as clears so they
// survive JSON.
func (r *ExecutionRecord) Snapshot() ExecutionUpdate {
	c := r.Clone()
	u := ExecutionUpdate{
		Reset:           true,
		Status:          &c.Status,
		ExecutionNotes:  &c.ExecutionNotes,
		FailureReason:   &c.FailureReason,
		TestEnvironment: &c.TestEnvironment,
		Browser:         &c.Browser,
		OSVersion:       &c.OSVersion,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
		DurationMinutes: c.DurationMinutes,
	}
	if len(c.CompletedSteps) > 0 {
		u.CompletedSteps = c.CompletedSteps
	} else {
		u.ClearCompletedSteps = true
	}
	if len(c.FailedSteps) > 0 {
		u.FailedSteps = c.FailedSteps
	} else {
		u.ClearFailedSteps = true
	}
	return u
}

// HasCompletedStep reports whether stepNumber is marked done.
func (r *ExecutionRecord) HasCompletedStep(stepNumber int) bool {
	return slices.Contains(r.CompletedSteps, stepNumber)
}

// StepFailure returns the failure flagged for stepNumber, if any.
func (r *ExecutionRecord) StepFailure(stepNumber int) (FailedStep, bool) {
	for _, f := range r.FailedSteps {
		if f.StepNumber == stepNumber {
			return f, true
		}
	}
	return FailedStep{}, false
}

// Validate checks if the execution record can be written.
func (r *ExecutionRecord) Validate() error {
	if r.TestCaseID == "" {
		return fmt.Errorf("%w: execution test case id cannot be empty", ErrValidation)
	}
	if r.ExecutedBy == "" {
		return fmt.Errorf("%w: execution of %s has no acting user", ErrValidation, r.TestCaseID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: invalid execution status %q", ErrValidation, r.Status)
	}
	for _, n := range r.CompletedSteps {
		if n <= 0 {
			return fmt.Errorf("%w: invalid completed step %d", ErrValidation, n)
		}
	}
	for _, f := range r.FailedSteps {
		if f.StepNumber <= 0 {
			return fmt.Errorf("%w: invalid failed step %d", ErrValidation, f.StepNumber)
		}
	}
	return nil
}

// ExecutionUpdate is a partial update merged onto the current execution.
// Nil fields are left untouched. Reset clears the attempt before the other
// fields are applied.
type ExecutionUpdate struct {
	Reset bool `json:"reset,omitempty"`

	Status         *ExecutionStatus `json:"execution_status,omitempty"`
	CompletedSteps []int            `json:"completed_steps,omitempty"`
	FailedSteps    []FailedStep     `json:"failed_steps,omitempty"`

	ExecutionNotes  *string `json:"execution_notes,omitempty"`
	FailureReason   *string `json:"failure_reason,omitempty"`
	TestEnvironment *string `json:"test_environment,omitempty"`
	Browser         *string `json:"browser,omitempty"`
	OSVersion       *string `json:"os_version,omitempty"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`

	// ClearCompletedSteps and ClearFailedSteps distinguish "set to empty" from
	// "leave untouched" once the update has been through JSON.
	ClearCompletedSteps bool `json:"clear_completed_steps,omitempty"`
	ClearFailedSteps    bool `json:"clear_failed_steps,omitempty"`
}

// IsEmpty reports whether applying the update would change nothing.
func (u ExecutionUpdate) IsEmpty() bool {
	return !u.Reset && u.Status == nil && u.CompletedSteps == nil && u.FailedSteps == nil &&
		u.ExecutionNotes == nil && u.FailureReason == nil && u.TestEnvironment == nil &&
		u.Browser == nil && u.OSVersion == nil && u.StartedAt == nil && u.CompletedAt == nil &&
		u.DurationMinutes == nil && !u.ClearCompletedSteps && !u.ClearFailedSteps
}

// Merge combines two updates from the same user action; fields set in next win.
func (u ExecutionUpdate) Merge(next ExecutionUpdate) ExecutionUpdate {
	if next.Reset {
		return next
	}
	if next.Status != nil {
		u.Status = next.Status
	}
	if next.CompletedSteps != nil || next.ClearCompletedSteps {
		u.CompletedSteps, u.ClearCompletedSteps = next.CompletedSteps, next.ClearCompletedSteps
	}
	if next.FailedSteps != nil || next.ClearFailedSteps {
		u.FailedSteps, u.ClearFailedSteps = next.FailedSteps, next.ClearFailedSteps
	}
	u.ExecutionNotes = pick(u.ExecutionNotes, next.ExecutionNotes)
	u.FailureReason = pick(u.FailureReason, next.FailureReason)
	u.TestEnvironment = pick(u.TestEnvironment, next.TestEnvironment)
	u.Browser = pick(u.Browser, next.Browser)
	u.OSVersion = pick(u.OSVersion, next.OSVersion)
	u.StartedAt = pick(u.StartedAt, next.StartedAt)
	u.CompletedAt = pick(u.CompletedAt, next.CompletedAt)
	u.DurationMinutes = pick(u.DurationMinutes, next.DurationMinutes)
	return u
}

// Apply merges the update onto the record in place.
func (r *ExecutionRecord) Apply(u ExecutionUpdate) {
	if u.Reset {
		r.Status = ExecutionStatusNotRun
		r.CompletedSteps = []int{}
		r.FailedSteps = []FailedStep{}
		r.ExecutionNotes = ""
		r.FailureReason = ""
		r.StartedAt = nil
		r.CompletedAt = nil
		r.DurationMinutes = nil
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ClearCompletedSteps {
		r.CompletedSteps = []int{}
	}
	if u.CompletedSteps != nil {
		r.CompletedSteps = normalizeSteps(u.CompletedSteps)
	}
	if u.ClearFailedSteps {
		r.FailedSteps = []FailedStep{}
	}
	if u.FailedSteps != nil {
		r.FailedSteps = slices.Clone(u.FailedSteps)
	}
	assign(&r.ExecutionNotes, u.ExecutionNotes)
	assign(&r.FailureReason, u.FailureReason)
	assign(&r.TestEnvironment, u.TestEnvironment)
	assign(&r.Browser, u.Browser)
	assign(&r.OSVersion, u.OSVersion)
	if u.StartedAt != nil {
		r.StartedAt = cloneTime(u.StartedAt)
	}
	if u.CompletedAt != nil {
		r.CompletedAt = cloneTime(u.CompletedAt)
	}
	if u.DurationMinutes != nil {
		d := *u.DurationMinutes
		r.DurationMinutes = &d
	}
}

// StepNumbers lists every step number the update refers to.
func (u ExecutionUpdate) StepNumbers() []int {
	steps := slices.Clone(u.CompletedSteps)
	for _, f := range u.FailedSteps {
		steps = append(steps, f.StepNumber)
	}
	return steps
}

// ExecutionQuery selects executions of a set of test cases within one session scope.
// An empty SessionID selects executions recorded outside any session.
type ExecutionQuery struct {
	TestCaseIDs []string
	SessionID   string
}

// ExecutionRepository defines the interface for persisting and retrieving execution records.
type ExecutionRepository interface {
	// Query returns stored executions matching q, newest first. Several rows
	// per test case may be returned; callers select the latest.
	Query(ctx context.Context, q ExecutionQuery) ([]*ExecutionRecord, error)
	// Latest returns the newest execution for one test case and session scope,
	// or ErrExecutionNotFound.
	Latest(ctx context.Context, testCaseID, sessionID string) (*ExecutionRecord, error)
	// Get retrieves an execution by its id.
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	// Insert writes a new row. The record must carry its id.
	Insert(ctx context.Context, record *ExecutionRecord) error
	// Update overwrites the row identified by record.ID.
	Update(ctx context.Context, record *ExecutionRecord) error
}

func normalizeSteps(steps []int) []int {
	out := make([]int, 0, len(steps))
	for _, s := range steps {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func pick[T any](cur, next *T) *T {
	if next != nil {
		return next
	}
	return cur
}
