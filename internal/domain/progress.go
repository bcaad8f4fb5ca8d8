// internal/domain/progress.go
package domain

import (
	"fmt"
	"time"
)

// SaveRequest merges Update onto the current execution of TestCaseID within
// SessionID, creating the row on first write.
type SaveRequest struct {
	TestCaseID  string          `json:"test_case_id"`
	SessionID   string          `json:"session_id,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"` // known id of the current row, if any
	ExecutedBy  string          `json:"executed_by"`
	Update      ExecutionUpdate `json:"update"`
}

// TransitionKind names a state machine action.
type TransitionKind string

const (
	TransitionToggleStep       TransitionKind = "toggle_step"
	TransitionFlagStepFailure  TransitionKind = "flag_step_failure"
	TransitionClearStepFailure TransitionKind = "clear_step_failure"
	TransitionMarkResult       TransitionKind = "mark_result"
	TransitionReset            TransitionKind = "reset"
)

// TransitionRequest asks the server to run one state machine action against
// the stored execution.
type TransitionRequest struct {
	TestCaseID string          `json:"test_case_id"`
	SessionID  string          `json:"session_id,omitempty"`
	ExecutedBy string          `json:"executed_by"`
	Kind       TransitionKind  `json:"kind"`
	StepNumber int             `json:"step_number,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Status     ExecutionStatus `json:"status,omitempty"`
	Detail     ResultDetail    `json:"detail"`
}

// Plan computes the update the action would apply to rec.
func (t TransitionRequest) Plan(rec *ExecutionRecord, now time.Time) (ExecutionUpdate, error) {
	switch t.Kind {
	case TransitionToggleStep:
		return ToggleStep(rec, t.StepNumber, now)
	case TransitionFlagStepFailure:
		return FlagStepFailure(rec, t.StepNumber, t.Reason)
	case TransitionClearStepFailure:
		return ClearStepFailure(rec, t.StepNumber)
	case TransitionMarkResult:
		return MarkResult(rec, t.Status, t.Detail, now)
	case TransitionReset:
		if rec.Status == ExecutionStatusNotRun && len(rec.CompletedSteps) == 0 && len(rec.FailedSteps) == 0 {
			return ExecutionUpdate{}, ErrNoTransition
		}
		return Reset(), nil
	}
	return ExecutionUpdate{}, fmt.Errorf("%w: unknown transition %q", ErrValidation, t.Kind)
}
