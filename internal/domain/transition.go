// internal/domain/transition.go
package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// ResultDetail is what the tester supplies when recording a result.
// For failed, blocked and skipped results it is collected before the write.
type ResultDetail struct {
	TestEnvironment string       `json:"test_environment,omitempty"`
	Browser         string       `json:"browser,omitempty"`
	OSVersion       string       `json:"os_version,omitempty"`
	ExecutionNotes  string       `json:"execution_notes,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	FailedSteps     []FailedStep `json:"failed_steps,omitempty"`
}

// ToggleStep adds stepNumber to the completed steps, or removes it if present.
// A not_run execution advances to in_progress and gets its start time.
func ToggleStep(rec *ExecutionRecord, stepNumber int, now time.Time) (ExecutionUpdate, error) {
	if stepNumber <= 0 {
		return ExecutionUpdate{}, fmt.Errorf("%w: invalid step number %d", ErrValidation, stepNumber)
	}

	steps := slices.Clone(rec.CompletedSteps)
	if i := slices.Index(steps, stepNumber); i >= 0 {
		steps = slices.Delete(steps, i, i+1)
	} else {
		steps = append(steps, stepNumber)
		slices.Sort(steps)
	}

	u := ExecutionUpdate{CompletedSteps: steps}
	if len(steps) == 0 {
		u.CompletedSteps = []int{}
		u.ClearCompletedSteps = true
	}
	if rec.Status == ExecutionStatusNotRun || rec.Status == "" {
		status := ExecutionStatusInProgress
		u.Status = &status
	}
	if rec.StartedAt == nil {
		started := now
		u.StartedAt = &started
	}
	return u, nil
}

// FlagStepFailure records reason against stepNumber, replacing an earlier flag
// for the same step. The completed steps are not consulted: a step may be both
// completed and flagged.
func FlagStepFailure(rec *ExecutionRecord, stepNumber int, reason string) (ExecutionUpdate, error) {
	if stepNumber <= 0 {
		return ExecutionUpdate{}, fmt.Errorf("%w: invalid step number %d", ErrValidation, stepNumber)
	}
	failed := make([]FailedStep, 0, len(rec.FailedSteps)+1)
	for _, f := range rec.FailedSteps {
		if f.StepNumber != stepNumber {
			failed = append(failed, f)
		}
	}
	failed = append(failed, FailedStep{StepNumber: stepNumber, FailureReason: reason})
	slices.SortFunc(failed, func(a, b FailedStep) int { return a.StepNumber - b.StepNumber })
	return ExecutionUpdate{FailedSteps: failed}, nil
}

// ClearStepFailure removes the failure flag of stepNumber.
func ClearStepFailure(rec *ExecutionRecord, stepNumber int) (ExecutionUpdate, error) {
	if _, ok := rec.StepFailure(stepNumber); !ok {
		return ExecutionUpdate{}, ErrNoTransition
	}
	failed := make([]FailedStep, 0, len(rec.FailedSteps))
	for _, f := range rec.FailedSteps {
		if f.StepNumber != stepNumber {
			failed = append(failed, f)
		}
	}
	u := ExecutionUpdate{FailedSteps: failed}
	if len(failed) == 0 {
		u.ClearFailedSteps = true
	}
	return u, nil
}

// MarkResult records a result for the attempt. Every result sets completed_at;
// duration_minutes is derived only when the attempt has a start time.
// Marking a result never sets started_at, so a result recorded straight from
// not_run carries no duration. Re-marking the current status returns
// ErrNoTransition.
func MarkResult(rec *ExecutionRecord, status ExecutionStatus, detail ResultDetail, now time.Time) (ExecutionUpdate, error) {
	if !status.IsResult() {
		return ExecutionUpdate{}, fmt.Errorf("%w: %q is not a result status", ErrValidation, status)
	}
	if rec.Status == status {
		return ExecutionUpdate{}, ErrNoTransition
	}

	completed := now
	u := ExecutionUpdate{
		Status:      &status,
		CompletedAt: &completed,
	}
	if rec.StartedAt != nil {
		d := DurationMinutes(*rec.StartedAt, completed)
		u.DurationMinutes = &d
	}

	if detail.TestEnvironment != "" {
		u.TestEnvironment = &detail.TestEnvironment
	}
	if detail.Browser != "" {
		u.Browser = &detail.Browser
	}
	if detail.OSVersion != "" {
		u.OSVersion = &detail.OSVersion
	}
	if detail.ExecutionNotes != "" {
		u.ExecutionNotes = &detail.ExecutionNotes
	}
	if detail.FailureReason != "" {
		u.FailureReason = &detail.FailureReason
	}
	for _, f := range detail.FailedSteps {
		if f.StepNumber <= 0 {
			return ExecutionUpdate{}, fmt.Errorf("%w: invalid failed step %d", ErrValidation, f.StepNumber)
		}
	}
	if len(detail.FailedSteps) > 0 {
		u.FailedSteps = slices.Clone(detail.FailedSteps)
	}
	return u, nil
}

// Reset returns the execution to not_run and clears the attempt.
func Reset() ExecutionUpdate {
	status := ExecutionStatusNotRun
	return ExecutionUpdate{Reset: true, Status: &status}
}

// DurationMinutes is the attempt length rounded to whole minutes.
func DurationMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}
