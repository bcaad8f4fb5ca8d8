package tracker

import (
	"fmt"
)

// FailureKind classifies why a tracker action failed.
type FailureKind string

const (
	// LoadFailure: reading executions failed; the previous view state is kept.
	LoadFailure FailureKind = "load_failure"
	// SaveFailure: persisting an update failed; see WritePolicy for what
	// happens to the local state.
	SaveFailure FailureKind = "save_failure"
	// ValidationFailure: the action was rejected before any write.
	ValidationFailure FailureKind = "validation_failure"
)

// ActionError is returned by every failed tracker action.
type ActionError struct {
	Kind       FailureKind
	TestCaseID string
	Err        error
}

func (e *ActionError) Error() string {
	if e.TestCaseID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Kind, e.TestCaseID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
