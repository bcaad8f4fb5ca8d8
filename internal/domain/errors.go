// internal/domain/errors.go
package domain

import "errors"

var (
	// ErrValidation marks a request that was rejected before any write was attempted.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a failure of the underlying store (unreachable, write rejected, ...).
	ErrPersistence = errors.New("persistence failure")

	ErrTestCaseNotFound  = errors.New("test case not found")
	ErrSessionNotFound   = errors.New("test session not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrReportNotFound    = errors.New("session report not found")

	// ErrNoTransition is returned when an action would not change the execution,
	// e.g. marking a test case passed that is already passed.
	ErrNoTransition = errors.New("execution already in requested state")
)
