// internal/domain/session.go
package domain

import (
	"context"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle of a test run session.
type SessionStatus string

const (
	SessionStatusPlanned    SessionStatus = "planned"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusAborted    SessionStatus = "aborted"
)

// TestSession groups executions for reporting, e.g. "Sprint 12 Regression".
type TestSession struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Status       SessionStatus `json:"status" yaml:"status"`
	Environment  string        `json:"environment,omitempty" yaml:"environment"`
	GenerationID string        `json:"generation_id,omitempty" yaml:"generation_id"`
	ActualStart  *time.Time    `json:"actual_start,omitempty" yaml:"actual_start"`
	ActualEnd    *time.Time    `json:"actual_end,omitempty" yaml:"actual_end"`
}

// Validate checks the session definition.
func (s *TestSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: session id cannot be empty", ErrValidation)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: session %s has no name", ErrValidation, s.ID)
	}
	switch s.Status {
	case "":
		s.Status = SessionStatusPlanned
	case SessionStatusPlanned, SessionStatusInProgress, SessionStatusCompleted, SessionStatusAborted:
	default:
		return fmt.Errorf("%w: invalid session status %q", ErrValidation, s.Status)
	}
	if s.ActualStart != nil && s.ActualEnd != nil && s.ActualEnd.Before(*s.ActualStart) {
		return fmt.Errorf("%w: session %s ends before it starts", ErrValidation, s.ID)
	}
	return nil
}

// SessionRepository persists and retrieves test sessions.
type SessionRepository interface {
	Save(ctx context.Context, session *TestSession) error
	Get(ctx context.Context, id string) (*TestSession, error)
	List(ctx context.Context) ([]*TestSession, error)
}
