// internal/domain/testcase.go
package domain

import (
	"context"
	"fmt"
	"time"
)

// Priority of a test case as assigned by the generator.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// CaseStatus is the authoring lifecycle of a test case.
type CaseStatus string

const (
	CaseStatusDraft    CaseStatus = "draft"
	CaseStatusActive   CaseStatus = "active"
	CaseStatusArchived CaseStatus = "archived"
)

// TestStep is one numbered action of a test case.
type TestStep struct {
	StepNumber int    `json:"step_number" yaml:"step_number"`
	Action     string `json:"action" yaml:"action"`
	Expected   string `json:"expected" yaml:"expected"`
}

// TestCase is authored by the generation subsystem and read-only to the tracker.
type TestCase struct {
	ID           string     `json:"id" yaml:"id"`
	GenerationID string     `json:"generation_id,omitempty" yaml:"generation_id"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description,omitempty" yaml:"description"`
	Steps        []TestStep `json:"steps" yaml:"steps"`
	Priority     Priority   `json:"priority" yaml:"priority"`
	IsEdgeCase   bool       `json:"is_edge_case" yaml:"is_edge_case"`
	Status       CaseStatus `json:"status" yaml:"status"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// Validate checks the test case definition and fills in defaults.
func (c *TestCase) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: test case id cannot be empty", ErrValidation)
	}
	if c.Title == "" {
		return fmt.Errorf("%w: test case %s has no title", ErrValidation, c.ID)
	}
	seen := make(map[int]struct{}, len(c.Steps))
	for _, step := range c.Steps {
		if step.StepNumber <= 0 {
			return fmt.Errorf("%w: test case %s has non-positive step number %d", ErrValidation, c.ID, step.StepNumber)
		}
		if _, dup := seen[step.StepNumber]; dup {
			return fmt.Errorf("%w: test case %s has duplicate step number %d", ErrValidation, c.ID, step.StepNumber)
		}
		seen[step.StepNumber] = struct{}{}
	}

	switch c.Priority {
	case "":
		c.Priority = PriorityMedium
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, c.Priority)
	}
	switch c.Status {
	case "":
		c.Status = CaseStatusActive
	case CaseStatusDraft, CaseStatusActive, CaseStatusArchived:
	default:
		return fmt.Errorf("%w: invalid test case status %q", ErrValidation, c.Status)
	}
	return nil
}

// HasStep reports whether the test case defines the given step number.
func (c *TestCase) HasStep(stepNumber int) bool {
	for _, step := range c.Steps {
		if step.StepNumber == stepNumber {
			return true
		}
	}
	return false
}

// TestCaseRepository persists and retrieves test cases.
type TestCaseRepository interface {
	Save(ctx context.Context, testCase *TestCase) error
	Get(ctx context.Context, id string) (*TestCase, error)
	// ListByGeneration returns the test cases of one generation, oldest first.
	ListByGeneration(ctx context.Context, generationID string) ([]*TestCase, error)
}
