// Package dto holds the request and response bodies shared by the HTTP and
// gRPC APIs, together with their validation rules.
package dto

import (
	"exectrack/internal/domain"
)

// ExecutionQuery selects the test cases of a view and the session scope of
// their executions. Either explicit ids or a generation is required.
type ExecutionQuery struct {
	TestCaseIDs  []string `json:"test_case_ids,omitempty" validate:"required_without=GenerationID,omitempty,dive,required,max=128"`
	GenerationID string   `json:"generation_id,omitempty" validate:"omitempty,max=128"`
	SessionID    string   `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// ExecutionList is the gRPC form of a loaded view: records in test case order.
type ExecutionList struct {
	Executions []*domain.ExecutionRecord `json:"executions"`
}

// SaveProgressRequest is the DTO for merging a partial update onto an execution.
type SaveProgressRequest struct {
	TestCaseID  string                 `json:"test_case_id" validate:"required,max=128"`
	SessionID   string                 `json:"session_id,omitempty" validate:"omitempty,max=128"`
	ExecutionID string                 `json:"execution_id,omitempty" validate:"omitempty,max=128"`
	ExecutedBy  string                 `json:"executed_by" validate:"required,max=128"`
	Update      domain.ExecutionUpdate `json:"update"`
}

// ToDomain converts the DTO to a domain.SaveRequest.
func (r *SaveProgressRequest) ToDomain() domain.SaveRequest {
	return domain.SaveRequest{
		TestCaseID:  r.TestCaseID,
		SessionID:   r.SessionID,
		ExecutionID: r.ExecutionID,
		ExecutedBy:  r.ExecutedBy,
		Update:      r.Update,
	}
}

// FailedStepRequest flags one step as failed when recording a result.
type FailedStepRequest struct {
	StepNumber    int    `json:"step_number" validate:"gt=0"`
	FailureReason string `json:"failure_reason" validate:"max=2000"`
}

// ResultDetailRequest is what a tester fills in when recording a result.
type ResultDetailRequest struct {
	TestEnvironment string              `json:"test_environment,omitempty" validate:"max=64"`
	Browser         string              `json:"browser,omitempty" validate:"max=64"`
	OSVersion       string              `json:"os_version,omitempty" validate:"max=64"`
	ExecutionNotes  string              `json:"execution_notes,omitempty" validate:"max=4000"`
	FailureReason   string              `json:"failure_reason,omitempty" validate:"max=2000"`
	FailedSteps     []FailedStepRequest `json:"failed_steps,omitempty" validate:"omitempty,dive"`
}

// TransitionRequest is the DTO for one state machine action. The HTTP API
// fills Kind, TestCaseID and StepNumber from the route.
type TransitionRequest struct {
	TestCaseID string              `json:"test_case_id" validate:"required,max=128"`
	SessionID  string              `json:"session_id,omitempty" validate:"omitempty,max=128"`
	ExecutedBy string              `json:"executed_by" validate:"required,max=128"`
	Kind       string              `json:"kind" validate:"required,oneof=toggle_step flag_step_failure clear_step_failure mark_result reset"`
	StepNumber int                 `json:"step_number,omitempty" validate:"gte=0"`
	Reason     string              `json:"reason,omitempty" validate:"max=2000"`
	Status     string              `json:"status,omitempty" validate:"required_if=Kind mark_result,omitempty,oneof=passed failed blocked skipped"`
	Detail     ResultDetailRequest `json:"detail"`
}

// ToDomain converts the DTO to a domain.TransitionRequest.
func (r *TransitionRequest) ToDomain() domain.TransitionRequest {
	failed := make([]domain.FailedStep, 0, len(r.Detail.FailedSteps))
	for _, f := range r.Detail.FailedSteps {
		failed = append(failed, domain.FailedStep{StepNumber: f.StepNumber, FailureReason: f.FailureReason})
	}
	return domain.TransitionRequest{
		TestCaseID: r.TestCaseID,
		SessionID:  r.SessionID,
		ExecutedBy: r.ExecutedBy,
		Kind:       domain.TransitionKind(r.Kind),
		StepNumber: r.StepNumber,
		Reason:     r.Reason,
		Status:     domain.ExecutionStatus(r.Status),
		Detail: domain.ResultDetail{
			TestEnvironment: r.Detail.TestEnvironment,
			Browser:         r.Detail.Browser,
			OSVersion:       r.Detail.OSVersion,
			ExecutionNotes:  r.Detail.ExecutionNotes,
			FailureReason:   r.Detail.FailureReason,
			FailedSteps:     failed,
		},
	}
}

// TestStepRequest is one step of an imported test case.
type TestStepRequest struct {
	StepNumber int    `json:"step_number" yaml:"step_number" validate:"gt=0"`
	Action     string `json:"action" yaml:"action" validate:"required"`
	Expected   string `json:"expected" yaml:"expected"`
}

// TestCaseRequest is an imported test case. Ids are assigned when empty.
type TestCaseRequest struct {
	ID           string            `json:"id,omitempty" yaml:"id" validate:"omitempty,max=128"`
	GenerationID string            `json:"generation_id" yaml:"generation_id" validate:"required,max=128"`
	Title        string            `json:"title" yaml:"title" validate:"required,max=512"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	Steps        []TestStepRequest `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
	Priority     string            `json:"priority,omitempty" yaml:"priority" validate:"omitempty,oneof=low medium high critical"`
	IsEdgeCase   bool              `json:"is_edge_case" yaml:"is_edge_case"`
	Status       string            `json:"status,omitempty" yaml:"status" validate:"omitempty,oneof=draft active archived"`
}

// SaveTestCasesRequest imports a batch of test cases.
type SaveTestCasesRequest struct {
	TestCases []TestCaseRequest `json:"test_cases" yaml:"test_cases" validate:"required,min=1,dive"`
}

// ToDomain converts the DTO to domain test cases.
func (r *SaveTestCasesRequest) ToDomain() []*domain.TestCase {
	cases := make([]*domain.TestCase, 0, len(r.TestCases))
	for _, tc := range r.TestCases {
		steps := make([]domain.TestStep, 0, len(tc.Steps))
		for _, s := range tc.Steps {
			steps = append(steps, domain.TestStep{StepNumber: s.StepNumber, Action: s.Action, Expected: s.Expected})
		}
		cases = append(cases, &domain.TestCase{
			ID:           tc.ID,
			GenerationID: tc.GenerationID,
			Title:        tc.Title,
			Description:  tc.Description,
			Steps:        steps,
			Priority:     domain.Priority(tc.Priority),
			IsEdgeCase:   tc.IsEdgeCase,
			Status:       domain.CaseStatus(tc.Status),
		})
	}
	return cases
}

// SaveSessionRequest creates or updates a test session.
type SaveSessionRequest struct {
	ID           string `json:"id,omitempty" yaml:"id" validate:"omitempty,max=128"`
	Name         string `json:"name" yaml:"name" validate:"required,max=256"`
	Status       string `json:"status,omitempty" yaml:"status" validate:"omitempty,oneof=planned in_progress completed aborted"`
	Environment  string `json:"environment,omitempty" yaml:"environment" validate:"max=64"`
	GenerationID string `json:"generation_id,omitempty" yaml:"generation_id" validate:"omitempty,max=128"`
}

// ToDomain converts the DTO to a domain.TestSession.
func (r *SaveSessionRequest) ToDomain() *domain.TestSession {
	return &domain.TestSession{
		ID:           r.ID,
		Name:         r.Name,
		Status:       domain.SessionStatus(r.Status),
		Environment:  r.Environment,
		GenerationID: r.GenerationID,
	}
}

// IDRequest names a single resource.
type IDRequest struct {
	ID string `json:"id" validate:"required,max=128"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// GenerationRequest names a generation of test cases.
type GenerationRequest struct {
	GenerationID string `json:"generation_id" validate:"required,max=128"`
}

// TestCaseList is the gRPC form of a list of test cases.
type TestCaseList struct {
	TestCases []*domain.TestCase `json:"test_cases"`
}
