package dto

import (
	"testing"

	"exectrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionRequestValidation(t *testing.T) {
	validate := NewValidator()

	tests := []struct {
		name  string
		req   TransitionRequest
		valid bool
	}{
		{"toggle", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "toggle_step", StepNumber: 1}, true},
		{"missing actor", TransitionRequest{TestCaseID: "tc-1", Kind: "toggle_step", StepNumber: 1}, false},
		{"unknown kind", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "explode"}, false},
		{"result without status", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "mark_result"}, false},
		{"result not a terminal status", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "mark_result", Status: "in_progress"}, false},
		{"failed result", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "mark_result", Status: "failed"}, true},
		{"bad failed step", TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "bob", Kind: "mark_result", Status: "failed",
			Detail: ResultDetailRequest{FailedSteps: []FailedStepRequest{{StepNumber: 0}}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validate, &tt.req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Details)
		})
	}
}

func TestExecutionQueryNeedsCasesOrGeneration(t *testing.T) {
	validate := NewValidator()

	assert.Error(t, Validate(validate, &ExecutionQuery{SessionID: "s-1"}))
	assert.NoError(t, Validate(validate, &ExecutionQuery{GenerationID: "gen-1"}))
	assert.NoError(t, Validate(validate, &ExecutionQuery{TestCaseIDs: []string{"tc-1"}}))
	assert.Error(t, Validate(validate, &ExecutionQuery{TestCaseIDs: []string{""}}))
}

func TestTransitionRequestToDomain(t *testing.T) {
	req := TransitionRequest{
		TestCaseID: "tc-1",
		ExecutedBy: "bob",
		Kind:       "mark_result",
		Status:     "failed",
		Detail: ResultDetailRequest{
			FailureReason: "Login button unresponsive",
			FailedSteps:   []FailedStepRequest{{StepNumber: 2, FailureReason: "no response"}},
		},
	}
	got := req.ToDomain()

	assert.Equal(t, domain.TransitionMarkResult, got.Kind)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, []domain.FailedStep{{StepNumber: 2, FailureReason: "no response"}}, got.Detail.FailedSteps)
}

func TestCronTag(t *testing.T) {
	type schedule struct {
		Spec string `validate:"cron"`
	}
	validate := NewValidator()
	assert.NoError(t, validate.Struct(schedule{Spec: "@every 1m"}))
	assert.NoError(t, validate.Struct(schedule{Spec: "0 */5 * * * *"}))
	assert.Error(t, validate.Struct(schedule{Spec: "every minute"}))
}
