package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaceholder(t *testing.T) {
	rec := NewPlaceholder("tc-1", "sess-1")

	assert.False(t, rec.IsPersisted())
	assert.Equal(t, ExecutionStatusNotRun, rec.Status)
	assert.Equal(t, []int{}, rec.CompletedSteps)
	assert.Equal(t, []FailedStep{}, rec.FailedSteps)
}

func TestExecutionRecord_Validate(t *testing.T) {
	rec := NewPlaceholder("tc-1", "")
	require.ErrorIs(t, rec.Validate(), ErrValidation, "missing actor")

	rec.ExecutedBy = "user-1"
	require.NoError(t, rec.Validate())

	rec.Status = "done"
	require.ErrorIs(t, rec.Validate(), ErrValidation)
}

func TestExecutionRecord_ApplyNormalizesCompletedSteps(t *testing.T) {
	rec := NewPlaceholder("tc-1", "")
	rec.Apply(ExecutionUpdate{CompletedSteps: []int{3, 1, 3, 2}})
	assert.Equal(t, []int{1, 2, 3}, rec.CompletedSteps)
}

func TestExecutionRecord_ApplyLeavesNilFieldsUntouched(t *testing.T) {
	rec := NewPlaceholder("tc-1", "")
	rec.Browser = "firefox"
	rec.CompletedSteps = []int{1}

	notes := "looked fine"
	rec.Apply(ExecutionUpdate{ExecutionNotes: &notes})

	assert.Equal(t, "firefox", rec.Browser)
	assert.Equal(t, []int{1}, rec.CompletedSteps)
	assert.Equal(t, "looked fine", rec.ExecutionNotes)
}

func TestExecutionUpdate_ClearSurvivesJSON(t *testing.T) {
	rec := NewPlaceholder("tc-1", "")
	rec.CompletedSteps = []int{4}

	u, err := ToggleStep(rec, 4, time.Now())
	require.NoError(t, err)

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	var decoded ExecutionUpdate
	require.NoError(t, json.Unmarshal(raw, &decoded))

	rec.Apply(decoded)
	assert.Empty(t, rec.CompletedSteps)
}

func TestExecutionUpdate_Merge(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inProgress, passed := ExecutionStatusInProgress, ExecutionStatusPassed
	first := ExecutionUpdate{Status: &inProgress, CompletedSteps: []int{1}, StartedAt: &started}
	second := ExecutionUpdate{Status: &passed}

	merged := first.Merge(second)

	want := ExecutionUpdate{Status: &passed, CompletedSteps: []int{1}, StartedAt: &started}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged update mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, ExecutionUpdate{}.IsEmpty())
	assert.False(t, merged.IsEmpty())
}

func TestExecutionRecord_SnapshotOverwritesStoredRow(t *testing.T) {
	started := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	local := NewPlaceholder("tc-1", "s-1")
	local.Status = ExecutionStatusInProgress
	local.CompletedSteps = []int{1, 2}
	local.StartedAt = &started
	local.Browser = "firefox"

	stored := NewPlaceholder("tc-1", "s-1")
	stored.ID = "ex-1"
	stored.CompletedSteps = []int{3}
	stored.FailedSteps = []FailedStep{{StepNumber: 3, FailureReason: "timeout"}}
	stored.ExecutionNotes = "old notes"

	raw, err := json.Marshal(local.Snapshot())
	require.NoError(t, err)
	var decoded ExecutionUpdate
	require.NoError(t, json.Unmarshal(raw, &decoded))
	stored.Apply(decoded)

	assert.Equal(t, "ex-1", stored.ID)
	assert.Equal(t, ExecutionStatusInProgress, stored.Status)
	assert.Equal(t, []int{1, 2}, stored.CompletedSteps)
	assert.Empty(t, stored.FailedSteps)
	assert.Empty(t, stored.ExecutionNotes)
	assert.Equal(t, "firefox", stored.Browser)
	require.NotNil(t, stored.StartedAt)
	assert.True(t, started.Equal(*stored.StartedAt))
	assert.Nil(t, stored.CompletedAt)
}

func TestExecutionRecord_CloneIsDeep(t *testing.T) {
	started := time.Now()
	rec := NewPlaceholder("tc-1", "")
	rec.CompletedSteps = []int{1}
	rec.StartedAt = &started

	c := rec.Clone()
	c.CompletedSteps[0] = 9
	*c.StartedAt = started.Add(time.Hour)

	assert.Equal(t, []int{1}, rec.CompletedSteps)
	assert.Equal(t, started, *rec.StartedAt)
}

func TestExecutionLockName(t *testing.T) {
	assert.Equal(t, "executions/tc-1/_", ExecutionLockName("tc-1", ""))
	assert.Equal(t, "executions/tc-1/s-1", ExecutionLockName("tc-1", "s-1"))
}
