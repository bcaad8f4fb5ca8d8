package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withStatus(statuses ...ExecutionStatus) []*ExecutionRecord {
	out := make([]*ExecutionRecord, 0, len(statuses))
	for i, s := range statuses {
		rec := NewPlaceholder(fmt.Sprintf("tc-%d", i), "")
		rec.Status = s
		out = append(out, rec)
	}
	return out
}

func sum(s ExecutionStats) int {
	return s.Passed + s.Failed + s.Blocked + s.Skipped + s.InProgress + s.NotRun
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil, 3)
	assert.Equal(t, ExecutionStats{Total: 3, NotRun: 3}, stats)
}

func TestComputeStats_CountsEachStatus(t *testing.T) {
	execs := withStatus(
		ExecutionStatusPassed, ExecutionStatusPassed, ExecutionStatusFailed,
		ExecutionStatusBlocked, ExecutionStatusSkipped, ExecutionStatusInProgress,
		ExecutionStatusNotRun,
	)

	stats := ComputeStats(execs, 7)

	assert.Equal(t, ExecutionStats{Total: 7, Passed: 2, Failed: 1, Blocked: 1, Skipped: 1, InProgress: 1, NotRun: 1}, stats)
}

func TestComputeStats_MissingExecutionsCountAsNotRun(t *testing.T) {
	stats := ComputeStats(withStatus(ExecutionStatusPassed), 3)
	assert.Equal(t, ExecutionStats{Total: 3, Passed: 1, NotRun: 2}, stats)
}

func TestComputeStats_Conservation(t *testing.T) {
	all := []ExecutionStatus{
		ExecutionStatusNotRun, ExecutionStatusInProgress, ExecutionStatusPassed,
		ExecutionStatusFailed, ExecutionStatusBlocked, ExecutionStatusSkipped,
	}
	for n := 0; n < 20; n++ {
		statuses := make([]ExecutionStatus, n)
		for i := range statuses {
			statuses[i] = all[(i*7+n)%len(all)]
		}
		for extra := 0; extra < 3; extra++ {
			total := n + extra
			stats := ComputeStats(withStatus(statuses...), total)
			assert.Equal(t, total, stats.Total)
			assert.Equal(t, total, sum(stats), "n=%d extra=%d", n, extra)
		}
	}
}

func TestComputeStats_TotalRaisedWhenUndercounted(t *testing.T) {
	stats := ComputeStats(withStatus(ExecutionStatusPassed, ExecutionStatusFailed), 1)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.NotRun)
	assert.Equal(t, stats.Total, sum(stats))
}

func TestExecutionStats_PassRate(t *testing.T) {
	assert.Zero(t, ExecutionStats{Total: 2, NotRun: 2}.PassRate())
	assert.InDelta(t, 75.0, ExecutionStats{Total: 4, Passed: 3, Failed: 1}.PassRate(), 0.001)
}
