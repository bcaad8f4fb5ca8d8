// internal/domain/stats.go
package domain

// ExecutionStats aggregates execution statuses across a set of test cases.
type ExecutionStats struct {
	Total      int `json:"total"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
	Skipped    int `json:"skipped"`
	InProgress int `json:"in_progress"`
	NotRun     int `json:"not_run"`
}

// ComputeStats counts the explicit statuses and derives NotRun by subtraction,
// so test cases missing from executions count as not run. The counts always sum
// to Total; if totalTestCases is smaller than the explicit counts, Total is
// raised to match.
func ComputeStats(executions []*ExecutionRecord, totalTestCases int) ExecutionStats {
	var stats ExecutionStats
	for _, e := range executions {
		if e == nil {
			continue
		}
		switch e.Status {
		case ExecutionStatusPassed:
			stats.Passed++
		case ExecutionStatusFailed:
			stats.Failed++
		case ExecutionStatusBlocked:
			stats.Blocked++
		case ExecutionStatusSkipped:
			stats.Skipped++
		case ExecutionStatusInProgress:
			stats.InProgress++
		}
	}

	explicit := stats.Passed + stats.Failed + stats.Blocked + stats.Skipped + stats.InProgress
	stats.Total = max(totalTestCases, explicit)
	stats.NotRun = stats.Total - explicit
	return stats
}

// Executed is the number of test cases with a recorded result.
func (s ExecutionStats) Executed() int {
	return s.Passed + s.Failed + s.Blocked + s.Skipped
}

// PassRate is the share of executed test cases that passed, in percent.
func (s ExecutionStats) PassRate() float64 {
	executed := s.Executed()
	if executed == 0 {
		return 0
	}
	return float64(s.Passed) * 100 / float64(executed)
}
