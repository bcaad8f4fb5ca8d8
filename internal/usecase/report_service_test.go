package usecase

import (
	"context"
	"testing"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReports_OnlyInProgressSessionsWithGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, &domain.TestSession{ID: "s-planned", Name: "later", Status: domain.SessionStatusPlanned, GenerationID: "gen-1"}))
	require.NoError(t, f.sessions.Save(ctx, &domain.TestSession{ID: "s-adhoc", Name: "adhoc", Status: domain.SessionStatusInProgress}))

	_, err := f.svc.Transition(ctx, domain.TransitionRequest{TestCaseID: "tc-3", SessionID: "s-1", ExecutedBy: "bob", Kind: domain.TransitionMarkResult, Status: domain.ExecutionStatusSkipped})
	require.NoError(t, err)

	reports := memory.NewReportRepository()
	svc := NewReportService(f.svc, f.sessions, reports, discard)
	svc.now = func() time.Time { return f.clock }

	written, err := svc.GenerateReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	report, err := reports.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStats{Total: 3, Skipped: 1, NotRun: 2}, report.Stats)
	assert.Equal(t, "gen-1", report.GenerationID)
	assert.Equal(t, f.clock, report.GeneratedAt)

	_, err = reports.Get(ctx, "s-planned")
	require.ErrorIs(t, err, domain.ErrReportNotFound)
}
