package rpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/infra/memory"
	"exectrack/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := memory.NewTestCaseRepository()
	sessions := memory.NewSessionRepository()
	executions := usecase.NewExecutionService(memory.NewExecutionRepository(), cases, sessions, memory.NewLocker(), time.Second, logger)
	catalog := usecase.NewCatalogService(cases, sessions, memory.NewReportRepository(), logger)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterTrackerServer(srv, NewServer(executions, catalog, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	saved, err := client.SaveTestCases(ctx, dto.SaveTestCasesRequest{TestCases: []dto.TestCaseRequest{
		{ID: "tc-1", GenerationID: "gen-1", Title: "Login", Steps: []dto.TestStepRequest{{StepNumber: 1, Action: "open"}, {StepNumber: 2, Action: "submit"}}},
		{ID: "tc-2", GenerationID: "gen-1", Title: "Logout", Steps: []dto.TestStepRequest{{StepNumber: 1, Action: "click"}}},
	}})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	cases, err := client.ListTestCases(ctx, "gen-1")
	require.NoError(t, err)
	require.Len(t, cases, 2)

	records, err := client.LoadExecutions(ctx, []string{"tc-2", "tc-1"}, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tc-2", records[0].TestCaseID)
	assert.Equal(t, domain.ExecutionStatusNotRun, records[0].Status)

	status := domain.ExecutionStatusInProgress
	rec, err := client.SaveProgress(ctx, domain.SaveRequest{
		TestCaseID: "tc-1",
		ExecutedBy: "alice",
		Update:     domain.ExecutionUpdate{Status: &status, CompletedSteps: []int{1, 2}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, []int{1, 2}, rec.CompletedSteps)

	rec, err = client.Transition(ctx, dto.TransitionRequest{TestCaseID: "tc-1", ExecutedBy: "alice", Kind: "mark_result", Status: "passed"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPassed, rec.Status)

	stats, err := client.ComputeStats(ctx, dto.ExecutionQuery{GenerationID: "gen-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStats{Total: 2, Passed: 1, NotRun: 1}, stats)
}

func TestClientMapsErrorsBackToSentinels(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetSession(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = client.SaveProgress(ctx, domain.SaveRequest{TestCaseID: "tc-1", Update: domain.ExecutionUpdate{CompletedSteps: []int{1}}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = client.Transition(ctx, dto.TransitionRequest{TestCaseID: "unknown", ExecutedBy: "alice", Kind: "reset"})
	require.ErrorIs(t, err, domain.ErrValidation)

	session, err := client.SaveSession(ctx, dto.SaveSessionRequest{Name: "Sprint 12 Regression"})
	require.NoError(t, err)
	got, err := client.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusPlanned, got.Status)
}
