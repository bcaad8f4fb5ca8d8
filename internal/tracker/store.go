package tracker

import (
	"context"

	"exectrack/internal/domain"
	"exectrack/internal/usecase"
)

// Store is the persistence contract the tracker writes through. It is
// implemented in process by ServiceStore and remotely by the gRPC client.
type Store interface {
	// LoadExecutions returns one execution per test case, in request order.
	LoadExecutions(ctx context.Context, testCaseIDs []string, sessionID string) ([]*domain.ExecutionRecord, error)
	SaveProgress(ctx context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error)
}

// ServiceStore runs the tracker against an in-process ExecutionService.
type ServiceStore struct {
	Service *usecase.ExecutionService
}

func (s ServiceStore) LoadExecutions(ctx context.Context, testCaseIDs []string, sessionID string) ([]*domain.ExecutionRecord, error) {
	executions, err := s.Service.LoadExecutions(ctx, testCaseIDs, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ExecutionRecord, 0, executions.Len())
	for pair := executions.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out, nil
}

func (s ServiceStore) SaveProgress(ctx context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error) {
	return s.Service.SaveProgress(ctx, req)
}
