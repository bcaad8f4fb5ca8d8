package rpc

import (
	"context"
	"log/slog"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/usecase"

	"github.com/go-playground/validator/v10"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements TrackerServer on top of the services.
type Server struct {
	executions *usecase.ExecutionService
	catalog    *usecase.CatalogService
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewServer(executions *usecase.ExecutionService, catalog *usecase.CatalogService, logger *slog.Logger) *Server {
	return &Server{
		executions: executions,
		catalog:    catalog,
		validate:   dto.NewValidator(),
		logger:     logger.With("component", "grpc-server"),
	}
}

// decode reads and validates a request DTO.
func (s *Server) decode(in *structpb.Struct, v any) error {
	if err := fromStruct(in, v); err != nil {
		return toStatus(err)
	}
	if err := dto.Validate(s.validate, v); err != nil {
		return toStatus(err)
	}
	return nil
}

// reply encodes a response DTO or maps the service error.
func (s *Server) reply(method string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		s.logger.Warn("rpc failed", "method", method, "error", err)
		return nil, toStatus(err)
	}
	out, err := toStruct(v)
	if err != nil {
		s.logger.Error("failed to encode rpc response", "method", method, "error", err)
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *Server) LoadExecutions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.ExecutionQuery
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	ids, err := s.executions.ResolveTestCases(ctx, req.TestCaseIDs, req.GenerationID)
	if err != nil {
		return s.reply("LoadExecutions", nil, err)
	}
	executions, err := s.executions.LoadExecutions(ctx, ids, req.SessionID)
	if err != nil {
		return s.reply("LoadExecutions", nil, err)
	}
	list := dto.ExecutionList{Executions: make([]*domain.ExecutionRecord, 0, executions.Len())}
	for pair := executions.Oldest(); pair != nil; pair = pair.Next() {
		list.Executions = append(list.Executions, pair.Value)
	}
	return s.reply("LoadExecutions", list, nil)
}

func (s *Server) SaveProgress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.SaveProgressRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	rec, err := s.executions.SaveProgress(ctx, req.ToDomain())
	return s.reply("SaveProgress", rec, err)
}

func (s *Server) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.TransitionRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	rec, err := s.executions.Transition(ctx, req.ToDomain())
	return s.reply("Transition", rec, err)
}

func (s *Server) ComputeStats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.ExecutionQuery
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	ids, err := s.executions.ResolveTestCases(ctx, req.TestCaseIDs, req.GenerationID)
	if err != nil {
		return s.reply("ComputeStats", nil, err)
	}
	stats, err := s.executions.ComputeStats(ctx, ids, req.SessionID)
	return s.reply("ComputeStats", stats, err)
}

func (s *Server) ListTestCases(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.GenerationRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	cases, err := s.catalog.ListTestCases(ctx, req.GenerationID)
	return s.reply("ListTestCases", dto.TestCaseList{TestCases: cases}, err)
}

func (s *Server) GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.IDRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	session, err := s.catalog.GetSession(ctx, req.ID)
	return s.reply("GetSession", session, err)
}

func (s *Server) SaveTestCases(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.SaveTestCasesRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	cases := req.ToDomain()
	err := s.catalog.SaveTestCases(ctx, cases)
	return s.reply("SaveTestCases", dto.TestCaseList{TestCases: cases}, err)
}

func (s *Server) SaveSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.SaveSessionRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	session := req.ToDomain()
	err := s.catalog.SaveSession(ctx, session)
	return s.reply("SaveSession", session, err)
}
