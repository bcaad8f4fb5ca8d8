package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exectrack/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CatalogService serves the test cases and sessions the tracker reads.
type CatalogService struct {
	cases    domain.TestCaseRepository
	sessions domain.SessionRepository
	reports  domain.ReportRepository
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(cases domain.TestCaseRepository, sessions domain.SessionRepository, reports domain.ReportRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		cases:    cases,
		sessions: sessions,
		reports:  reports,
		logger:   logger.With("component", "catalog-service"),
		tracer:   otel.Tracer("exectrack-usecase"),
	}
}

// ListTestCases lists the test cases of one generation.
func (s *CatalogService) ListTestCases(ctx context.Context, generationID string) ([]*domain.TestCase, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListTestCases")
	defer span.End()
	span.SetAttributes(attribute.String("generation.id", generationID))

	if generationID == "" {
		return nil, fmt.Errorf("%w: generation id is required", domain.ErrValidation)
	}
	cases, err := s.cases.ListByGeneration(ctx, generationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list test cases")
		return nil, fmt.Errorf("%w: list test cases: %w", domain.ErrPersistence, err)
	}
	return cases, nil
}

// GetTestCase returns one test case.
func (s *CatalogService) GetTestCase(ctx context.Context, id string) (*domain.TestCase, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetTestCase")
	defer span.End()
	span.SetAttributes(attribute.String("test_case.id", id))

	tc, err := s.cases.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrTestCaseNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get test case")
		return nil, fmt.Errorf("%w: get test case %s: %w", domain.ErrPersistence, id, err)
	}
	return tc, err
}

// SaveTestCases validates and stores a batch of test cases. Missing ids and
// creation times are assigned. Nothing is written if any case is invalid.
func (s *CatalogService) SaveTestCases(ctx context.Context, cases []*domain.TestCase) error {
	ctx, span := s.tracer.Start(ctx, "service.SaveTestCases")
	defer span.End()
	span.SetAttributes(attribute.Int("test_case.count", len(cases)))

	now := time.Now()
	for _, tc := range cases {
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		if tc.CreatedAt.IsZero() {
			tc.CreatedAt = now
		}
		if err := tc.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid test case")
			return err
		}
	}
	for _, tc := range cases {
		if err := s.cases.Save(ctx, tc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to save test case")
			return fmt.Errorf("%w: save test case %s: %w", domain.ErrPersistence, tc.ID, err)
		}
	}
	s.logger.Info("test cases saved", "count", len(cases))
	return nil
}

// GetSession returns one session.
func (s *CatalogService) GetSession(ctx context.Context, id string) (*domain.TestSession, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	session, err := s.sessions.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get session")
		return nil, fmt.Errorf("%w: get session %s: %w", domain.ErrPersistence, id, err)
	}
	return session, err
}

// ListSessions lists every session.
func (s *CatalogService) ListSessions(ctx context.Context) ([]*domain.TestSession, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListSessions")
	defer span.End()

	sessions, err := s.sessions.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sessions")
		return nil, fmt.Errorf("%w: list sessions: %w", domain.ErrPersistence, err)
	}
	return sessions, nil
}

// SaveSession validates and stores a session, assigning an id if missing.
func (s *CatalogService) SaveSession(ctx context.Context, session *domain.TestSession) error {
	ctx, span := s.tracer.Start(ctx, "service.SaveSession")
	defer span.End()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("session.id", session.ID))
	if err := session.Validate(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save session")
		return fmt.Errorf("%w: save session %s: %w", domain.ErrPersistence, session.ID, err)
	}
	return nil
}

// GetReport returns the last report generated for a session.
func (s *CatalogService) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetReport")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	report, err := s.reports.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrReportNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get report")
		return nil, fmt.Errorf("%w: get report %s: %w", domain.ErrPersistence, sessionID, err)
	}
	return report, err
}
