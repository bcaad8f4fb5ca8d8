package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReportService snapshots the progress of running sessions.
type ReportService struct {
	executions *ExecutionService
	sessions   domain.SessionRepository
	reports    domain.ReportRepository
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewReportService(executions *ExecutionService, sessions domain.SessionRepository, reports domain.ReportRepository, logger *slog.Logger) *ReportService {
	return &ReportService{
		executions: executions,
		sessions:   sessions,
		reports:    reports,
		now:        time.Now,
		logger:     logger.With("component", "report-service"),
		tracer:     otel.Tracer("exectrack-usecase"),
	}
}

// GenerateReports writes a report for every in-progress session that names a
// generation and returns how many were written. A failing session does not
// stop the others.
func (s *ReportService) GenerateReports(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "service.GenerateReports")
	defer span.End()

	sessions, err := s.sessions.List(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: list sessions: %w", domain.ErrPersistence, err)
	}

	var (
		written int
		errs    []error
	)
	for _, session := range sessions {
		if session.Status != domain.SessionStatusInProgress || session.GenerationID == "" {
			continue
		}
		if err := s.reportSession(ctx, session); err != nil {
			s.logger.Error("failed to report session", "session_id", session.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		written++
	}
	span.SetAttributes(attribute.Int("report.count", written))
	return written, errors.Join(errs...)
}

func (s *ReportService) reportSession(ctx context.Context, session *domain.TestSession) error {
	stats, err := s.executions.GenerationStats(ctx, session.GenerationID, session.ID)
	if err != nil {
		return err
	}

	report := &domain.SessionReport{
		SessionID:    session.ID,
		SessionName:  session.Name,
		GenerationID: session.GenerationID,
		Stats:        stats,
		GeneratedAt:  s.now(),
	}
	if err := s.reports.Save(ctx, report); err != nil {
		return fmt.Errorf("%w: save report %s: %w", domain.ErrPersistence, session.ID, err)
	}

	for status, n := range map[domain.ExecutionStatus]int{
		domain.ExecutionStatusPassed:     stats.Passed,
		domain.ExecutionStatusFailed:     stats.Failed,
		domain.ExecutionStatusBlocked:    stats.Blocked,
		domain.ExecutionStatusSkipped:    stats.Skipped,
		domain.ExecutionStatusInProgress: stats.InProgress,
		domain.ExecutionStatusNotRun:     stats.NotRun,
	} {
		metrics.SessionExecutions.WithLabelValues(session.ID, string(status)).Set(float64(n))
	}
	s.logger.Debug("session report written", "session_id", session.ID, "total", stats.Total, "passed", stats.Passed)
	return nil
}
