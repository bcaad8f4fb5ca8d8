package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exectrack/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// executionRow is one attempt in the test_executions table. Step collections
// are stored as JSON columns.
type executionRow struct {
	ID              string              `gorm:"type:varchar(64);primaryKey"`
	TestCaseID      string              `gorm:"type:varchar(64);not null;index:idx_test_executions_slot,priority:1"`
	SessionID       string              `gorm:"type:varchar(64);not null;default:'';index:idx_test_executions_slot,priority:2"`
	ExecutedBy      string              `gorm:"type:varchar(128);not null"`
	Status          string              `gorm:"type:varchar(16);not null"`
	CompletedSteps  []int               `gorm:"serializer:json"`
	FailedSteps     []domain.FailedStep `gorm:"serializer:json"`
	ExecutionNotes  string              `gorm:"type:text"`
	FailureReason   string              `gorm:"type:text"`
	TestEnvironment string              `gorm:"type:varchar(64)"`
	Browser         string              `gorm:"type:varchar(64)"`
	OSVersion       string              `gorm:"type:varchar(64)"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationMinutes *int
	CreatedAt       time.Time `gorm:"autoCreateTime:false;index:idx_test_executions_slot,priority:3"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for GORM.
func (executionRow) TableName() string {
	return "test_executions"
}

func toRow(r *domain.ExecutionRecord) *executionRow {
	c := r.Clone()
	return &executionRow{
		ID:              c.ID,
		TestCaseID:      c.TestCaseID,
		SessionID:       c.SessionID,
		ExecutedBy:      c.ExecutedBy,
		Status:          string(c.Status),
		CompletedSteps:  c.CompletedSteps,
		FailedSteps:     c.FailedSteps,
		ExecutionNotes:  c.ExecutionNotes,
		FailureReason:   c.FailureReason,
		TestEnvironment: c.TestEnvironment,
		Browser:         c.Browser,
		OSVersion:       c.OSVersion,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
		DurationMinutes: c.DurationMinutes,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (row *executionRow) record() *domain.ExecutionRecord {
	r := &domain.ExecutionRecord{
		ID:              row.ID,
		TestCaseID:      row.TestCaseID,
		SessionID:       row.SessionID,
		ExecutedBy:      row.ExecutedBy,
		Status:          domain.ExecutionStatus(row.Status),
		CompletedSteps:  row.CompletedSteps,
		FailedSteps:     row.FailedSteps,
		ExecutionNotes:  row.ExecutionNotes,
		FailureReason:   row.FailureReason,
		TestEnvironment: row.TestEnvironment,
		Browser:         row.Browser,
		OSVersion:       row.OSVersion,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
		DurationMinutes: row.DurationMinutes,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	return r.Clone()
}

type executionRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
}

// NewExecutionRepository creates an ExecutionRepository over db. Every
// attempt is kept; the newest row per slot is the current one.
func NewExecutionRepository(db *gorm.DB) domain.ExecutionRepository {
	return &executionRepository{
		db:     db,
		tracer: otel.Tracer("exectrack-postgres-execution-repo"),
	}
}

func (r *executionRepository) Query(ctx context.Context, q domain.ExecutionQuery) ([]*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.QueryExecutions")
	defer span.End()
	span.SetAttributes(
		attribute.Int("test_case.count", len(q.TestCaseIDs)),
		attribute.String("session.id", q.SessionID),
	)
	if len(q.TestCaseIDs) == 0 {
		return []*domain.ExecutionRecord{}, nil
	}

	var rows []executionRow
	err := r.db.WithContext(ctx).
		Where("test_case_id IN ? AND session_id = ?", q.TestCaseIDs, q.SessionID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query executions")
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	records := make([]*domain.ExecutionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].record())
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}

func (r *executionRepository) Latest(ctx context.Context, testCaseID, sessionID string) (*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.LatestExecution")
	defer span.End()
	span.SetAttributes(attribute.String("test_case.id", testCaseID), attribute.String("session.id", sessionID))

	var row executionRow
	err := r.db.WithContext(ctx).
		Where("test_case_id = ? AND session_id = ?", testCaseID, sessionID).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read latest execution of %s: %w", testCaseID, err)
	}
	return row.record(), nil
}

func (r *executionRepository) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.GetExecution")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", id))

	var row executionRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return row.record(), nil
}

func (r *executionRepository) Insert(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.InsertExecution")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", record.ID), attribute.String("test_case.id", record.TestCaseID))

	if record.ID == "" {
		return fmt.Errorf("execution record for %s has no id", record.TestCaseID)
	}
	if err := r.db.WithContext(ctx).Create(toRow(record)).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert execution")
		return fmt.Errorf("failed to insert execution %s: %w", record.ID, err)
	}
	return nil
}

// Update rewrites every column of an existing row, zero values included.
func (r *executionRepository) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.postgres.UpdateExecution")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", record.ID))

	res := r.db.WithContext(ctx).
		Model(&executionRow{}).
		Where("id = ?", record.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(toRow(record))
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, "failed to update execution")
		return fmt.Errorf("failed to update execution %s: %w", record.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrExecutionNotFound
	}
	return nil
}
