package postgres

import (
	"context"
	"testing"
	"time"

	"exectrack/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) domain.ExecutionRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return NewExecutionRepository(db)
}

func TestExecutionRepository_LatestPerSlot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, &domain.ExecutionRecord{ID: "a", TestCaseID: "tc-1", ExecutedBy: "alice", Status: domain.ExecutionStatusFailed, CreatedAt: t0}))
	require.NoError(t, repo.Insert(ctx, &domain.ExecutionRecord{ID: "b", TestCaseID: "tc-1", ExecutedBy: "alice", Status: domain.ExecutionStatusPassed, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.Insert(ctx, &domain.ExecutionRecord{ID: "c", TestCaseID: "tc-1", SessionID: "s-1", ExecutedBy: "alice", Status: domain.ExecutionStatusBlocked, CreatedAt: t0.Add(2 * time.Hour)}))

	latest, err := repo.Latest(ctx, "tc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	inSession, err := repo.Latest(ctx, "tc-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "c", inSession.ID)

	_, err = repo.Latest(ctx, "tc-2", "")
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)

	records, err := repo.Query(ctx, domain.ExecutionQuery{TestCaseIDs: []string{"tc-1", "tc-2"}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestExecutionRepository_UpdateRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	duration := 3

	rec := &domain.ExecutionRecord{
		ID:             "a",
		TestCaseID:     "tc-1",
		ExecutedBy:     "alice",
		Status:         domain.ExecutionStatusInProgress,
		CompletedSteps: []int{1, 2},
		FailedSteps:    []domain.FailedStep{{StepNumber: 2, FailureReason: "timeout"}},
		StartedAt:      &t0,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
	require.NoError(t, repo.Insert(ctx, rec))

	done := t0.Add(3 * time.Minute)
	rec.Status = domain.ExecutionStatusFailed
	rec.CompletedAt = &done
	rec.DurationMinutes = &duration
	rec.FailedSteps = []domain.FailedStep{}
	rec.UpdatedAt = done
	require.NoError(t, repo.Update(ctx, rec))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, []int{1, 2}, got.CompletedSteps)
	assert.Empty(t, got.FailedSteps)
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 3, *got.DurationMinutes)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.True(t, t0.Equal(got.CreatedAt))

	err = repo.Update(ctx, &domain.ExecutionRecord{ID: "missing", TestCaseID: "tc-1"})
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestExecutionRepository_InsertRejectsDuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := &domain.ExecutionRecord{ID: "a", TestCaseID: "tc-1", ExecutedBy: "alice", Status: domain.ExecutionStatusPassed}

	require.NoError(t, repo.Insert(ctx, rec))
	require.Error(t, repo.Insert(ctx, rec))
}
