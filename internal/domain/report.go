// internal/domain/report.go
package domain

import (
	"context"
	"time"
)

// SessionReport is a point-in-time snapshot of a session's progress.
type SessionReport struct {
	SessionID    string         `json:"session_id"`
	SessionName  string         `json:"session_name"`
	GenerationID string         `json:"generation_id"`
	Stats        ExecutionStats `json:"stats"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// ReportRepository keeps the latest report per session.
type ReportRepository interface {
	Save(ctx context.Context, report *SessionReport) error
	Get(ctx context.Context, sessionID string) (*SessionReport, error)
}
