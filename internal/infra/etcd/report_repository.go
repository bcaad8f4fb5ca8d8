package etcd

import (
	"context"
	"encoding/json"
	"fmt"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type etcdReportRepository struct {
	client *clientv3.Client
	tracer trace.Tracer
}

// NewEtcdReportRepository keeps the latest report of each session.
func NewEtcdReportRepository(client *clientv3.Client) domain.ReportRepository {
	return &etcdReportRepository{
		client: client,
		tracer: otel.Tracer("exectrack-etcd-report-repo"),
	}
}

func (r *etcdReportRepository) Save(ctx context.Context, report *domain.SessionReport) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveReport")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", report.SessionID))

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if _, err := r.client.Put(ctx, reportKey(report.SessionID), string(reportJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put report to etcd")
		return fmt.Errorf("failed to save report %s to etcd: %w", report.SessionID, err)
	}
	return nil
}

func (r *etcdReportRepository) Get(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetReport")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	resp, err := r.client.Get(ctx, reportKey(sessionID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get report from etcd")
		return nil, fmt.Errorf("failed to get report %s from etcd: %w", sessionID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrReportNotFound
	}

	var report domain.SessionReport
	if err := json.Unmarshal(resp.Kvs[0].Value, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s from JSON: %w", sessionID, err)
	}
	return &report, nil
}
