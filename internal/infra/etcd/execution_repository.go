// internal/infra/etcd/execution_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type etcdExecutionRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdExecutionRepository creates a new repository for execution records backed by etcd.
// Every attempt of a test case lives under
// /tracker/executions/{testCaseID}/{session}/{executionID}; the newest attempt
// is the one with the highest create revision.
func NewEtcdExecutionRepository(client *clientv3.Client, logger *slog.Logger) domain.ExecutionRepository {
	return &etcdExecutionRepository{
		client: client,
		logger: logger.With("component", "etcd-execution-repo"),
		tracer: otel.Tracer("exectrack-etcd-execution-repo"),
	}
}

// Query reads the newest attempt of every requested test case. All slots are
// read in batched transactions, so the result is a consistent snapshot.
func (r *etcdExecutionRepository) Query(ctx context.Context, q domain.ExecutionQuery) ([]*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.QueryExecutions")
	defer span.End()
	span.SetAttributes(
		attribute.Int("test_case.count", len(q.TestCaseIDs)),
		attribute.String("session.id", q.SessionID),
	)

	ops := make([]clientv3.Op, 0, len(q.TestCaseIDs))
	for _, id := range q.TestCaseIDs {
		ops = append(ops, clientv3.OpGet(executionSlotPrefix(id, q.SessionID),
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend), // Newest first
			clientv3.WithLimit(1),
		))
	}
	resps, err := batchGet(ctx, r.client, ops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query executions from etcd")
		return nil, fmt.Errorf("failed to query executions from etcd: %w", err)
	}

	records := make([]*domain.ExecutionRecord, 0, len(resps))
	for _, resp := range resps {
		for _, kv := range resp.Kvs {
			var record domain.ExecutionRecord
			if err := json.Unmarshal(kv.Value, &record); err != nil {
				r.logger.Warn("failed to unmarshal execution record from etcd", "key", string(kv.Key), "error", err)
				continue
			}
			records = append(records, &record)
		}
	}
	slices.SortStableFunc(records, func(a, b *domain.ExecutionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}

func (r *etcdExecutionRepository) Latest(ctx context.Context, testCaseID, sessionID string) (*domain.ExecutionRecord, error) {
	records, err := r.Query(ctx, domain.ExecutionQuery{TestCaseIDs: []string{testCaseID}, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrExecutionNotFound
	}
	return records[0], nil
}

// Get resolves an execution id through its index key.
func (r *etcdExecutionRepository) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetExecution")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", id))

	key, err := r.resolve(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get execution record from etcd")
		return nil, fmt.Errorf("failed to get execution record %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrExecutionNotFound
	}

	var record domain.ExecutionRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal execution record")
		return nil, fmt.Errorf("failed to unmarshal execution record %s from JSON: %w", id, err)
	}
	return &record, nil
}

// Insert creates the row and its index atomically; an existing id is an error.
func (r *etcdExecutionRepository) Insert(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.InsertExecution")
	defer span.End()

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal execution record")
		return fmt.Errorf("failed to marshal execution record %s to JSON: %w", record.ID, err)
	}

	key := executionKey(record.TestCaseID, record.SessionID, record.ID)
	indexKey := executionIndexKey(record.ID)
	span.SetAttributes(
		attribute.String("execution.id", record.ID),
		attribute.String("test_case.id", record.TestCaseID),
		attribute.String("etcd.key", key),
	)

	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(indexKey), "=", 0)).
		Then(
			clientv3.OpPut(key, string(recordJSON)),
			clientv3.OpPut(indexKey, key),
		).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert execution record to etcd")
		return fmt.Errorf("failed to insert execution record %s to etcd: %w", record.ID, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("execution %s already exists", record.ID)
	}
	return nil
}

// Update overwrites an existing row in place. The row keeps its create
// revision, so it stays the newest attempt of its slot.
func (r *etcdExecutionRepository) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.UpdateExecution")
	defer span.End()

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal execution record")
		return fmt.Errorf("failed to marshal execution record %s to JSON: %w", record.ID, err)
	}

	key := executionKey(record.TestCaseID, record.SessionID, record.ID)
	span.SetAttributes(
		attribute.String("execution.id", record.ID),
		attribute.String("etcd.key", key),
	)

	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), ">", 0)).
		Then(clientv3.OpPut(key, string(recordJSON))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update execution record in etcd")
		return fmt.Errorf("failed to update execution record %s in etcd: %w", record.ID, err)
	}
	if !resp.Succeeded {
		return domain.ErrExecutionNotFound
	}
	return nil
}

func (r *etcdExecutionRepository) resolve(ctx context.Context, id string) (string, error) {
	resp, err := r.client.Get(ctx, executionIndexKey(id))
	if err != nil {
		return "", fmt.Errorf("failed to resolve execution %s: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return "", domain.ErrExecutionNotFound
	}
	return string(resp.Kvs[0].Value), nil
}
