package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type etcdTestCaseRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdTestCaseRepository stores test cases under /tracker/testcases/ with
// a per-generation index under /tracker/generations/.
func NewEtcdTestCaseRepository(client *clientv3.Client, logger *slog.Logger) domain.TestCaseRepository {
	return &etcdTestCaseRepository{
		client: client,
		logger: logger.With("component", "etcd-testcase-repo"),
		tracer: otel.Tracer("exectrack-etcd-testcase-repo"),
	}
}

// Save writes the test case and moves its index entry when the generation changed.
func (r *etcdTestCaseRepository) Save(ctx context.Context, tc *domain.TestCase) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveTestCase")
	defer span.End()

	tcJSON, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("failed to marshal test case to JSON: %w", err)
	}

	key := testCaseKey(tc.ID)
	span.SetAttributes(
		attribute.String("test_case.id", tc.ID),
		attribute.String("generation.id", tc.GenerationID),
		attribute.String("etcd.key", key),
	)

	ops := []clientv3.Op{
		clientv3.OpPut(key, string(tcJSON)),
		clientv3.OpPut(generationKey(tc.GenerationID, tc.ID), tc.ID),
	}
	previous, err := r.Get(ctx, tc.ID)
	switch {
	case err == nil && previous.GenerationID != tc.GenerationID:
		ops = append(ops, clientv3.OpDelete(generationKey(previous.GenerationID, tc.ID)))
	case err != nil && !errors.Is(err, domain.ErrTestCaseNotFound):
		return err
	}

	if _, err := r.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put test case to etcd")
		return fmt.Errorf("failed to save test case %s to etcd: %w", tc.ID, err)
	}
	return nil
}

func (r *etcdTestCaseRepository) Get(ctx context.Context, id string) (*domain.TestCase, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetTestCase")
	defer span.End()
	span.SetAttributes(attribute.String("test_case.id", id))

	resp, err := r.client.Get(ctx, testCaseKey(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get test case from etcd")
		return nil, fmt.Errorf("failed to get test case %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrTestCaseNotFound
	}

	var tc domain.TestCase
	if err := json.Unmarshal(resp.Kvs[0].Value, &tc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test case %s from JSON: %w", id, err)
	}
	return &tc, nil
}

func (r *etcdTestCaseRepository) ListByGeneration(ctx context.Context, generationID string) ([]*domain.TestCase, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListTestCases")
	defer span.End()
	span.SetAttributes(attribute.String("generation.id", generationID))

	index, err := r.client.Get(ctx, generationPrefix(generationID), clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list generation index from etcd")
		return nil, fmt.Errorf("failed to list test cases of generation %s: %w", generationID, err)
	}

	ops := make([]clientv3.Op, 0, len(index.Kvs))
	for _, kv := range index.Kvs {
		ops = append(ops, clientv3.OpGet(testCaseKey(string(kv.Value))))
	}
	resps, err := batchGet(ctx, r.client, ops)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read test cases of generation %s: %w", generationID, err)
	}

	cases := make([]*domain.TestCase, 0, len(resps))
	for _, resp := range resps {
		for _, kv := range resp.Kvs {
			var tc domain.TestCase
			if err := json.Unmarshal(kv.Value, &tc); err != nil {
				r.logger.Warn("failed to unmarshal test case from etcd", "key", string(kv.Key), "error", err)
				continue
			}
			cases = append(cases, &tc)
		}
	}
	slices.SortFunc(cases, func(a, b *domain.TestCase) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	span.SetAttributes(attribute.Int("etcd.kv_count", len(cases)))
	return cases, nil
}
