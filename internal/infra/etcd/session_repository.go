package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"exectrack/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type etcdSessionRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

func NewEtcdSessionRepository(client *clientv3.Client, logger *slog.Logger) domain.SessionRepository {
	return &etcdSessionRepository{
		client: client,
		logger: logger.With("component", "etcd-session-repo"),
		tracer: otel.Tracer("exectrack-etcd-session-repo"),
	}
}

func (r *etcdSessionRepository) Save(ctx context.Context, session *domain.TestSession) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveSession")
	defer span.End()

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session to JSON: %w", err)
	}
	key := sessionKey(session.ID)
	span.SetAttributes(attribute.String("session.id", session.ID), attribute.String("etcd.key", key))

	if _, err := r.client.Put(ctx, key, string(sessionJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put session to etcd")
		return fmt.Errorf("failed to save session %s to etcd: %w", session.ID, err)
	}
	return nil
}

func (r *etcdSessionRepository) Get(ctx context.Context, id string) (*domain.TestSession, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	resp, err := r.client.Get(ctx, sessionKey(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get session from etcd")
		return nil, fmt.Errorf("failed to get session %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.TestSession
	if err := json.Unmarshal(resp.Kvs[0].Value, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s from JSON: %w", id, err)
	}
	return &session, nil
}

// List returns every session in key order.
func (r *etcdSessionRepository) List(ctx context.Context) ([]*domain.TestSession, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListSessions")
	defer span.End()

	resp, err := r.client.Get(ctx, SessionPrefix, clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sessions from etcd")
		return nil, fmt.Errorf("failed to list sessions from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	sessions := make([]*domain.TestSession, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var session domain.TestSession
		if err := json.Unmarshal(kv.Value, &session); err != nil {
			r.logger.Warn("failed to unmarshal session from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}
