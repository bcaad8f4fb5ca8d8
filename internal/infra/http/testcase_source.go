package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"exectrack/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrReadOnly is returned by Save: the remote source owns its test cases.
var ErrReadOnly = errors.New("test case source is read-only")

// errServer marks a 5xx answer, which is worth retrying.
var errServer = errors.New("5xx server error")

// RetryPolicy controls how often a failed request is repeated.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

type testCaseSource struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewTestCaseSource reads test cases from a remote catalog speaking the
// /test-cases API of this service.
func NewTestCaseSource(baseURL string, timeout time.Duration, retry RetryPolicy, logger *slog.Logger) domain.TestCaseRepository {
	return &testCaseSource{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		retry:  retry,
		logger: logger.With("component", "testcase-source"),
		tracer: otel.Tracer("exectrack-testcase-source"),
	}
}

func (s *testCaseSource) Save(context.Context, *domain.TestCase) error {
	return ErrReadOnly
}

func (s *testCaseSource) Get(ctx context.Context, id string) (*domain.TestCase, error) {
	ctx, span := s.tracer.Start(ctx, "source.http.GetTestCase")
	defer span.End()
	span.SetAttributes(attribute.String("test_case.id", id))

	var tc domain.TestCase
	status, err := s.fetch(ctx, "/test-cases/"+url.PathEscape(id), &tc)
	if status == http.StatusNotFound {
		return nil, domain.ErrTestCaseNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch test case")
		return nil, err
	}
	return &tc, nil
}

func (s *testCaseSource) ListByGeneration(ctx context.Context, generationID string) ([]*domain.TestCase, error) {
	ctx, span := s.tracer.Start(ctx, "source.http.ListTestCases")
	defer span.End()
	span.SetAttributes(attribute.String("generation.id", generationID))

	var cases []*domain.TestCase
	if _, err := s.fetch(ctx, "/test-cases?generation="+url.QueryEscape(generationID), &cases); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch test cases")
		return nil, err
	}
	span.SetAttributes(attribute.Int("test_case.count", len(cases)))
	return cases, nil
}

// fetch issues a GET and retries timeouts and 5xx answers.
func (s *testCaseSource) fetch(ctx context.Context, path string, out any) (int, error) {
	var (
		status  int
		lastErr error
	)
	for i := 0; i <= s.retry.MaxRetries; i++ {
		status, lastErr = s.doFetch(ctx, path, out)
		if lastErr == nil {
			return status, nil
		}

		var netErr net.Error
		if errors.As(lastErr, &netErr) && netErr.Timeout() {
			// Retriable
		} else if errors.Is(lastErr, errServer) {
			// Retriable
		} else {
			return status, fmt.Errorf("non-retriable error on attempt %d: %w", i+1, lastErr)
		}

		if i == s.retry.MaxRetries {
			break
		}
		s.logger.Warn("test case source request failed, retrying", "path", path, "attempt", i+1, "error", lastErr)
		select {
		case <-time.After(s.retry.Backoff):
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
	return status, fmt.Errorf("test case source failed after %d retries: %w", s.retry.MaxRetries, lastErr)
}

// doFetch performs a single request.
func (s *testCaseSource) doFetch(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%w: %s", errServer, resp.Status)
	}
	if resp.StatusCode >= 400 {
		// Read a small portion of the body for the error message.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("http request returned 4xx client error: %s: %s", resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response of %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
