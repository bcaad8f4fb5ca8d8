// internal/api/http/router.go
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// router registers handlers on a ServeMux, each wrapped with a span and the
// request counter labelled by its route pattern.
type router struct {
	mux    *http.ServeMux
	tracer trace.Tracer
}

func (rt *router) handle(pattern string, h http.HandlerFunc) {
	rt.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := rt.tracer.Start(r.Context(), "HTTP "+pattern, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	}))
}

// NewRouter builds the HTTP API of the service.
func NewRouter(executions *ExecutionHandler, catalog *CatalogHandler) http.Handler {
	rt := &router{mux: http.NewServeMux(), tracer: otel.Tracer("exectrack-api")}
	executions.register(rt)
	catalog.register(rt)

	rt.mux.Handle("GET /metrics", promhttp.Handler())
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return rt.mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusCode maps a service error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTestCaseNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrExecutionNotFound),
		errors.Is(err, domain.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Internal details are only
// exposed for client errors.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)

	status := StatusCode(err)
	resp := dto.ErrorResponse{Error: http.StatusText(status)}
	switch {
	case status == http.StatusBadRequest:
		resp.Error = "Validation failed"
		var verr *dto.ValidationError
		if errors.As(err, &verr) {
			resp.Details = verr.Details
		} else {
			resp.Details = []string{err.Error()}
		}
		logger.Warn("rejected request", "path", r.URL.Path, "error", err)
	case status == http.StatusNotFound:
		resp.Details = []string{err.Error()}
		logger.Warn("resource not found", "path", r.URL.Path, "error", err)
	default:
		logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &dto.ValidationError{Details: []string{"malformed JSON body: " + err.Error()}}
	}
	return nil
}
