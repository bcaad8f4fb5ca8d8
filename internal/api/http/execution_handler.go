// internal/api/http/execution_handler.go
package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionHandler serves the execution views and their state machine actions.
type ExecutionHandler struct {
	service  *usecase.ExecutionService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewExecutionHandler(service *usecase.ExecutionService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		service:  service,
		logger:   logger.With("component", "execution-handler"),
		validate: dto.NewValidator(),
	}
}

func (h *ExecutionHandler) register(rt *router) {
	rt.handle("GET /executions", h.handleLoad)
	rt.handle("GET /executions/stats", h.handleStats)
	rt.handle("PATCH /executions/{caseID}", h.handleSaveProgress)
	rt.handle("POST /executions/{caseID}/steps/{step}/toggle", h.transition(domain.TransitionToggleStep))
	rt.handle("POST /executions/{caseID}/steps/{step}/failure", h.transition(domain.TransitionFlagStepFailure))
	rt.handle("DELETE /executions/{caseID}/steps/{step}/failure", h.transition(domain.TransitionClearStepFailure))
	rt.handle("POST /executions/{caseID}/result", h.transition(domain.TransitionMarkResult))
	rt.handle("POST /executions/{caseID}/reset", h.transition(domain.TransitionReset))
}

// viewQuery reads ?test_case_id=…&generation=…&session=….
func (h *ExecutionHandler) viewQuery(r *http.Request) (dto.ExecutionQuery, error) {
	q := r.URL.Query()
	query := dto.ExecutionQuery{
		TestCaseIDs:  q["test_case_id"],
		GenerationID: q.Get("generation"),
		SessionID:    q.Get("session"),
	}
	if err := dto.Validate(h.validate, &query); err != nil {
		return query, err
	}
	return query, nil
}

// handleLoad answers with an object keyed by test case id, in view order.
func (h *ExecutionHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, err := h.viewQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ids, err := h.service.ResolveTestCases(ctx, query.TestCaseIDs, query.GenerationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	executions, err := h.service.LoadExecutions(ctx, ids, query.SessionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

type statsResponse struct {
	domain.ExecutionStats
	PassRate float64 `json:"pass_rate"`
}

func (h *ExecutionHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, err := h.viewQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ids, err := h.service.ResolveTestCases(ctx, query.TestCaseIDs, query.GenerationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	stats, err := h.service.ComputeStats(ctx, ids, query.SessionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{ExecutionStats: stats, PassRate: stats.PassRate()})
}

func (h *ExecutionHandler) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveProgressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.TestCaseID = r.PathValue("caseID")
	if err := dto.Validate(h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("test_case.id", req.TestCaseID))
	rec, err := h.service.SaveProgress(r.Context(), req.ToDomain())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// transition handles the action routes. The acting user and session may come
// from the body or from ?executed_by= and ?session=.
func (h *ExecutionHandler) transition(kind domain.TransitionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.TransitionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		req.Kind = string(kind)
		req.TestCaseID = r.PathValue("caseID")
		if raw := r.PathValue("step"); raw != "" {
			step, err := strconv.Atoi(raw)
			if err != nil || step <= 0 {
				writeError(w, r, h.logger, &dto.ValidationError{Details: []string{"invalid step number " + strconv.Quote(raw)}})
				return
			}
			req.StepNumber = step
		}
		if req.ExecutedBy == "" {
			req.ExecutedBy = r.URL.Query().Get("executed_by")
		}
		if req.SessionID == "" {
			req.SessionID = r.URL.Query().Get("session")
		}
		if err := dto.Validate(h.validate, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		trace.SpanFromContext(r.Context()).SetAttributes(
			attribute.String("test_case.id", req.TestCaseID),
			attribute.String("transition.kind", req.Kind),
		)
		rec, err := h.service.Transition(r.Context(), req.ToDomain())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
