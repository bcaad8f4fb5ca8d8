package http

import (
	"log/slog"
	"net/http"

	"exectrack/internal/api/dto"
	"exectrack/internal/usecase"

	"github.com/go-playground/validator/v10"
)

// CatalogHandler serves test cases, sessions and session reports.
type CatalogHandler struct {
	service  *usecase.CatalogService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewCatalogHandler(service *usecase.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service:  service,
		logger:   logger.With("component", "catalog-handler"),
		validate: dto.NewValidator(),
	}
}

func (h *CatalogHandler) register(rt *router) {
	rt.handle("GET /test-cases", h.handleListTestCases)
	rt.handle("PUT /test-cases", h.handleSaveTestCases)
	rt.handle("GET /test-cases/{id}", h.handleGetTestCase)
	rt.handle("GET /sessions", h.handleListSessions)
	rt.handle("PUT /sessions", h.handleSaveSession)
	rt.handle("GET /sessions/{id}", h.handleGetSession)
	rt.handle("GET /sessions/{id}/report", h.handleGetReport)
}

func (h *CatalogHandler) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListTestCases(r.Context(), r.URL.Query().Get("generation"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (h *CatalogHandler) handleSaveTestCases(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveTestCasesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := dto.Validate(h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	cases := req.ToDomain()
	if err := h.service.SaveTestCases(r.Context(), cases); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, cases)
}

func (h *CatalogHandler) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	tc, err := h.service.GetTestCase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (h *CatalogHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *CatalogHandler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := dto.Validate(h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	session := req.ToDomain()
	if err := h.service.SaveSession(r.Context(), session); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *CatalogHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *CatalogHandler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
