// Package api serves the pipeline run API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lakehouse/internal/domain"
	"lakehouse/internal/middleware"
	"lakehouse/internal/service/pipeline"
)

// runService defines the pipeline operations used by the API handler.
type runService interface {
	Pipelines() []string
	Active(name string) (string, bool)
	Start(ctx context.Context, name, env, trigger string) (*domain.PipelineRun, error)
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error)
	QualityResults(ctx context.Context, id string) ([]domain.QualityCheckResult, error)
}

var _ runService = (*pipeline.Service)(nil)

const maxListLimit = 500

// Handler serves pipeline and run endpoints.
type Handler struct {
	svc        runService
	defaultEnv string
	logger     *slog.Logger
}

// NewHandler creates a Handler. Triggers without an env use defaultEnv.
func NewHandler(svc runService, defaultEnv string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, defaultEnv: defaultEnv, logger: logger}
}

// Routes mounts the endpoints on r. auth guards the triggering endpoint.
func (h *Handler) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/pipelines", h.ListPipelines)
	r.With(auth).Post("/pipelines/{pipeline}/runs", h.TriggerRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/runs/{id}/quality", h.ListQualityResults)
	r.Get("/runs/{id}/summary", h.GetRunSummary)
}

// ListPipelines lists registered pipelines and their active run, if any.
func (h *Handler) ListPipelines(w http.ResponseWriter, _ *http.Request) {
	names := h.svc.Pipelines()
	data := make([]Pipeline, 0, len(names))
	for _, name := range names {
		p := Pipeline{Name: name}
		if id, busy := h.svc.Active(name); busy {
			p.ActiveRunID = &id
		}
		data = append(data, p)
	}
	writeJSON(w, http.StatusOK, List[Pipeline]{Data: data})
}

// TriggerRun starts a run in the background and answers 202 with the
// RUNNING run.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	env := req.Env
	if env == "" {
		env = h.defaultEnv
	}
	name := chi.URLParam(r, "pipeline")

	run, err := h.svc.Start(r.Context(), name, env, domain.TriggerTypeManual)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	principal, _ := middleware.PrincipalFromContext(r.Context())
	h.logger.Info("run triggered", "pipeline", name, "env", env, "run_id", run.RunID,
		"principal", principal, "request_id", middleware.RequestIDFromContext(r.Context()))
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, RunFromDomain(*run))
}

// ListRuns lists runs newest first, filtered by ?pipeline, ?status and ?limit.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.PipelineRunFilter
	if v := q.Get("pipeline"); v != "" {
		filter.Pipeline = &v
	}
	if v := q.Get("status"); v != "" {
		switch v {
		case domain.RunStatusRunning, domain.RunStatusSuccess, domain.RunStatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "status must be RUNNING, SUCCESS or FAILED")
			return
		}
		filter.Status = &v
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := make([]Run, 0, len(runs))
	for _, run := range runs {
		data = append(data, RunFromDomain(run))
	}
	writeJSON(w, http.StatusOK, List[Run]{Data: data})
}

// GetRun returns one run by storage id or run id.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunFromDomain(*run))
}

// ListQualityResults returns the quality results recorded by a run.
func (h *Handler) ListQualityResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.QualityResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := make([]QualityResult, 0, len(results))
	for _, res := range results {
		data = append(data, QualityResultFromDomain(res))
	}
	writeJSON(w, http.StatusOK, List[QualityResult]{Data: data})
}

// GetRunSummary renders the plain-text run summary.
func (h *Handler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := pipeline.WriteSummary(w, run); err != nil {
		h.logger.Error("write summary", "run_id", run.RunID, "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatusFromDomainError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Error{Code: code, Message: msg})
}
