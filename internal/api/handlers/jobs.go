package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remedian/internal/adapter"
	"remedian/internal/core"
	"remedian/internal/types"
)

// JobControl is the slice of the job repository the job handler needs
// beyond the generic resource surface.
type JobControl interface {
	RequestCancel(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*types.BatchJob, error)
}

// JobHandler serves the run-now and cancellation operations. Everything else
// about jobs goes through the canonical resource API.
type JobHandler struct {
	adapter *adapter.Adapter
	jobs    JobControl
	logger  *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(a *adapter.Adapter, jobs JobControl, l *slog.Logger) *JobHandler {
	if l == nil {
		l = slog.Default()
	}
	return &JobHandler{adapter: a, jobs: jobs, logger: l}
}

// Routes mounts the job control endpoints onto the given router group.
func (h *JobHandler) Routes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.RunNow)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cancel", h.Cancel)
	})
}

// RunNow handles POST /v1/jobs: the immediate-run create variant that
// bypasses scheduling. The job starts executing in the background; the
// response carries the pending job record.
func (h *JobHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := core.DecodeJSON(w, r, &fields); err != nil {
		core.Error(w, r, err)
		return
	}

	resource, err := h.adapter.Create(r.Context(), types.KindJob, fields)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: resource})
}

// Get handles GET /v1/jobs/{id}, the dashboard's polling endpoint.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// Cancel handles POST /v1/jobs/{id}/cancel. Cancellation is cooperative:
// the flag is observed between items, so the in-flight item finishes and the
// response reflects the request, not the settled state.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.jobs.RequestCancel(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: job})
}
