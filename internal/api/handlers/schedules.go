package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"remedian/internal/batch"
	"remedian/internal/core"
	"remedian/internal/types"
)

// ScheduleControl is the slice of the schedule repository the pause/resume
// operations need.
type ScheduleControl interface {
	GetByID(ctx context.Context, id string) (*types.BatchSchedule, error)
	SetActive(ctx context.Context, id string, active bool, next *time.Time) error
}

// ScheduleHandler serves the operator pause/resume controls. Everything else
// about schedules goes through the canonical resource API.
type ScheduleHandler struct {
	schedules ScheduleControl
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduleHandler creates a ScheduleHandler.
func NewScheduleHandler(schedules ScheduleControl, l *slog.Logger) *ScheduleHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ScheduleHandler{schedules: schedules, logger: l, now: time.Now}
}

// Routes mounts the schedule control endpoints onto the given router group.
func (h *ScheduleHandler) Routes(r chi.Router) {
	r.Route("/schedules/{id}", func(r chi.Router) {
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
	})
}

// Pause handles POST /v1/schedules/{id}/pause.
func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Resume handles POST /v1/schedules/{id}/resume. Resuming recomputes the
// next execution so the schedule's next_execution >= now invariant holds.
func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *ScheduleHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")

	s, err := h.schedules.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if s.IsActive == active {
		state := "paused"
		if active {
			state = "active"
		}
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictScheduleState,
			"schedule is already "+state,
			nil,
		))
		return
	}

	var next *time.Time
	if active {
		first, err := batch.FirstExecution(s, h.now().UTC())
		if err != nil {
			core.Error(w, r, err)
			return
		}
		next = &first
	}
	if err := h.schedules.SetActive(r.Context(), id, active, next); err != nil {
		core.Error(w, r, err)
		return
	}

	s, err = h.schedules.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: s})
}
