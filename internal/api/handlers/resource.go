// Package handlers contains the HTTP handler implementations for the
// remediation engine API.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"remedian/internal/adapter"
	"remedian/internal/core"
	"remedian/internal/types"
)

// ResourceHandler serves the canonical resource API: one uniform CRUD
// surface for every kind, local, remote, or engine-owned.
type ResourceHandler struct {
	adapter *adapter.Adapter
	logger  *slog.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(a *adapter.Adapter, l *slog.Logger) *ResourceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ResourceHandler{adapter: a, logger: l}
}

// Routes mounts the resource endpoints onto the given router group.
func (h *ResourceHandler) Routes(r chi.Router) {
	r.Route("/resource/{kind}", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// kindParam extracts and validates the kind path parameter.
func kindParam(r *http.Request) (types.ResourceKind, error) {
	kind := types.ResourceKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidKind,
			fmt.Sprintf("unknown resource kind %q", kind),
			nil,
		)
	}
	return kind, nil
}

// listParams builds ListParams from the query string. Every parameter other
// than limit and cursor is a canonical-field filter term.
func listParams(r *http.Request) (types.ListParams, error) {
	params := types.ListParams{}
	query := r.URL.Query()

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > types.MaxListLimit {
			return params, types.NewAppError(
				types.ErrCodeValidationMissingField,
				fmt.Sprintf("limit must be a number between 1 and %d", types.MaxListLimit),
				nil,
			)
		}
		params.Limit = limit
	}
	params.Cursor = query.Get("cursor")

	for key, values := range query {
		if key == "limit" || key == "cursor" || len(values) == 0 {
			continue
		}
		if params.Filter == nil {
			params.Filter = make(map[string]string)
		}
		params.Filter[key] = values[0]
	}
	return params, nil
}

// List handles GET /v1/resource/{kind}.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	params, err := listParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	items, pageInfo, err := h.adapter.List(r.Context(), kind, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[*types.Resource]{
		Data:     items,
		PageInfo: pageInfo,
	})
}

// Get handles GET /v1/resource/{kind}/{id}.
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resource, err := h.adapter.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resource})
}

// Create handles POST /v1/resource/{kind}.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var fields map[string]any
	if err := core.DecodeJSON(w, r, &fields); err != nil {
		core.Error(w, r, err)
		return
	}

	resource, err := h.adapter.Create(r.Context(), kind, fields)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: resource})
}

// Update handles PATCH /v1/resource/{kind}/{id}.
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var fields map[string]any
	if err := core.DecodeJSON(w, r, &fields); err != nil {
		core.Error(w, r, err)
		return
	}

	resource, err := h.adapter.Update(r.Context(), kind, chi.URLParam(r, "id"), fields)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resource})
}

// Delete handles DELETE /v1/resource/{kind}/{id}.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.adapter.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
