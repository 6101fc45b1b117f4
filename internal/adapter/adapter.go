// Package adapter implements the resource virtualization layer: a single
// uniform, typed, paginated API over heterogeneous backends. Each canonical
// kind is served by exactly one Backend implementation — the local
// relational store, the remote CRM connector, or an engine-owned typed
// repository — selected by kind registration rather than per-type logic.
package adapter

import (
	"context"
	"fmt"

	"remedian/internal/types"
)

// Backend serves the five canonical operations for one resource kind.
// Implementations normalize backend-specific results and failures into
// canonical resources and the engine error taxonomy.
type Backend interface {
	Get(ctx context.Context, id string) (*types.Resource, error)
	List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error)
	Create(ctx context.Context, fields map[string]any) (*types.Resource, error)
	Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error)
	Delete(ctx context.Context, id string) error
}

// Adapter dispatches canonical operations to the Backend registered for the
// kind. The registry is built once at startup and read-only afterwards.
type Adapter struct {
	backends map[types.ResourceKind]Backend
}

// New creates an empty Adapter.
func New() *Adapter {
	return &Adapter{backends: make(map[types.ResourceKind]Backend)}
}

// Register binds a kind to its backend. Later registrations override
// earlier ones, which lets deployment config move a kind between backends.
func (a *Adapter) Register(kind types.ResourceKind, b Backend) {
	a.backends[kind] = b
}

// backend resolves the Backend for a kind, rejecting unknown kinds.
func (a *Adapter) backend(kind types.ResourceKind) (Backend, error) {
	b, ok := a.backends[kind]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidKind,
			fmt.Sprintf("unknown resource kind %q", kind),
			nil,
		)
	}
	return b, nil
}

// Get fetches one canonical resource.
func (a *Adapter) Get(ctx context.Context, kind types.ResourceKind, id string) (*types.Resource, error) {
	b, err := a.backend(kind)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, id)
}

// List fetches one page of canonical resources.
func (a *Adapter) List(ctx context.Context, kind types.ResourceKind, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	b, err := a.backend(kind)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return b.List(ctx, params.Normalized())
}

// Create stores a new canonical resource.
func (a *Adapter) Create(ctx context.Context, kind types.ResourceKind, fields map[string]any) (*types.Resource, error) {
	b, err := a.backend(kind)
	if err != nil {
		return nil, err
	}
	return b.Create(ctx, fields)
}

// Update applies a partial canonical update.
func (a *Adapter) Update(ctx context.Context, kind types.ResourceKind, id string, fields map[string]any) (*types.Resource, error) {
	b, err := a.backend(kind)
	if err != nil {
		return nil, err
	}
	return b.Update(ctx, id, fields)
}

// Delete removes a canonical resource.
func (a *Adapter) Delete(ctx context.Context, kind types.ResourceKind, id string) error {
	b, err := a.backend(kind)
	if err != nil {
		return err
	}
	return b.Delete(ctx, id)
}
