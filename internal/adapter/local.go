package adapter

import (
	"context"

	"remedian/internal/db"
	"remedian/internal/mapping"
	"remedian/internal/types"
)

// localBackend serves a mapped kind from the relational store. All SQL is
// generated by the generic ResourceStore from the mapping entry; this layer
// only translates canonical field names and values.
type localBackend struct {
	store *db.ResourceStore
	m     *mapping.ResourceMapping
}

// NewLocalBackend builds a Backend for one locally stored kind.
func NewLocalBackend(store *db.ResourceStore, m *mapping.ResourceMapping) Backend {
	return &localBackend{store: store, m: m}
}

var _ Backend = (*localBackend)(nil)

func (b *localBackend) Get(ctx context.Context, id string) (*types.Resource, error) {
	return b.store.Get(ctx, b.m, id)
}

func (b *localBackend) List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	filter, err := b.m.FilterToBackend(types.BackendLocal, params.Filter)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	resources, next, err := b.store.List(ctx, b.m, filter, params.Limit, params.Cursor)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	return resources, types.PageInfo{HasMore: next != "", NextCursor: next}, nil
}

func (b *localBackend) Create(ctx context.Context, fields map[string]any) (*types.Resource, error) {
	id := popID(fields)
	backendFields, err := b.m.ToBackend(types.BackendLocal, fields)
	if err != nil {
		return nil, err
	}
	return b.store.Create(ctx, b.m, id, backendFields)
}

func (b *localBackend) Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error) {
	backendFields, err := b.m.ToBackend(types.BackendLocal, fields)
	if err != nil {
		return nil, err
	}
	return b.store.Update(ctx, b.m, id, backendFields)
}

func (b *localBackend) Delete(ctx context.Context, id string) error {
	return b.store.Delete(ctx, b.m, id)
}

// popID removes and returns a caller-supplied "id" field. Identity is not a
// mapped field, so it must never reach the translation layer.
func popID(fields map[string]any) string {
	v, ok := fields["id"]
	if !ok {
		return ""
	}
	delete(fields, "id")
	s, _ := v.(string)
	return s
}
