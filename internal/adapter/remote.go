package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"remedian/internal/mapping"
	"remedian/internal/remote"
	"remedian/internal/types"
)

// remoteBackend serves a mapped kind from the CRM through the authenticated
// connector. CRM paging tokens are passed through as opaque cursors, and
// write acknowledgements without a body are resolved by re-reading.
type remoteBackend struct {
	conn *remote.Connector
	m    *mapping.ResourceMapping
}

// NewRemoteBackend builds a Backend for one CRM-hosted kind.
func NewRemoteBackend(conn *remote.Connector, m *mapping.ResourceMapping) Backend {
	return &remoteBackend{conn: conn, m: m}
}

var _ Backend = (*remoteBackend)(nil)

func (b *remoteBackend) Get(ctx context.Context, id string) (*types.Resource, error) {
	raw, err := b.conn.GetItem(ctx, remote.ExpandPath(b.m.RemoteItem, id))
	if err != nil {
		return nil, err
	}
	return b.toCanonical(id, raw), nil
}

func (b *remoteBackend) List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	filter, err := b.m.FilterToBackend(types.BackendRemote, params.Filter)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	query := url.Values{}
	for field, v := range filter {
		query.Set(field, fmt.Sprint(v))
	}
	query.Set("limit", fmt.Sprint(params.Limit))
	if params.Cursor != "" {
		query.Set("cursor", params.Cursor)
	}

	items, next, err := b.conn.ListCollection(ctx, b.m.RemoteCollection, query)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	out := make([]*types.Resource, 0, len(items))
	for _, item := range items {
		id, _ := item["id"].(string)
		out = append(out, b.toCanonical(id, item))
	}
	return out, types.PageInfo{HasMore: next != "", NextCursor: next}, nil
}

func (b *remoteBackend) Create(ctx context.Context, fields map[string]any) (*types.Resource, error) {
	payload, err := b.m.ToBackend(types.BackendRemote, fields)
	if err != nil {
		return nil, err
	}
	raw, err := b.conn.CreateItem(ctx, b.m.RemoteCollection, payload)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		// Bare acknowledgement. Without a body there is no id to re-read, so
		// echo the accepted representation.
		return b.toCanonical("", payload), nil
	}
	id, _ := raw["id"].(string)
	return b.toCanonical(id, raw), nil
}

func (b *remoteBackend) Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error) {
	payload, err := b.m.ToBackend(types.BackendRemote, fields)
	if err != nil {
		return nil, err
	}
	raw, err := b.conn.UpdateItem(ctx, remote.ExpandPath(b.m.RemoteItem, id), payload)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		// Accepted with no representation; the current state comes from a
		// fresh read.
		return b.Get(ctx, id)
	}
	return b.toCanonical(id, raw), nil
}

func (b *remoteBackend) Delete(ctx context.Context, id string) error {
	return b.conn.DeleteItem(ctx, remote.ExpandPath(b.m.RemoteItem, id))
}

func (b *remoteBackend) toCanonical(id string, raw map[string]any) *types.Resource {
	return b.m.ToCanonical(types.BackendRemote, id, raw, remoteUpdatedAt(raw))
}

// remoteUpdatedAt extracts the record's last-modified timestamp from the keys
// CRM payloads are known to use. Records without one keep the zero time, which
// canonical consumers treat as "unknown".
func remoteUpdatedAt(raw map[string]any) time.Time {
	for _, key := range []string{"updated_at", "updatedAt", "lastUpdate"} {
		s, ok := raw[key].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
