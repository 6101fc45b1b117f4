package pipeline

import (
	"context"

	"remedian/internal/remote"
	"remedian/internal/types"
)

// Resyncer triggers the downstream resynchronization that makes the remote
// system's derived state pick up a patch.
type Resyncer interface {
	Resync(ctx context.Context, kind types.ResourceKind, id string) error
}

// CRMResyncer asks the CRM to rebuild its derived state for one record.
type CRMResyncer struct {
	conn *remote.Connector
}

// NewCRMResyncer builds a Resyncer over the authenticated CRM connector.
func NewCRMResyncer(conn *remote.Connector) *CRMResyncer {
	return &CRMResyncer{conn: conn}
}

var _ Resyncer = (*CRMResyncer)(nil)

// Resync fires the CRM's resync endpoint for the record. An empty response
// body is a normal acknowledgement.
func (r *CRMResyncer) Resync(ctx context.Context, kind types.ResourceKind, id string) error {
	path := remote.ExpandPath("/crm/v2/resync/{id}", id)
	_, err := r.conn.CreateItem(ctx, path, map[string]any{"resourceKind": string(kind)})
	return err
}
