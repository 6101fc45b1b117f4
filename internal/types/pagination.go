package types

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListResponse is a generic paginated response wrapper.
type ListResponse[T any] struct {
	Data     []T      `json:"data"`
	PageInfo PageInfo `json:"pagination"`
}

// DefaultListLimit is applied when a list request does not specify a limit.
const DefaultListLimit = 50

// MaxListLimit is the hard cap on page size, regardless of what was requested.
const MaxListLimit = 500

// ListParams carries filter and pagination inputs for adapter list calls.
// Filter keys are canonical field names; unknown keys are rejected by the
// mapping layer rather than silently ignored.
type ListParams struct {
	Filter map[string]string `json:"filter,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Cursor string            `json:"cursor,omitempty"`
}

// Normalized returns a copy with the limit clamped to [1, MaxListLimit],
// applying DefaultListLimit when unset.
func (p ListParams) Normalized() ListParams {
	out := p
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	return out
}
