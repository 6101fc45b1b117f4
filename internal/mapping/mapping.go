// Package mapping defines the declarative per-kind field-mapping table that
// drives the resource virtualization adapter. Each canonical resource kind
// declares its fields, their source (local column vs. remote CRM field),
// enumeration translations, and nested-reference resolution rules.
//
// The table is a data-driven interpreter: adding a resource kind is a table
// entry, not a new code path. A built-in default table ships with the engine
// and can be overridden from a JSON file at startup.
package mapping

import (
	"fmt"
	"time"

	"remedian/internal/types"
)

// FieldMapping declares one canonical field and its backend sources.
// A field is sourced from exactly one backend field per backend: Column for
// the local store, RemoteField for the CRM. Either may be empty when the
// field does not exist on that backend.
type FieldMapping struct {
	Canonical   string `json:"canonical"`
	Column      string `json:"column,omitempty"`
	RemoteField string `json:"remote_field,omitempty"`

	// Enum maps canonical values to backend values. Translation must be
	// bijective; the reverse direction is derived. Applied on the remote
	// backend only (the local store keeps canonical values).
	Enum map[string]string `json:"enum,omitempty"`

	// RefKind marks this field as a nested reference to another kind.
	// The stored value is the foreign id; the canonical form is a
	// ResourceRef{ID, Href, Name}.
	RefKind types.ResourceKind `json:"ref_kind,omitempty"`

	// RefNameColumn names the denormalized column (local) or field (remote)
	// holding the reference's display name. When absent the name is
	// deliberately left null rather than resolved through an extra round
	// trip.
	RefNameColumn string `json:"ref_name_column,omitempty"`
	RefNameRemote string `json:"ref_name_remote,omitempty"`

	// ReadOnly fields are surfaced on reads but never forwarded on
	// create/update.
	ReadOnly bool `json:"read_only,omitempty"`
}

// ResourceMapping declares the full mapping for one canonical kind.
type ResourceMapping struct {
	Kind types.ResourceKind `json:"kind"`

	// Local source
	Table string `json:"table,omitempty"`

	// Remote source: templated CRM paths. RemoteItem must contain "{id}".
	RemoteCollection string `json:"remote_collection,omitempty"`
	RemoteItem       string `json:"remote_item,omitempty"`

	Fields []FieldMapping `json:"fields"`

	// derived, not serialized
	byCanonical map[string]*FieldMapping
	reverseEnum map[string]map[string]string
}

// Field returns the mapping entry for a canonical field name.
func (m *ResourceMapping) Field(canonical string) (*FieldMapping, bool) {
	f, ok := m.byCanonical[canonical]
	return f, ok
}

// index builds the canonical-name lookup and reverse enum tables.
// Must be called once after construction or deserialization.
func (m *ResourceMapping) index() error {
	m.byCanonical = make(map[string]*FieldMapping, len(m.Fields))
	m.reverseEnum = make(map[string]map[string]string)
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Canonical == "" {
			return fmt.Errorf("mapping %s: field %d has no canonical name", m.Kind, i)
		}
		if _, dup := m.byCanonical[f.Canonical]; dup {
			return fmt.Errorf("mapping %s: duplicate canonical field %q", m.Kind, f.Canonical)
		}
		m.byCanonical[f.Canonical] = f
		if len(f.Enum) > 0 {
			rev := make(map[string]string, len(f.Enum))
			for canonical, backend := range f.Enum {
				if _, dup := rev[backend]; dup {
					return fmt.Errorf("mapping %s: enum for %q is not bijective (backend value %q)",
						m.Kind, f.Canonical, backend)
				}
				rev[backend] = canonical
			}
			m.reverseEnum[f.Canonical] = rev
		}
	}
	return nil
}

// Href builds the canonical API href for a resource of the given kind.
// References always point at the uniform resource API, never at backend URLs.
func Href(kind types.ResourceKind, id string) string {
	return fmt.Sprintf("/v1/resource/%s/%s", kind, id)
}

// ---------------------------------------------------------------------------
// Canonical <-> backend translation
// ---------------------------------------------------------------------------

// sourceName returns the backend field name for the given backend kind, or
// empty when the field is not present on that backend.
func (f *FieldMapping) sourceName(backend types.BackendKind) string {
	if backend == types.BackendRemote {
		return f.RemoteField
	}
	return f.Column
}

// refNameSource returns the denormalized display-name source for the backend.
func (f *FieldMapping) refNameSource(backend types.BackendKind) string {
	if backend == types.BackendRemote {
		return f.RefNameRemote
	}
	return f.RefNameColumn
}

// ToCanonical converts a raw backend record into a canonical Resource.
// Enum values are translated backend->canonical; reference ids are expanded
// into ResourceRef values whose display name comes from denormalized data or
// stays null. Backend fields with no mapping entry are dropped.
func (m *ResourceMapping) ToCanonical(backend types.BackendKind, id string, raw map[string]any, updatedAt time.Time) *types.Resource {
	fields := make(map[string]any, len(m.Fields))
	for i := range m.Fields {
		f := &m.Fields[i]
		src := f.sourceName(backend)
		if src == "" {
			continue
		}
		v, ok := raw[src]
		if !ok {
			continue
		}
		switch {
		case f.RefKind != "":
			fields[f.Canonical] = m.expandRef(backend, f, v, raw)
		case len(f.Enum) > 0 && backend == types.BackendRemote:
			fields[f.Canonical] = m.enumToCanonical(f, v)
		default:
			fields[f.Canonical] = v
		}
	}
	return &types.Resource{
		Kind:      m.Kind,
		ID:        id,
		Fields:    fields,
		UpdatedAt: updatedAt,
	}
}

// expandRef builds the canonical {id, href, name-or-null} form for a
// reference field. A nil/empty foreign id yields an explicit nil so the
// canonical shape still carries the field.
func (m *ResourceMapping) expandRef(backend types.BackendKind, f *FieldMapping, v any, raw map[string]any) any {
	refID, _ := v.(string)
	if refID == "" {
		return nil
	}
	ref := types.ResourceRef{
		ID:   refID,
		Href: Href(f.RefKind, refID),
	}
	if nameSrc := f.refNameSource(backend); nameSrc != "" {
		if name, ok := raw[nameSrc].(string); ok && name != "" {
			ref.Name = &name
		}
	}
	return ref
}

// enumToCanonical translates a backend enum value to its canonical form.
// Unknown backend values pass through untranslated so reads never fail on
// data the CRM added after this table was built.
func (m *ResourceMapping) enumToCanonical(f *FieldMapping, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if canonical, found := m.reverseEnum[f.Canonical][s]; found {
		return canonical
	}
	return s
}

// ToBackend converts canonical field values into the backend representation
// for create/update payloads. Unmapped fields are rejected (never forwarded
// verbatim), read-only fields are rejected, enums are translated
// canonical->backend, and references collapse to their foreign id.
func (m *ResourceMapping) ToBackend(backend types.BackendKind, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for canonical, v := range fields {
		f, ok := m.byCanonical[canonical]
		if !ok {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnmappedField,
				fmt.Sprintf("field %q is not mapped for kind %s", canonical, m.Kind),
				nil,
				map[string]any{"field": canonical},
			)
		}
		if f.ReadOnly {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnmappedField,
				fmt.Sprintf("field %q is read-only for kind %s", canonical, m.Kind),
				nil,
				map[string]any{"field": canonical},
			)
		}
		src := f.sourceName(backend)
		if src == "" {
			// Field exists canonically but has no home on this backend.
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnmappedField,
				fmt.Sprintf("field %q is not writable on the %s backend", canonical, backend),
				nil,
				map[string]any{"field": canonical},
			)
		}
		switch {
		case f.RefKind != "":
			out[src] = collapseRef(v)
		case len(f.Enum) > 0 && backend == types.BackendRemote:
			s, isStr := v.(string)
			if !isStr {
				out[src] = v
				continue
			}
			translated, found := f.Enum[s]
			if !found {
				return nil, types.NewAppErrorWithDetails(
					types.ErrCodeValidationMissingField,
					fmt.Sprintf("value %q is not a valid %s for kind %s", s, canonical, m.Kind),
					nil,
					map[string]any{"field": canonical, "value": s},
				)
			}
			out[src] = translated
		default:
			out[src] = v
		}
	}
	return out, nil
}

// FilterToBackend translates canonical filter terms into backend field names
// and values. Unlike ToBackend it accepts read-only fields, since filtering on
// a field the engine cannot write (such as a migration marker) is legitimate.
// Reference fields match on the bare foreign id.
func (m *ResourceMapping) FilterToBackend(backend types.BackendKind, filter map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for canonical, v := range filter {
		f, ok := m.byCanonical[canonical]
		if !ok {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnmappedField,
				fmt.Sprintf("filter field %q is not mapped for kind %s", canonical, m.Kind),
				nil,
				map[string]any{"field": canonical},
			)
		}
		src := f.sourceName(backend)
		if src == "" {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUnmappedField,
				fmt.Sprintf("filter field %q does not exist on the %s backend", canonical, backend),
				nil,
				map[string]any{"field": canonical},
			)
		}
		if len(f.Enum) > 0 && backend == types.BackendRemote {
			if translated, found := f.Enum[v]; found {
				out[src] = translated
				continue
			}
		}
		out[src] = v
	}
	return out, nil
}

// collapseRef reduces a canonical reference value back to the bare foreign id
// the backends store. Accepts the typed form, the JSON map form, or a plain
// id string.
func collapseRef(v any) any {
	switch ref := v.(type) {
	case nil:
		return nil
	case string:
		return ref
	case types.ResourceRef:
		return ref.ID
	case *types.ResourceRef:
		if ref == nil {
			return nil
		}
		return ref.ID
	case map[string]any:
		id, _ := ref["id"].(string)
		return id
	default:
		return v
	}
}
