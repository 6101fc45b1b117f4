// Package pipeline implements the per-item remediation workflow: detect a
// category's missing mandatory fields, plan provenance-tagged patch values
// from authoritative sources, apply them through the resource adapter, and
// optionally trigger a downstream resync.
package pipeline

import (
	"context"

	"remedian/internal/types"
)

// ResourceAPI is the slice of the virtualization adapter the pipeline needs.
type ResourceAPI interface {
	Get(ctx context.Context, kind types.ResourceKind, id string) (*types.Resource, error)
	List(ctx context.Context, kind types.ResourceKind, params types.ListParams) ([]*types.Resource, types.PageInfo, error)
	Update(ctx context.Context, kind types.ResourceKind, id string, fields map[string]any) (*types.Resource, error)
}

// LookupRule resolves a missing field by following a reference on the same
// resource to a related resource and reading one of its fields. This is the
// one-hop cap: exactly one intermediate fetch, never a chain.
type LookupRule struct {
	Ref         string             // reference field on the work item's resource
	RefKind     types.ResourceKind // kind the reference points at
	SourceField string             // field to read on the related resource
}

// SearchRule resolves a missing reference field by searching the target kind
// for records pointing back at the same parent. The value resolves only when
// the search finds exactly one candidate; ambiguity is never guessed away.
type SearchRule struct {
	Kind        types.ResourceKind // kind to search
	FilterField string             // canonical filter field on the searched kind
	ParentRef   string             // reference field on the work item's resource supplying the filter value
}

// CategoryPolicy declares how one remediation category detects and repairs
// its defect class.
type CategoryPolicy struct {
	Category        types.RemediationCategory
	MandatoryFields []string

	// Resolution sources, in the order the planner consults them.
	Denormalized map[string]string     // field -> sibling field on the same resource
	Lookups      map[string]LookupRule // field -> one-hop lookup
	Searches     map[string]SearchRule // field -> reverse search
	Constants    map[string]any        // field -> fixed value

	// ServiceTypeConstants override Constants per service type, for fields
	// whose fixed value depends on what kind of service is being repaired.
	ServiceTypeConstants map[string]map[string]any

	// DocumentFields are composite documents whose previous version must be
	// preserved under a backup id before being overwritten.
	DocumentFields map[string]bool

	// Resync marks categories whose patches require a downstream
	// resynchronization for derived remote state to pick up the change.
	Resync bool
}

// constantFor returns the policy constant for a field, preferring the
// service-type-specific value.
func (p *CategoryPolicy) constantFor(field, serviceType string) (any, bool) {
	if byType, ok := p.ServiceTypeConstants[serviceType]; ok {
		if v, ok := byType[field]; ok {
			return v, true
		}
	}
	v, ok := p.Constants[field]
	return v, ok
}

// PolicySet is the closed registry of category policies plus the
// deployment-wide eligibility filter.
type PolicySet struct {
	byCategory map[types.RemediationCategory]*CategoryPolicy

	// migrationActor restricts remediation to records marked as migrated by
	// this actor. Empty means no restriction.
	migrationActor string
}

// For returns the policy for a category.
func (s *PolicySet) For(category types.RemediationCategory) (*CategoryPolicy, bool) {
	p, ok := s.byCategory[category]
	return p, ok
}

// EligibilityFilter returns the extra selection criteria every enumeration
// must include, or nil when no eligibility restriction is configured.
func (s *PolicySet) EligibilityFilter() map[string]string {
	if s.migrationActor == "" {
		return nil
	}
	return map[string]string{"migrated_by": s.migrationActor}
}

// Eligible reports whether a resource may be remediated at all.
func (s *PolicySet) Eligible(r *types.Resource) bool {
	if s.migrationActor == "" {
		return true
	}
	return r.String("migrated_by") == s.migrationActor
}

// DefaultPolicies builds the built-in category policies. migrationActor
// comes from deployment config and may be empty.
func DefaultPolicies(migrationActor string) *PolicySet {
	policies := []*CategoryPolicy{
		{
			Category:        types.CategorySolutionEmpty,
			MandatoryFields: []string{"solution"},
			ServiceTypeConstants: map[string]map[string]any{
				"connectivity": {"solution": `{"template":"connectivity-baseline","version":1}`},
				"cloud":        {"solution": `{"template":"cloud-baseline","version":1}`},
				"managed":      {"solution": `{"template":"managed-baseline","version":1}`},
			},
			DocumentFields: map[string]bool{"solution": true},
			Resync:         true,
		},
		{
			Category:        types.CategoryPICIncomplete,
			MandatoryFields: []string{"pic_name", "pic_email", "pic_phone"},
			Lookups: map[string]LookupRule{
				"pic_name":  {Ref: "account", RefKind: types.KindAccount, SourceField: "contact_name"},
				"pic_email": {Ref: "account", RefKind: types.KindAccount, SourceField: "contact_email"},
				"pic_phone": {Ref: "account", RefKind: types.KindAccount, SourceField: "contact_phone"},
			},
		},
		{
			Category:        types.CategoryBillingUnlinked,
			MandatoryFields: []string{"billing_account"},
			Searches: map[string]SearchRule{
				"billing_account": {
					Kind:        types.KindBillingAccount,
					FilterField: "account",
					ParentRef:   "account",
				},
			},
		},
	}

	byCategory := make(map[types.RemediationCategory]*CategoryPolicy, len(policies))
	for _, p := range policies {
		byCategory[p.Category] = p
	}
	return &PolicySet{byCategory: byCategory, migrationActor: migrationActor}
}
