package pipeline

import (
	"context"
	"fmt"

	"remedian/internal/types"
)

// plan resolves a value for each missing field from an authoritative source,
// consulting resolvers in fixed priority order: a denormalized sibling field
// on the same resource, a one-hop lookup through a related resource, then a
// category policy constant. A field with no resolvable non-empty value is
// reported not patchable; the planner never fabricates a value.
func (p *Pipeline) plan(ctx context.Context, item types.WorkItem, resource *types.Resource, missing []string) *types.PatchPlan {
	policy, _ := p.policies.For(item.Category)
	out := &types.PatchPlan{
		WorkItemID:    item.ResourceID,
		ServiceType:   resource.String("service_type"),
		MissingFields: missing,
	}

	// Related resources are fetched at most once per plan, shared across the
	// fields that resolve through the same reference.
	related := make(map[string]*types.Resource)

	for _, field := range missing {
		value, provenance, source, warning := p.resolve(ctx, policy, resource, field, out.ServiceType, related)
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
		if value == nil {
			out.NotPatchableFields = append(out.NotPatchableFields, field)
			continue
		}
		out.PatchableFields = append(out.PatchableFields, types.PatchField{
			Field:        field,
			Value:        value,
			Provenance:   provenance,
			SourceSystem: source,
		})
	}

	out.CanPatch = len(out.PatchableFields) > 0
	return out
}

// resolve walks the resolver chain for one field. A nil value means
// unresolvable.
func (p *Pipeline) resolve(
	ctx context.Context,
	policy *CategoryPolicy,
	resource *types.Resource,
	field, serviceType string,
	related map[string]*types.Resource,
) (any, types.Provenance, types.SourceSystem, string) {
	if sibling, ok := policy.Denormalized[field]; ok {
		if v := resource.String(sibling); v != "" {
			return v, types.ProvenanceDenormalized, types.SourceLocal, ""
		}
	}

	if rule, ok := policy.Lookups[field]; ok {
		value, warning := p.lookup(ctx, resource, rule, related)
		if value != nil {
			return value, types.ProvenanceLookup, types.SourceCRM, warning
		}
		if warning != "" {
			return nil, "", "", warning
		}
	}

	if rule, ok := policy.Searches[field]; ok {
		value, warning := p.search(ctx, resource, rule)
		if value != nil {
			return value, types.ProvenanceLookup, types.SourceCRM, warning
		}
		if warning != "" {
			return nil, "", "", warning
		}
	}

	if v, ok := policy.constantFor(field, serviceType); ok {
		return v, types.ProvenanceConstant, types.SourceLocal, ""
	}

	return nil, "", "", ""
}

// lookup follows one reference on the resource and reads the rule's source
// field from the related record.
func (p *Pipeline) lookup(ctx context.Context, resource *types.Resource, rule LookupRule, related map[string]*types.Resource) (any, string) {
	ref, ok := resource.Ref(rule.Ref)
	if !ok {
		return nil, ""
	}

	cacheKey := string(rule.RefKind) + "/" + ref.ID
	target, cached := related[cacheKey]
	if !cached {
		fetched, err := p.api.Get(ctx, rule.RefKind, ref.ID)
		if err != nil {
			return nil, fmt.Sprintf("lookup via %s failed: %v", rule.Ref, err)
		}
		related[cacheKey] = fetched
		target = fetched
	}

	if v := target.String(rule.SourceField); v != "" {
		return v, ""
	}
	return nil, ""
}

// search finds the single record of the rule's kind pointing back at the
// resource's parent reference. More than one match is ambiguous and resolves
// nothing.
func (p *Pipeline) search(ctx context.Context, resource *types.Resource, rule SearchRule) (any, string) {
	parent, ok := resource.Ref(rule.ParentRef)
	if !ok {
		return nil, ""
	}

	matches, _, err := p.api.List(ctx, rule.Kind, types.ListParams{
		Filter: map[string]string{rule.FilterField: parent.ID},
		Limit:  2,
	})
	if err != nil {
		return nil, fmt.Sprintf("search of %s failed: %v", rule.Kind, err)
	}
	switch len(matches) {
	case 1:
		return matches[0].ID, ""
	case 0:
		return nil, ""
	default:
		return nil, fmt.Sprintf("search of %s is ambiguous: multiple candidates", rule.Kind)
	}
}
