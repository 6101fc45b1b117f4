package batch

import (
	"context"

	"remedian/internal/pipeline"
	"remedian/internal/types"
)

// ResourceLister is the slice of the virtualization adapter enumeration
// needs.
type ResourceLister interface {
	List(ctx context.Context, kind types.ResourceKind, params types.ListParams) ([]*types.Resource, types.PageInfo, error)
}

// Enumerator selects candidate work items for a job by walking the service
// listing with the schedule's selection criteria. Detection decides per item
// whether an issue actually exists; enumeration only bounds the candidate
// set.
type Enumerator struct {
	lister   ResourceLister
	policies *pipeline.PolicySet
}

// NewEnumerator builds an Enumerator.
func NewEnumerator(lister ResourceLister, policies *pipeline.PolicySet) *Enumerator {
	return &Enumerator{lister: lister, policies: policies}
}

// Enumerate returns up to limit candidates matching the criteria, with the
// deployment's eligibility filter merged in. Fewer candidates than requested
// is normal, not an error.
func (e *Enumerator) Enumerate(ctx context.Context, category types.RemediationCategory, criteria types.SelectionCriteria, limit int) ([]types.WorkItem, error) {
	policy, ok := e.policies.For(category)
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidCategory,
			"no policy for category "+string(category),
			nil,
		)
	}

	filter := make(map[string]string, len(criteria)+1)
	for k, v := range criteria {
		filter[k] = v
	}
	for k, v := range e.policies.EligibilityFilter() {
		filter[k] = v
	}

	items := make([]types.WorkItem, 0, limit)
	cursor := ""
	for len(items) < limit {
		page, info, err := e.lister.List(ctx, types.KindService, types.ListParams{
			Filter: filter,
			Limit:  limit - len(items),
			Cursor: cursor,
		})
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeBatchEnumerationFailed,
				"candidate enumeration failed",
				err,
			)
		}
		for _, r := range page {
			items = append(items, types.WorkItem{
				ResourceID:      r.ID,
				Kind:            types.KindService,
				Category:        category,
				MandatoryFields: policy.MandatoryFields,
			})
		}
		if !info.HasMore || len(page) == 0 {
			break
		}
		cursor = info.NextCursor
	}
	return items, nil
}
