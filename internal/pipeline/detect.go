package pipeline

import (
	"context"
	"fmt"

	"remedian/internal/types"
)

// Detect fetches the current snapshot of a work item's resource and returns
// the mandatory fields its category finds missing. Detection never mutates
// state; one fetch, one comparison.
func (p *Pipeline) detect(ctx context.Context, item types.WorkItem) (*types.Resource, []string, error) {
	policy, ok := p.policies.For(item.Category)
	if !ok {
		return nil, nil, types.NewAppError(
			types.ErrCodeValidationInvalidCategory,
			fmt.Sprintf("no policy for category %q", item.Category),
			nil,
		)
	}

	resource, err := p.api.Get(ctx, item.Kind, item.ResourceID)
	if err != nil {
		return nil, nil, err
	}

	mandatory := item.MandatoryFields
	if len(mandatory) == 0 {
		mandatory = policy.MandatoryFields
	}

	var missing []string
	for _, field := range mandatory {
		if resource.Empty(field) {
			missing = append(missing, field)
		}
	}
	return resource, missing, nil
}
