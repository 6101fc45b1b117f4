package pipeline

import (
	"context"
	"errors"
	"fmt"

	"remedian/internal/types"
)

// apply writes each patchable field through the adapter as an independent
// update: one field's failure never blocks the others. Composite document
// fields have their previous version preserved under a content-derived
// backup id first. Returns per-field results and whether every field landed.
func (p *Pipeline) apply(ctx context.Context, item types.WorkItem, resource *types.Resource, plan *types.PatchPlan) (map[string]string, bool) {
	policy, _ := p.policies.For(item.Category)
	results := make(map[string]string, len(plan.PatchableFields))
	allApplied := true

	for _, pf := range plan.PatchableFields {
		// Re-applying an identical value is a no-op, which keeps the whole
		// pipeline idempotent on unmodified resources.
		if current := resource.String(pf.Field); current != "" && valueString(pf.Value) == current {
			results[pf.Field] = "applied"
			continue
		}

		if policy.DocumentFields[pf.Field] && !resource.Empty(pf.Field) {
			previous := []byte(resource.String(pf.Field))
			backupID := BackupID(item.ResourceID, previous)
			if _, err := p.backups.Ensure(backupID, previous); err != nil {
				results[pf.Field] = fmt.Sprintf("backup failed: %v", err)
				allApplied = false
				continue
			}
		}

		if _, err := p.api.Update(ctx, item.Kind, item.ResourceID, map[string]any{pf.Field: pf.Value}); err != nil {
			results[pf.Field] = oneLine(err)
			allApplied = false
			continue
		}
		results[pf.Field] = "applied"
	}
	return results, allApplied
}

// valueString renders a patch value for comparison against the stored form.
func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// oneLine derives the dashboard-facing one-line failure message from the
// error taxonomy.
func oneLine(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Code) + ": " + appErr.Message
	}
	return err.Error()
}
