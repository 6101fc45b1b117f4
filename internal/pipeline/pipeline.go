package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"remedian/internal/types"
)

// ProblemTracker records detected issues and their remediation outcomes.
// Implemented by the problem repository.
type ProblemTracker interface {
	EnsureOpen(ctx context.Context, category types.RemediationCategory, kind types.ResourceKind, resourceID string, resourceName *string) (*types.ServiceProblem, error)
	Transition(ctx context.Context, id string, status types.ProblemStatus, reason, jobID, resultMessage string) error
}

// Config carries the pipeline's collaborators.
type Config struct {
	API           ResourceAPI
	Policies      *PolicySet
	Backups       BackupStore
	Resyncer      Resyncer // optional; nil disables verify
	Problems      ProblemTracker
	Logger        *slog.Logger
	ResyncEnabled bool
}

// Pipeline runs the detect-plan-apply-verify workflow for one work item at a
// time. It holds no per-item state; a single Pipeline is shared by all
// workers of a job.
type Pipeline struct {
	api           ResourceAPI
	policies      *PolicySet
	backups       BackupStore
	resyncer      Resyncer
	problems      ProblemTracker
	logger        *slog.Logger
	resyncEnabled bool
}

// New builds a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		api:           cfg.API,
		policies:      cfg.Policies,
		backups:       cfg.Backups,
		resyncer:      cfg.Resyncer,
		problems:      cfg.Problems,
		logger:        logger,
		resyncEnabled: cfg.ResyncEnabled,
	}
}

// Run processes one work item to a terminal outcome. Item-level failures are
// captured in the result, never returned: the caller's job absorbs them into
// its summary and moves on.
func (p *Pipeline) Run(ctx context.Context, jobID string, item types.WorkItem) types.ItemResult {
	result := types.ItemResult{ResourceID: item.ResourceID}
	log := p.logger.With(
		slog.String("job_id", jobID),
		slog.String("resource_id", item.ResourceID),
		slog.String("category", string(item.Category)),
	)

	resource, missing, err := p.detect(ctx, item)
	if err != nil {
		result.Outcome = types.OutcomeFailed
		result.Err = oneLine(err)
		log.Error("detection failed", slog.String("error", result.Err))
		return result
	}
	if !p.policies.Eligible(resource) {
		result.Outcome = types.OutcomeSkipped
		log.Debug("resource not eligible for remediation")
		return result
	}
	if len(missing) == 0 {
		result.Outcome = types.OutcomeSkipped
		log.Debug("no issue detected")
		return result
	}

	problem := p.trackOpen(ctx, item, resource, jobID, log)

	plan := p.plan(ctx, item, resource, missing)
	if !plan.CanPatch {
		result.Outcome = types.OutcomeNotPatchable
		result.Err = fmt.Sprintf("no authoritative source for %s", strings.Join(plan.NotPatchableFields, ", "))
		p.trackOutcome(ctx, problem, types.ProblemRejected, jobID, result.Err, log)
		log.Info("item not patchable", slog.Any("fields", plan.NotPatchableFields))
		return result
	}

	fieldResults, allApplied := p.apply(ctx, item, resource, plan)
	result.FieldResults = fieldResults
	if !allApplied {
		result.Outcome = types.OutcomeFailed
		result.Err = "one or more field updates failed"
		p.trackOutcome(ctx, problem, types.ProblemHeld, jobID, result.Err, log)
		log.Warn("apply failed", slog.Any("field_results", fieldResults))
		return result
	}

	result.Outcome = types.OutcomeSuccess
	if p.resyncEnabled && p.resyncer != nil {
		if policy, _ := p.policies.For(item.Category); policy.Resync {
			if err := p.resyncer.Resync(ctx, item.Kind, item.ResourceID); err != nil {
				// Patched but derived remote state is stale; degraded, not failed.
				result.Outcome = types.OutcomeResyncPending
				result.Err = oneLine(err)
				log.Warn("resync failed", slog.String("error", result.Err))
			}
		}
	}

	if len(plan.NotPatchableFields) > 0 {
		// Partial repair: the problem stays open for the fields no source
		// could resolve.
		msg := fmt.Sprintf("patched %d field(s); no source for %s",
			len(plan.PatchableFields), strings.Join(plan.NotPatchableFields, ", "))
		p.trackOutcome(ctx, problem, types.ProblemInProgress, jobID, msg, log)
	} else {
		p.trackOutcome(ctx, problem, types.ProblemResolved, jobID, "remediation applied", log)
	}

	log.Info("item processed", slog.String("outcome", string(result.Outcome)))
	return result
}

// trackOpen records the confirmed issue and marks it in progress. Tracking
// failures are logged, never fatal to the item.
func (p *Pipeline) trackOpen(ctx context.Context, item types.WorkItem, resource *types.Resource, jobID string, log *slog.Logger) *types.ServiceProblem {
	if p.problems == nil {
		return nil
	}
	var name *string
	if n := resource.String("name"); n != "" {
		name = &n
	}
	problem, err := p.problems.EnsureOpen(ctx, item.Category, item.Kind, item.ResourceID, name)
	if err != nil {
		log.Warn("failed to track problem", slog.String("error", oneLine(err)))
		return nil
	}
	if err := p.problems.Transition(ctx, problem.ID, types.ProblemInProgress, "remediation started", jobID, ""); err != nil {
		log.Warn("failed to transition problem", slog.String("error", oneLine(err)))
	}
	return problem
}

// trackOutcome settles the problem record for the item's terminal outcome.
func (p *Pipeline) trackOutcome(ctx context.Context, problem *types.ServiceProblem, status types.ProblemStatus, jobID, message string, log *slog.Logger) {
	if p.problems == nil || problem == nil {
		return
	}
	if err := p.problems.Transition(ctx, problem.ID, status, "remediation outcome", jobID, message); err != nil {
		log.Warn("failed to record problem outcome", slog.String("error", oneLine(err)))
	}
}
