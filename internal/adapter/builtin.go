package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remedian/internal/batch"
	"remedian/internal/core"
	"remedian/internal/db"
	"remedian/internal/types"
)

// Engine-owned kinds (schedules, jobs, problems) live in typed repositories
// but are exposed through the same canonical resource API as everything
// else. These backends convert between the typed records and the generic
// field-map shape.

// resourceFromRecord flattens a typed record into a canonical Resource via
// its JSON form. Identity and the update timestamp are carried on the
// envelope, not duplicated in the field map.
func resourceFromRecord(kind types.ResourceKind, id string, record any, updatedAt time.Time) (*types.Resource, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode record", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode record", err)
	}
	delete(fields, "id")
	delete(fields, "updated_at")
	return &types.Resource{Kind: kind, ID: id, Fields: fields, UpdatedAt: updatedAt}, nil
}

// decodeFields unmarshals a canonical field map into a typed record,
// rejecting values that do not fit the record's shape.
func decodeFields(fields map[string]any, dst any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid field values", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid field values", err)
	}
	return nil
}

// rejectFilter fails list calls that carry filters, which engine-owned kinds
// do not support.
func rejectFilter(params types.ListParams) error {
	if len(params.Filter) > 0 {
		return types.NewAppError(
			types.ErrCodeValidationUnmappedField,
			"engine-owned kinds do not support list filters",
			nil,
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Schedules
// ---------------------------------------------------------------------------

// scheduleBackend serves the schedule kind from the typed repository.
type scheduleBackend struct {
	repo      *db.ScheduleRepo
	validator *core.Validator
	now       func() time.Time
}

// NewScheduleBackend builds the Backend for batch schedules.
func NewScheduleBackend(repo *db.ScheduleRepo) Backend {
	return &scheduleBackend{repo: repo, validator: core.NewValidator(), now: time.Now}
}

var _ Backend = (*scheduleBackend)(nil)

func (b *scheduleBackend) Get(ctx context.Context, id string) (*types.Resource, error) {
	s, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return resourceFromRecord(types.KindSchedule, s.ID, s, s.UpdatedAt)
}

func (b *scheduleBackend) List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	if err := rejectFilter(params); err != nil {
		return nil, types.PageInfo{}, err
	}
	schedules, next, err := b.repo.List(ctx, params.Limit, params.Cursor)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	out := make([]*types.Resource, 0, len(schedules))
	for _, s := range schedules {
		r, err := resourceFromRecord(types.KindSchedule, s.ID, s, s.UpdatedAt)
		if err != nil {
			return nil, types.PageInfo{}, err
		}
		out = append(out, r)
	}
	return out, types.PageInfo{HasMore: next != "", NextCursor: next}, nil
}

func (b *scheduleBackend) Create(ctx context.Context, fields map[string]any) (*types.Resource, error) {
	var s types.BatchSchedule
	if err := decodeFields(fields, &s); err != nil {
		return nil, err
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	// Schedules start active unless the payload says otherwise; absent means
	// active here because a paused new schedule would never become due.
	if _, set := fields["is_active"]; !set {
		s.IsActive = true
	}
	if err := b.validator.ValidateStruct(&s); err != nil {
		return nil, err
	}
	if err := batch.ValidateSchedule(&s); err != nil {
		return nil, err
	}
	if s.IsActive {
		first, err := batch.FirstExecution(&s, b.now().UTC())
		if err != nil {
			return nil, err
		}
		s.NextExecution = &first
	}
	if err := b.repo.Create(ctx, &s); err != nil {
		return nil, err
	}
	return resourceFromRecord(types.KindSchedule, s.ID, &s, s.UpdatedAt)
}

func (b *scheduleBackend) Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error) {
	s, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Partial update: overlay the supplied fields onto the stored record.
	if err := decodeFields(fields, s); err != nil {
		return nil, err
	}
	if err := b.validator.ValidateStruct(s); err != nil {
		return nil, err
	}
	if err := batch.ValidateSchedule(s); err != nil {
		return nil, err
	}
	if s.IsActive {
		first, err := batch.FirstExecution(s, b.now().UTC())
		if err != nil {
			return nil, err
		}
		s.NextExecution = &first
	} else {
		s.NextExecution = nil
	}
	if err := b.repo.Update(ctx, s); err != nil {
		return nil, err
	}
	return b.Get(ctx, id)
}

func (b *scheduleBackend) Delete(ctx context.Context, id string) error {
	return b.repo.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// jobCreateRequest is the accepted shape for operator-created jobs: the
// run-now variant that bypasses scheduling.
type jobCreateRequest struct {
	Name              string                    `json:"name" validate:"max=200"`
	Category          types.RemediationCategory `json:"category"`
	RequestedQuantity int                       `json:"requested_quantity"`
}

// JobStarter launches execution for a freshly created job. Implemented by
// the batch executor; injected so the adapter stays free of execution logic.
type JobStarter interface {
	StartJob(job *types.BatchJob)
}

// jobBackend serves the job kind. Creation spawns an immediate run; state
// mutation belongs to the executor, so generic updates are rejected.
type jobBackend struct {
	repo      *db.JobRepo
	starter   JobStarter
	validator *core.Validator
}

// NewJobBackend builds the Backend for batch jobs. starter may be nil in
// read-only deployments such as the API process without an embedded executor.
func NewJobBackend(repo *db.JobRepo, starter JobStarter) Backend {
	return &jobBackend{repo: repo, starter: starter, validator: core.NewValidator()}
}

var _ Backend = (*jobBackend)(nil)

func (b *jobBackend) Get(ctx context.Context, id string) (*types.Resource, error) {
	j, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return resourceFromRecord(types.KindJob, j.ID, j, j.UpdatedAt)
}

func (b *jobBackend) List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	if err := rejectFilter(params); err != nil {
		return nil, types.PageInfo{}, err
	}
	jobs, next, err := b.repo.List(ctx, params.Limit, params.Cursor)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	out := make([]*types.Resource, 0, len(jobs))
	for _, j := range jobs {
		r, err := resourceFromRecord(types.KindJob, j.ID, j, j.UpdatedAt)
		if err != nil {
			return nil, types.PageInfo{}, err
		}
		out = append(out, r)
	}
	return out, types.PageInfo{HasMore: next != "", NextCursor: next}, nil
}

func (b *jobBackend) Create(ctx context.Context, fields map[string]any) (*types.Resource, error) {
	var req jobCreateRequest
	if err := decodeFields(fields, &req); err != nil {
		return nil, err
	}
	if err := b.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if !req.Category.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidCategory,
			fmt.Sprintf("unknown remediation category %q", req.Category),
			nil,
		)
	}
	if req.RequestedQuantity <= 0 || req.RequestedQuantity > batch.MaxBatchSizeLimit {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			fmt.Sprintf("requested quantity must be between 1 and %d", batch.MaxBatchSizeLimit),
			nil,
			map[string]any{"requested_quantity": req.RequestedQuantity},
		)
	}

	job := &types.BatchJob{
		Name:              req.Name,
		State:             types.JobPending,
		Category:          req.Category,
		RequestedQuantity: req.RequestedQuantity,
	}
	if job.Name == "" {
		job.Name = fmt.Sprintf("run-now %s", req.Category)
	}
	if err := b.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	if b.starter != nil {
		b.starter.StartJob(job)
	}
	return resourceFromRecord(types.KindJob, job.ID, job, job.UpdatedAt)
}

func (b *jobBackend) Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error) {
	return nil, types.NewAppError(
		types.ErrCodeConflictJobState,
		"jobs are mutated by their executor; use the cancel operation",
		nil,
	)
}

func (b *jobBackend) Delete(ctx context.Context, id string) error {
	return b.repo.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// Problems
// ---------------------------------------------------------------------------

// problemBackend serves the problem kind read-only: problems are created by
// detection and transitioned by job outcomes, never edited directly.
type problemBackend struct {
	repo *db.ProblemRepo
}

// NewProblemBackend builds the Backend for tracked service problems.
func NewProblemBackend(repo *db.ProblemRepo) Backend {
	return &problemBackend{repo: repo}
}

var _ Backend = (*problemBackend)(nil)

func (b *problemBackend) Get(ctx context.Context, id string) (*types.Resource, error) {
	p, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return resourceFromRecord(types.KindProblem, p.ID, p, p.UpdatedAt)
}

func (b *problemBackend) List(ctx context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	if err := rejectFilter(params); err != nil {
		return nil, types.PageInfo{}, err
	}
	problems, next, err := b.repo.List(ctx, params.Limit, params.Cursor)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	out := make([]*types.Resource, 0, len(problems))
	for _, p := range problems {
		r, err := resourceFromRecord(types.KindProblem, p.ID, p, p.UpdatedAt)
		if err != nil {
			return nil, types.PageInfo{}, err
		}
		out = append(out, r)
	}
	return out, types.PageInfo{HasMore: next != "", NextCursor: next}, nil
}

func (b *problemBackend) Create(ctx context.Context, fields map[string]any) (*types.Resource, error) {
	return nil, problemReadOnly()
}

func (b *problemBackend) Update(ctx context.Context, id string, fields map[string]any) (*types.Resource, error) {
	return nil, problemReadOnly()
}

func (b *problemBackend) Delete(ctx context.Context, id string) error {
	return problemReadOnly()
}

func problemReadOnly() error {
	return types.NewAppError(
		types.ErrCodeValidationInvalidKind,
		"problems are created by detection and transitioned by job outcomes",
		nil,
	)
}
