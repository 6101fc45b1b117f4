package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"remedian/internal/types"
)

// JobRepo provides data access for batch jobs. A job row has exactly one
// writer after creation — the executor running it — so no row locking is
// needed; dashboard reads are always safe.
type JobRepo struct {
	db DBTX
}

// NewJobRepo creates a JobRepo backed by the given connection.
func NewJobRepo(db DBTX) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, name, state, category, requested_quantity, actual_quantity,
	total, successful, failed, skipped, pending,
	current_item_id, current_item_state, parent_schedule_id, execution_number,
	last_error, cancel_requested, created_at, updated_at`

// scanJob reads one job row in jobColumns order.
func scanJob(row pgx.Row) (*types.BatchJob, error) {
	var (
		j              types.BatchJob
		currentItemID  *string
		currentState   *string
		parentSchedule *string
		lastError      *string
	)
	err := row.Scan(
		&j.ID, &j.Name, &j.State, &j.Category, &j.RequestedQuantity, &j.ActualQuantity,
		&j.Summary.Total, &j.Summary.Successful, &j.Summary.Failed, &j.Summary.Skipped, &j.Summary.Pending,
		&currentItemID, &currentState, &parentSchedule, &j.ExecutionNumber,
		&lastError, &j.CancelRequested, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if currentItemID != nil {
		j.CurrentItemID = *currentItemID
	}
	if currentState != nil {
		j.CurrentItemState = *currentState
	}
	if parentSchedule != nil {
		j.ParentScheduleID = *parentSchedule
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

// Create inserts a new job in state pending.
func (r *JobRepo) Create(ctx context.Context, j *types.BatchJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.State == "" {
		j.State = types.JobPending
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	var parentSchedule *string
	if j.ParentScheduleID != "" {
		parentSchedule = &j.ParentScheduleID
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO batch_jobs (id, name, state, category, requested_quantity, actual_quantity,
			total, successful, failed, skipped, pending,
			current_item_id, current_item_state, parent_schedule_id, execution_number,
			last_error, cancel_requested, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, 0, 0, 0, 0, NULL, NULL, $6, $7, NULL, FALSE, $8, $9)`,
		j.ID, j.Name, j.State, j.Category, j.RequestedQuantity,
		parentSchedule, j.ExecutionNumber, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert job", err)
	}
	return nil
}

// GetByID fetches one job.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*types.BatchJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job does not exist", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read job", err)
	}
	return j, nil
}

// List returns one page of jobs ordered by id.
func (r *JobRepo) List(ctx context.Context, limit int, cursor string) ([]*types.BatchJob, string, error) {
	afterID, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit+1)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to list jobs", err)
	}
	defer rows.Close()

	var out []*types.BatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to scan job row", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "error iterating job rows", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = EncodeCursor(out[len(out)-1].ID)
	}
	return out, next, nil
}

// UpdateState transitions the job's lifecycle state.
func (r *JobRepo) UpdateState(ctx context.Context, id string, state types.JobState) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_jobs SET state = $2, updated_at = $3 WHERE id = $1`,
		id, state, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update job state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job does not exist", nil)
	}
	return nil
}

// UpdateProgress persists the running summary and the currently processed
// item. Called by the executor after each item outcome.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, summary types.JobSummary, actualQuantity int, currentItemID, currentItemState string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_jobs
		 SET actual_quantity = $2, total = $3, successful = $4, failed = $5, skipped = $6, pending = $7,
			 current_item_id = NULLIF($8, ''), current_item_state = NULLIF($9, ''), updated_at = $10
		 WHERE id = $1`,
		id, actualQuantity,
		summary.Total, summary.Successful, summary.Failed, summary.Skipped, summary.Pending,
		currentItemID, currentItemState, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update job progress", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job does not exist", nil)
	}
	return nil
}

// MarkTerminal writes the final state, summary, and error message in one
// statement so the terminal snapshot is atomic.
func (r *JobRepo) MarkTerminal(ctx context.Context, id string, state types.JobState, summary types.JobSummary, actualQuantity int, lastError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_jobs
		 SET state = $2, actual_quantity = $3,
			 total = $4, successful = $5, failed = $6, skipped = $7, pending = $8,
			 current_item_id = NULL, current_item_state = NULL,
			 last_error = NULLIF($9, ''), updated_at = $10
		 WHERE id = $1`,
		id, state, actualQuantity,
		summary.Total, summary.Successful, summary.Failed, summary.Skipped, summary.Pending,
		lastError, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job does not exist", nil)
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag. Cancelling a job
// that already reached a terminal state is a conflict.
func (r *JobRepo) RequestCancel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_jobs SET cancel_requested = TRUE, updated_at = $2
		 WHERE id = $1 AND state IN ('pending', 'open', 'in_progress')`,
		id, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to request job cancellation", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; disambiguate for the caller.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return types.NewAppError(
			types.ErrCodeConflictJobState,
			"job is already in a terminal state",
			nil,
		)
	}
	return nil
}

// Delete removes a terminal job record. Running jobs cannot be deleted; the
// executor owns them until they settle.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM batch_jobs WHERE id = $1 AND state IN ('completed', 'cancelled', 'failed')`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete job", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return types.NewAppError(
			types.ErrCodeConflictJobState,
			"job has not reached a terminal state",
			nil,
		)
	}
	return nil
}

// CancelRequested reports whether cancellation has been requested for the
// job. The executor polls this between items.
func (r *JobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.db.QueryRow(ctx,
		`SELECT cancel_requested FROM batch_jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, types.NewAppError(types.ErrCodeNotFoundJob, "job does not exist", nil)
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to read cancellation flag", err)
	}
	return requested, nil
}
