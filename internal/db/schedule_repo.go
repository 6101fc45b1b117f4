package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"remedian/internal/types"
)

// ScheduleRepo provides data access for batch schedules. The scheduler
// control loop is the only writer of execution bookkeeping (counters,
// next_execution); operator edits go through Update/SetActive.
type ScheduleRepo struct {
	db DBTX
}

// NewScheduleRepo creates a ScheduleRepo backed by the given connection.
func NewScheduleRepo(db DBTX) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

const scheduleColumns = `id, name, is_active, category, recurrence, recurrence_days,
	window_start, window_end, timezone, max_batch_size, selection_criteria,
	total_executions, successful_executions, failed_executions,
	last_execution_id, next_execution, created_at, updated_at`

// scanSchedule reads one schedule row in scheduleColumns order.
func scanSchedule(row pgx.Row) (*types.BatchSchedule, error) {
	var (
		s             types.BatchSchedule
		days          []int32
		criteriaJSON  []byte
		lastExecution *string
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.IsActive, &s.Category, &s.Recurrence, &days,
		&s.WindowStart, &s.WindowEnd, &s.Timezone, &s.MaxBatchSize, &criteriaJSON,
		&s.TotalExecutions, &s.SuccessfulExecutions, &s.FailedExecutions,
		&lastExecution, &s.NextExecution, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		s.RecurrenceDays = append(s.RecurrenceDays, time.Weekday(d))
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &s.SelectionCriteria); err != nil {
			return nil, err
		}
	}
	if lastExecution != nil {
		s.LastExecutionID = *lastExecution
	}
	return &s, nil
}

// weekdaysToInts converts the weekday set into a driver-friendly int array.
func weekdaysToInts(days types.Weekdays) []int32 {
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

// Create inserts a new schedule. The id is generated when absent.
func (r *ScheduleRepo) Create(ctx context.Context, s *types.BatchSchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	criteriaJSON, err := s.SelectionCriteria.MarshalJSONB()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode selection criteria", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO batch_schedules (id, name, is_active, category, recurrence, recurrence_days,
			window_start, window_end, timezone, max_batch_size, selection_criteria,
			total_executions, successful_executions, failed_executions,
			last_execution_id, next_execution, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, 0, NULL, $12, $13, $14)`,
		s.ID, s.Name, s.IsActive, s.Category, s.Recurrence, weekdaysToInts(s.RecurrenceDays),
		s.WindowStart, s.WindowEnd, s.Timezone, s.MaxBatchSize, criteriaJSON,
		s.NextExecution, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert schedule", err)
	}
	return nil
}

// GetByID fetches one schedule.
func (r *ScheduleRepo) GetByID(ctx context.Context, id string) (*types.BatchSchedule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM batch_schedules WHERE id = $1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read schedule", err)
	}
	return s, nil
}

// List returns one page of schedules ordered by id.
func (r *ScheduleRepo) List(ctx context.Context, limit int, cursor string) ([]*types.BatchSchedule, string, error) {
	afterID, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+` FROM batch_schedules WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit+1)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to list schedules", err)
	}
	defer rows.Close()

	var out []*types.BatchSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule rows", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = EncodeCursor(out[len(out)-1].ID)
	}
	return out, next, nil
}

// ListDue returns active schedules whose next execution has arrived. Window
// and weekday gating happen in the recurrence logic, not in SQL, so the
// timezone math lives in exactly one place.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]*types.BatchSchedule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+` FROM batch_schedules
		 WHERE is_active AND next_execution IS NOT NULL AND next_execution <= $1
		 ORDER BY next_execution`,
		now)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due schedules", err)
	}
	defer rows.Close()

	var out []*types.BatchSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due schedule", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due schedules", err)
	}
	return out, nil
}

// Update applies operator edits to the configurable schedule fields.
// Execution bookkeeping is deliberately untouched here.
func (r *ScheduleRepo) Update(ctx context.Context, s *types.BatchSchedule) error {
	criteriaJSON, err := s.SelectionCriteria.MarshalJSONB()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode selection criteria", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE batch_schedules
		 SET name = $2, is_active = $3, category = $4, recurrence = $5, recurrence_days = $6,
			 window_start = $7, window_end = $8, timezone = $9, max_batch_size = $10,
			 selection_criteria = $11, next_execution = $12, updated_at = $13
		 WHERE id = $1`,
		s.ID, s.Name, s.IsActive, s.Category, s.Recurrence, weekdaysToInts(s.RecurrenceDays),
		s.WindowStart, s.WindowEnd, s.Timezone, s.MaxBatchSize,
		criteriaJSON, s.NextExecution, time.Now().UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
	}
	return nil
}

// Delete removes a schedule. Jobs already spawned from it keep running;
// only future spawns stop.
func (r *ScheduleRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM batch_schedules WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
	}
	return nil
}

// SetActive pauses or resumes a schedule. Resuming recomputes nothing here;
// the caller supplies the next execution time so the invariant
// next_execution >= now holds whenever is_active is true.
func (r *ScheduleRepo) SetActive(ctx context.Context, id string, active bool, next *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_schedules SET is_active = $2, next_execution = $3, updated_at = $4 WHERE id = $1`,
		id, active, next, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set schedule active state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
	}
	return nil
}

// RecordSpawn registers that a job was created from this schedule: stores
// the execution id, advances next_execution, and deactivates one-shot
// schedules. Run before the job executes so a slow job cannot cause a
// double spawn on the next tick.
func (r *ScheduleRepo) RecordSpawn(ctx context.Context, id string, jobID string, next *time.Time, deactivate bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_schedules
		 SET last_execution_id = $2, next_execution = $3,
			 is_active = is_active AND NOT $4, updated_at = $5
		 WHERE id = $1`,
		id, jobID, next, deactivate, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record schedule spawn", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
	}
	return nil
}

// RecordOutcome rolls a finished job into the schedule's running counters.
func (r *ScheduleRepo) RecordOutcome(ctx context.Context, id string, success bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE batch_schedules
		 SET total_executions = total_executions + 1,
			 successful_executions = successful_executions + CASE WHEN $2 THEN 1 ELSE 0 END,
			 failed_executions = failed_executions + CASE WHEN $2 THEN 0 ELSE 1 END,
			 updated_at = $3
		 WHERE id = $1`,
		id, success, time.Now().UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record schedule outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule does not exist", nil)
	}
	return nil
}
