package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"remedian/internal/types"
)

// ProblemRepo provides data access for tracked service problems. Problems
// carry an immutable-history contract: transitions write status_change_date
// and status_change_reason instead of silently overwriting state.
type ProblemRepo struct {
	db DBTX
}

// NewProblemRepo creates a ProblemRepo backed by the given connection.
func NewProblemRepo(db DBTX) *ProblemRepo {
	return &ProblemRepo{db: db}
}

const problemColumns = `id, category, status, resource_kind, resource_id, resource_name,
	related_job_id, result_message, status_change_date, status_change_reason,
	created_at, updated_at`

// scanProblem reads one problem row in problemColumns order.
func scanProblem(row pgx.Row) (*types.ServiceProblem, error) {
	var (
		p            types.ServiceProblem
		resourceKind string
		resourceName *string
		relatedJob   *string
		resultMsg    *string
		changeReason *string
	)
	err := row.Scan(
		&p.ID, &p.Category, &p.Status, &resourceKind, &p.AffectedResource.ID, &resourceName,
		&relatedJob, &resultMsg, &p.StatusChangeDate, &changeReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AffectedResource.Href = "/v1/resource/" + resourceKind + "/" + p.AffectedResource.ID
	p.AffectedResource.Name = resourceName
	if relatedJob != nil {
		p.RelatedJobID = *relatedJob
	}
	if resultMsg != nil {
		p.ResultMessage = *resultMsg
	}
	if changeReason != nil {
		p.StatusChangeReason = *changeReason
	}
	return &p, nil
}

// EnsureOpen returns the open problem for (category, resource), creating a
// pending one when detection confirms the issue for the first time. At most
// one open problem exists per category and resource.
func (r *ProblemRepo) EnsureOpen(ctx context.Context, category types.RemediationCategory, kind types.ResourceKind, resourceID string, resourceName *string) (*types.ServiceProblem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+problemColumns+` FROM service_problems
		 WHERE category = $1 AND resource_kind = $2 AND resource_id = $3
		   AND status IN ('pending', 'acknowledged', 'in_progress', 'held')
		 ORDER BY created_at DESC LIMIT 1`,
		category, kind, resourceID)
	existing, err := scanProblem(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query open problem", err)
	}

	p := &types.ServiceProblem{
		ID:       uuid.NewString(),
		Category: category,
		Status:   types.ProblemPending,
		AffectedResource: types.ResourceRef{
			ID:   resourceID,
			Href: "/v1/resource/" + string(kind) + "/" + resourceID,
			Name: resourceName,
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO service_problems (id, category, status, resource_kind, resource_id, resource_name,
			related_job_id, result_message, status_change_date, status_change_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, NULL, NULL, $7, $8)`,
		p.ID, p.Category, p.Status, kind, resourceID, resourceName, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert problem", err)
	}
	return p, nil
}

// GetByID fetches one problem.
func (r *ProblemRepo) GetByID(ctx context.Context, id string) (*types.ServiceProblem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+problemColumns+` FROM service_problems WHERE id = $1`, id)
	p, err := scanProblem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProblem, "problem does not exist", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read problem", err)
	}
	return p, nil
}

// List returns one page of problems ordered by id.
func (r *ProblemRepo) List(ctx context.Context, limit int, cursor string) ([]*types.ServiceProblem, string, error) {
	afterID, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+problemColumns+` FROM service_problems WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit+1)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to list problems", err)
	}
	defer rows.Close()

	var out []*types.ServiceProblem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to scan problem row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "error iterating problem rows", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = EncodeCursor(out[len(out)-1].ID)
	}
	return out, next, nil
}

// Transition moves a problem to a new status, recording when, why, and
// which job produced the outcome. Prior history fields are written, never
// erased by later reads.
func (r *ProblemRepo) Transition(ctx context.Context, id string, status types.ProblemStatus, reason, jobID, resultMessage string) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE service_problems
		 SET status = $2, status_change_date = $3, status_change_reason = $4,
			 related_job_id = COALESCE(NULLIF($5, ''), related_job_id),
			 result_message = COALESCE(NULLIF($6, ''), result_message),
			 updated_at = $7
		 WHERE id = $1`,
		id, status, now, reason, jobID, resultMessage, now)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to transition problem", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProblem, "problem does not exist", nil)
	}
	return nil
}
