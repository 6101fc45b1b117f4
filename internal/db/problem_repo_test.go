package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remedian/internal/types"
)

// problemScanFn fills a problem row in problemColumns order.
func problemScanFn(id string, status types.ProblemStatus) func(dest ...any) error {
	now := time.Now().UTC()
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*types.RemediationCategory) = types.CategoryPICIncomplete
		*dest[2].(*types.ProblemStatus) = status
		*dest[3].(*string) = "service"
		*dest[4].(*string) = "svc-1"
		name := "Fiber 100"
		*dest[5].(**string) = &name
		job := "job-3"
		*dest[6].(**string) = &job
		*dest[10].(*time.Time) = now
		*dest[11].(*time.Time) = now
		return nil
	}
}

func TestProblemRepo_EnsureOpen_ReturnsExisting(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	row := &mockRow{scanFn: problemScanFn("prob-1", types.ProblemInProgress)}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	p, err := repo.EnsureOpen(context.Background(), types.CategoryPICIncomplete, types.KindService, "svc-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "prob-1", p.ID)
	assert.Equal(t, types.ProblemInProgress, p.Status)
	assert.Equal(t, "/v1/resource/service/svc-1", p.AffectedResource.Href)

	// No insert when an open problem already exists.
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestProblemRepo_EnsureOpen_CreatesPending(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	name := "Fiber 100"
	p, err := repo.EnsureOpen(context.Background(), types.CategorySolutionEmpty, types.KindService, "svc-9", &name)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, types.ProblemPending, p.Status)
	assert.Equal(t, "svc-9", p.AffectedResource.ID)
	assert.Equal(t, "/v1/resource/service/svc-9", p.AffectedResource.Href)
	require.NotNil(t, p.AffectedResource.Name)
	assert.Equal(t, "Fiber 100", *p.AffectedResource.Name)
	db.AssertExpectations(t)
}

func TestProblemRepo_EnsureOpen_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, err := repo.EnsureOpen(context.Background(), types.CategoryPICIncomplete, types.KindService, "svc-1", nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestProblemRepo_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "prob-missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProblem, appErr.Code)
}

func TestProblemRepo_Transition_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Transition(context.Background(), "prob-1", types.ProblemResolved,
		"all fields repaired", "job-3", "patched 3 fields")
	require.NoError(t, err)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, types.ProblemResolved, args[1])
	assert.Equal(t, "all fields repaired", args[3])
	assert.Equal(t, "job-3", args[4])
	assert.Equal(t, "patched 3 fields", args[5])
}

func TestProblemRepo_Transition_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Transition(context.Background(), "prob-missing", types.ProblemHeld, "apply failed", "", "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProblem, appErr.Code)
}

func TestProblemRepo_List(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProblemRepo(db)

	rows := &mockRows{scans: []func(dest ...any) error{
		problemScanFn("prob-1", types.ProblemResolved),
		problemScanFn("prob-2", types.ProblemPending),
	}}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	out, next, err := repo.List(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, next)
	assert.Equal(t, "job-3", out[0].RelatedJobID)
}
