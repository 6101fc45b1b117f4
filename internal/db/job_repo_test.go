package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remedian/internal/types"
)

// jobScanFn fills a job row in jobColumns order. Nullable columns other than
// parent_schedule_id stay NULL.
func jobScanFn(id string, state types.JobState) func(dest ...any) error {
	now := time.Now().UTC()
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = "nightly backfill #3"
		*dest[2].(*types.JobState) = state
		*dest[3].(*types.RemediationCategory) = types.CategoryPICIncomplete
		*dest[4].(*int) = 50
		*dest[5].(*int) = 42
		*dest[6].(*int) = 42
		*dest[7].(*int) = 40
		*dest[8].(*int) = 1
		*dest[9].(*int) = 1
		*dest[10].(*int) = 0
		parent := "sched-1"
		*dest[13].(**string) = &parent
		*dest[14].(*int) = 3
		*dest[16].(*bool) = false
		*dest[17].(*time.Time) = now
		*dest[18].(*time.Time) = now
		return nil
	}
}

func TestJobRepo_Create_Defaults(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	j := &types.BatchJob{
		Name:              "ad-hoc pic repair",
		Category:          types.CategoryPICIncomplete,
		RequestedQuantity: 25,
	}
	err := repo.Create(context.Background(), j)
	require.NoError(t, err)

	assert.NotEmpty(t, j.ID, "id is generated when absent")
	assert.Equal(t, types.JobPending, j.State)
	assert.False(t, j.CreatedAt.IsZero())
	assert.Equal(t, j.CreatedAt, j.UpdatedAt)
	db.AssertExpectations(t)
}

func TestJobRepo_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.BatchJob{Name: "x", Category: types.CategorySolutionEmpty})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestJobRepo_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	row := &mockRow{scanFn: jobScanFn("job-1", types.JobInProgress)}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	j, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, types.JobInProgress, j.State)
	assert.Equal(t, "sched-1", j.ParentScheduleID)
	assert.Equal(t, 42, j.Summary.Total)
	assert.Equal(t, 40, j.Summary.Successful)
	assert.Empty(t, j.LastError, "NULL last_error reads as empty")
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.GetByID(context.Background(), "job-missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepo_List_Pagination(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	rows := &mockRows{scans: []func(dest ...any) error{
		jobScanFn("job-1", types.JobCompleted),
		jobScanFn("job-2", types.JobCompleted),
		jobScanFn("job-3", types.JobCompleted),
	}}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	out, next, err := repo.List(context.Background(), 2, "")
	require.NoError(t, err)
	require.Len(t, out, 2, "extra probe row is trimmed")
	require.NotEmpty(t, next)

	afterID, err := DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, "job-2", afterID, "cursor points at the last returned row")

	// The query asks for one row beyond the page.
	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, 3, args[len(args)-1])
}

func TestJobRepo_List_LastPage(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	rows := &mockRows{scans: []func(dest ...any) error{
		jobScanFn("job-1", types.JobCompleted),
	}}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	out, next, err := repo.List(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Empty(t, next)
}

func TestJobRepo_List_BadCursor(t *testing.T) {
	repo := NewJobRepo(new(mockDBTX))

	_, _, err := repo.List(context.Background(), 10, "%%%")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidCursor, appErr.Code)
}

func TestJobRepo_UpdateState_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateState(context.Background(), "job-missing", types.JobOpen)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepo_UpdateProgress_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	summary := types.JobSummary{Total: 10, Successful: 4, Pending: 6}
	err := repo.UpdateProgress(context.Background(), "job-1", summary, 10, "svc-5", "in_progress")
	require.NoError(t, err)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "job-1", args[0])
	assert.Equal(t, 10, args[1])
	assert.Equal(t, 4, args[3])
	assert.Equal(t, "svc-5", args[7])
}

func TestJobRepo_MarkTerminal_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	summary := types.JobSummary{Total: 10, Successful: 8, Failed: 2}
	err := repo.MarkTerminal(context.Background(), "job-1", types.JobCompleted, summary, 10, "2 items failed")
	require.NoError(t, err)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, types.JobCompleted, args[1])
	assert.Equal(t, "2 items failed", args[8])
}

func TestJobRepo_RequestCancel_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.RequestCancel(context.Background(), "job-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestJobRepo_RequestCancel_AlreadyTerminal(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	// The guarded UPDATE hit nothing but the row exists, so it is terminal.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: jobScanFn("job-1", types.JobCompleted)})

	err := repo.RequestCancel(context.Background(), "job-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictJobState, appErr.Code)
}

func TestJobRepo_RequestCancel_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	err := repo.RequestCancel(context.Background(), "job-missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepo_Delete_RunningJobConflicts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: jobScanFn("job-1", types.JobInProgress)})

	err := repo.Delete(context.Background(), "job-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictJobState, appErr.Code)
	assert.Contains(t, appErr.Message, "terminal")
}

func TestJobRepo_Delete_Terminal(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	err := repo.Delete(context.Background(), "job-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestJobRepo_CancelRequested(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*bool) = true
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	requested, err := repo.CancelRequested(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, requested)
}

func TestJobRepo_CancelRequested_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.CancelRequested(context.Background(), "job-missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepo_List_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepo(db)

	rows := &mockRows{scans: []func(dest ...any) error{
		func(dest ...any) error { return fmt.Errorf("bad column") },
	}}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, _, err := repo.List(context.Background(), 10, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
