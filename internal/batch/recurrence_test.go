package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedian/internal/types"
)

func validSchedule() *types.BatchSchedule {
	return &types.BatchSchedule{
		Name:         "nightly solution backfill",
		IsActive:     true,
		Category:     types.CategorySolutionEmpty,
		Recurrence:   types.RecurrenceDaily,
		WindowStart:  "01:00",
		WindowEnd:    "05:00",
		Timezone:     "UTC",
		MaxBatchSize: 100,
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*types.BatchSchedule)
		wantCode types.ErrorCode
	}{
		{"valid", func(s *types.BatchSchedule) {}, ""},
		{"missing name", func(s *types.BatchSchedule) { s.Name = "" },
			types.ErrCodeValidationMissingField},
		{"unknown category", func(s *types.BatchSchedule) { s.Category = "Bogus" },
			types.ErrCodeValidationInvalidCategory},
		{"unknown recurrence", func(s *types.BatchSchedule) { s.Recurrence = "hourly" },
			types.ErrCodeValidationInvalidRecurrence},
		{"daily with days", func(s *types.BatchSchedule) {
			s.RecurrenceDays = types.Weekdays{time.Monday}
		}, types.ErrCodeValidationInvalidRecurrence},
		{"weekly without days", func(s *types.BatchSchedule) {
			s.Recurrence = types.RecurrenceWeekly
		}, types.ErrCodeValidationInvalidRecurrence},
		{"bad timezone", func(s *types.BatchSchedule) { s.Timezone = "Mars/Olympus" },
			types.ErrCodeValidationInvalidTimezone},
		{"bad window start", func(s *types.BatchSchedule) { s.WindowStart = "25:00" },
			types.ErrCodeValidationInvalidWindow},
		{"inverted window", func(s *types.BatchSchedule) {
			s.WindowStart, s.WindowEnd = "05:00", "01:00"
		}, types.ErrCodeValidationInvalidWindow},
		{"zero batch size", func(s *types.BatchSchedule) { s.MaxBatchSize = 0 },
			types.ErrCodeValidationBatchSize},
		{"oversized batch", func(s *types.BatchSchedule) { s.MaxBatchSize = MaxBatchSizeLimit + 1 },
			types.ErrCodeValidationBatchSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSchedule()
			tt.mutate(s)
			err := ValidateSchedule(s)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestInWindow_InclusiveBounds(t *testing.T) {
	s := validSchedule()

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		name string
		hour int
		min  int
		want bool
	}{
		{"before window", 0, 59, false},
		{"inclusive lower bound", 1, 0, true},
		{"mid window", 3, 30, true},
		{"inclusive upper bound", 5, 0, true},
		{"after window", 5, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := day.Add(time.Duration(tt.hour)*time.Hour + time.Duration(tt.min)*time.Minute)
			in, err := InWindow(s, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, in)
		})
	}
}

func TestInWindow_TimezoneConversion(t *testing.T) {
	s := validSchedule()
	s.Timezone = "Asia/Jakarta" // UTC+7, no DST

	// 19:00 UTC = 02:00 Jakarta, inside the 01:00-05:00 window.
	in, err := InWindow(s, time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, in)

	// 02:00 UTC = 09:00 Jakarta, outside.
	in, err = InWindow(s, time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, in)
}

func TestInWindow_WeekdayGating(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 2, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)

	weekdaysOnly := validSchedule()
	weekdaysOnly.Recurrence = types.RecurrenceWeekdays

	in, err := InWindow(weekdaysOnly, saturday)
	require.NoError(t, err)
	assert.False(t, in, "weekdays pattern skips Saturday")

	in, err = InWindow(weekdaysOnly, monday)
	require.NoError(t, err)
	assert.True(t, in)

	custom := validSchedule()
	custom.Recurrence = types.RecurrenceCustom
	custom.RecurrenceDays = types.Weekdays{time.Saturday}

	in, err = InWindow(custom, saturday)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = InWindow(custom, monday)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestFirstExecution(t *testing.T) {
	s := validSchedule()

	inside := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)
	got, err := FirstExecution(s, inside)
	require.NoError(t, err)
	assert.Equal(t, inside, got, "already inside the window runs immediately")

	after := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	got, err = FirstExecution(s, after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC), got,
		"past today's window rolls to tomorrow's window start")
}

func TestNextAfter_OnceNeverRecurs(t *testing.T) {
	s := validSchedule()
	s.Recurrence = types.RecurrenceOnce

	next, err := NextAfter(s, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextAfter_WeeklySkipsToPermittedDay(t *testing.T) {
	s := validSchedule()
	s.Recurrence = types.RecurrenceWeekly
	s.RecurrenceDays = types.Weekdays{time.Friday}

	// Spawned Wednesday 02:00; next Friday 01:00 is the next due instant.
	now := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)
	next, err := NextAfter(s, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 6, 1, 0, 0, 0, time.UTC), *next)
	assert.Equal(t, time.Friday, next.Weekday())
}

func TestNextAfter_DailyAdvancesOneDay(t *testing.T) {
	s := validSchedule()

	now := time.Date(2026, 3, 4, 1, 30, 0, 0, time.UTC)
	next, err := NextAfter(s, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC), *next,
		"a spawn inside today's window schedules tomorrow's window start")
}
