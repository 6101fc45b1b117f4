// Package batch implements the job execution state machine: schedule
// recurrence math, candidate enumeration, the bounded worker pool, and
// summary accounting.
package batch

import (
	"fmt"
	"time"

	"remedian/internal/types"
)

// MaxBatchSizeLimit caps how many items one job may request, keeping a single
// run bounded regardless of how many candidates the criteria match.
const MaxBatchSizeLimit = 500

// parseClock parses an "HH:MM" wall-clock string into minutes past midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// ValidateSchedule checks the structural invariants of a schedule definition.
// Window bounds are wall-clock times within one day; the recurrence day set
// is required exactly when the pattern calls for it.
func ValidateSchedule(s *types.BatchSchedule) error {
	if s.Name == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "schedule name is required", nil)
	}
	if !s.Category.Valid() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidCategory,
			fmt.Sprintf("unknown remediation category %q", s.Category),
			nil,
		)
	}
	if !s.Recurrence.Valid() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidRecurrence,
			fmt.Sprintf("unknown recurrence pattern %q", s.Recurrence),
			nil,
		)
	}
	if s.Recurrence.RequiresDays() != (len(s.RecurrenceDays) > 0) {
		return types.NewAppError(
			types.ErrCodeValidationInvalidRecurrence,
			fmt.Sprintf("recurrence days must be set for %s patterns and only for them", s.Recurrence),
			nil,
		)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("unknown timezone %q", s.Timezone),
			err,
		)
	}
	start, err := parseClock(s.WindowStart)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidWindow, "invalid window start", err)
	}
	end, err := parseClock(s.WindowEnd)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidWindow, "invalid window end", err)
	}
	if start >= end {
		return types.NewAppError(
			types.ErrCodeValidationInvalidWindow,
			"execution window start must precede window end",
			nil,
		)
	}
	if s.MaxBatchSize <= 0 || s.MaxBatchSize > MaxBatchSizeLimit {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			fmt.Sprintf("max batch size must be between 1 and %d", MaxBatchSizeLimit),
			nil,
			map[string]any{"max_batch_size": s.MaxBatchSize},
		)
	}
	return nil
}

// dayAllowed reports whether the recurrence pattern permits spawning on the
// weekday of t (already in the schedule's timezone).
func dayAllowed(s *types.BatchSchedule, t time.Time) bool {
	switch s.Recurrence {
	case types.RecurrenceWeekdays:
		wd := t.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case types.RecurrenceWeekly, types.RecurrenceCustom:
		return s.RecurrenceDays.Contains(t.Weekday())
	default:
		return true
	}
}

// InWindow reports whether t falls inside the schedule's execution window on
// a permitted weekday. The window is inclusive at both bounds.
func InWindow(s *types.BatchSchedule, t time.Time) (bool, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidTimezone, "unknown timezone", err)
	}
	local := t.In(loc)
	if !dayAllowed(s, local) {
		return false, nil
	}
	start, err := parseClock(s.WindowStart)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidWindow, "invalid window start", err)
	}
	end, err := parseClock(s.WindowEnd)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidWindow, "invalid window end", err)
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= start && minutes <= end, nil
}

// FirstExecution returns the earliest instant at or after now at which the
// schedule can become due: now itself when it already sits inside the window
// on a permitted day, otherwise the next permitted window start.
func FirstExecution(s *types.BatchSchedule, now time.Time) (time.Time, error) {
	in, err := InWindow(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if in {
		return now.UTC(), nil
	}
	return nextWindowStart(s, now)
}

// NextAfter returns the next due instant strictly after a spawn at now, or
// nil for one-shot schedules, which never recur.
func NextAfter(s *types.BatchSchedule, now time.Time) (*time.Time, error) {
	if s.Recurrence == types.RecurrenceOnce {
		return nil, nil
	}
	next, err := nextWindowStart(s, now)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// nextWindowStart finds the first window-start instant strictly after now on
// a weekday the pattern permits.
func nextWindowStart(s *types.BatchSchedule, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidTimezone, "unknown timezone", err)
	}
	start, err := parseClock(s.WindowStart)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidWindow, "invalid window start", err)
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), start/60, start%60, 0, 0, loc)
	// At most a week of day advances satisfies every pattern; 8 covers the
	// same-day skip as well.
	for i := 0; i < 8; i++ {
		if candidate.After(now) && dayAllowed(s, candidate) {
			return candidate.UTC(), nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return time.Time{}, types.NewAppError(
		types.ErrCodeValidationInvalidRecurrence,
		"recurrence pattern yields no future execution",
		nil,
	)
}
