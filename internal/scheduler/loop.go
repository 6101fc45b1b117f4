// Package scheduler contains the control loop that turns due batch
// schedules into running jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remedian/internal/batch"
	"remedian/internal/types"
)

// ScheduleStore is the slice of the schedule repository the loop drives.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*types.BatchSchedule, error)
	RecordSpawn(ctx context.Context, id string, jobID string, next *time.Time, deactivate bool) error
	RecordOutcome(ctx context.Context, id string, success bool) error
	SetActive(ctx context.Context, id string, active bool, next *time.Time) error
}

// JobStore creates and re-reads job records.
type JobStore interface {
	Create(ctx context.Context, j *types.BatchJob) error
	GetByID(ctx context.Context, id string) (*types.BatchJob, error)
}

// JobRunner executes one job to a terminal state.
type JobRunner interface {
	Execute(ctx context.Context, job *types.BatchJob, criteria types.SelectionCriteria) error
}

// ControlLoop polls for due schedules on a fixed interval and spawns one job
// per due schedule. Ticks are serialized by construction: the loop runs each
// tick to completion before waiting for the next, so a slow tick delays the
// following one rather than double-spawning.
type ControlLoop struct {
	schedules ScheduleStore
	jobs      JobStore
	runner    JobRunner
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewControlLoop builds the loop.
func NewControlLoop(schedules ScheduleStore, jobs JobStore, runner JobRunner, logger *slog.Logger, interval time.Duration) *ControlLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlLoop{
		schedules: schedules,
		jobs:      jobs,
		runner:    runner,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Run blocks until the context is cancelled, evaluating all schedules once
// per interval.
func (l *ControlLoop) Run(ctx context.Context) {
	l.logger.Info("control loop started", slog.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick evaluates every due schedule once.
func (l *ControlLoop) Tick(ctx context.Context) {
	now := l.now().UTC()
	due, err := l.schedules.ListDue(ctx, now)
	if err != nil {
		l.logger.Error("failed to list due schedules", slog.String("error", err.Error()))
		return
	}

	for _, s := range due {
		l.evaluate(ctx, s, now)
	}
}

// evaluate spawns a job for one due schedule, or pushes its next execution
// forward when the current instant falls outside the execution window.
func (l *ControlLoop) evaluate(ctx context.Context, s *types.BatchSchedule, now time.Time) {
	log := l.logger.With(slog.String("schedule_id", s.ID), slog.String("schedule", s.Name))

	in, err := batch.InWindow(s, now)
	if err != nil {
		log.Error("schedule has an invalid window", slog.String("error", err.Error()))
		return
	}
	if !in {
		// Due by timestamp but outside the window (a tick arrived late, or a
		// weekday gate moved). Reschedule without spawning.
		next, err := batch.NextAfter(s, now)
		if err != nil {
			log.Error("failed to reschedule", slog.String("error", err.Error()))
			return
		}
		deactivate := next == nil
		if err := l.schedules.SetActive(ctx, s.ID, !deactivate && s.IsActive, next); err != nil {
			log.Error("failed to push schedule forward", slog.String("error", err.Error()))
		}
		return
	}

	job := &types.BatchJob{
		Name:              fmt.Sprintf("%s #%d", s.Name, s.TotalExecutions+1),
		State:             types.JobPending,
		Category:          s.Category,
		RequestedQuantity: s.MaxBatchSize,
		ParentScheduleID:  s.ID,
		ExecutionNumber:   s.TotalExecutions + 1,
	}
	if err := l.jobs.Create(ctx, job); err != nil {
		log.Error("failed to create job", slog.String("error", err.Error()))
		return
	}

	next, err := batch.NextAfter(s, now)
	if err != nil {
		log.Error("failed to compute next execution", slog.String("error", err.Error()))
		return
	}
	// Bookkeeping lands before execution: a slow run cannot leave the
	// schedule due and double-spawn on the next tick. One-shot schedules
	// deactivate here, after exactly one spawn.
	if err := l.schedules.RecordSpawn(ctx, s.ID, job.ID, next, next == nil); err != nil {
		log.Error("failed to record spawn", slog.String("error", err.Error()))
		return
	}
	log.Info("job spawned", slog.String("job_id", job.ID), slog.Int("execution", job.ExecutionNumber))

	if err := l.runner.Execute(ctx, job, s.SelectionCriteria); err != nil {
		l.settle(ctx, s.ID, job.ID, log)
		return
	}
	l.settle(ctx, s.ID, job.ID, log)
}

// settle folds the job's terminal summary into the schedule's counters. The
// execution counts as successful only when no item failed.
func (l *ControlLoop) settle(ctx context.Context, scheduleID, jobID string, log *slog.Logger) {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.Error("failed to re-read job for settlement", slog.String("error", err.Error()))
		return
	}
	success := job.State == types.JobCompleted && job.Summary.Failed == 0
	if err := l.schedules.RecordOutcome(ctx, scheduleID, success); err != nil {
		log.Error("failed to record schedule outcome", slog.String("error", err.Error()))
	}
}
