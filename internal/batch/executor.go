package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"remedian/internal/types"
)

// CandidateSource enumerates the work items a job will process.
type CandidateSource interface {
	Enumerate(ctx context.Context, category types.RemediationCategory, criteria types.SelectionCriteria, limit int) ([]types.WorkItem, error)
}

// ItemProcessor runs the full patch pipeline for one work item.
type ItemProcessor interface {
	Run(ctx context.Context, jobID string, item types.WorkItem) types.ItemResult
}

// JobStore is the slice of the job repository the executor mutates. The
// executor is the job's single writer while it runs.
type JobStore interface {
	UpdateState(ctx context.Context, id string, state types.JobState) error
	UpdateProgress(ctx context.Context, id string, summary types.JobSummary, actualQuantity int, currentItemID, currentItemState string) error
	MarkTerminal(ctx context.Context, id string, state types.JobState, summary types.JobSummary, actualQuantity int, lastError string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// Executor drives one BatchJob through its lifecycle: enumerate candidates,
// fan items out to a bounded worker pool, aggregate outcomes, settle the
// terminal state.
type Executor struct {
	jobs        JobStore
	source      CandidateSource
	processor   ItemProcessor
	logger      *slog.Logger
	concurrency int64
	itemTimeout time.Duration
}

// NewExecutor builds an Executor. concurrency bounds in-flight items per
// job; itemTimeout bounds one item's pipeline run.
func NewExecutor(jobs JobStore, source CandidateSource, processor ItemProcessor, logger *slog.Logger, concurrency int, itemTimeout time.Duration) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		jobs:        jobs,
		source:      source,
		processor:   processor,
		logger:      logger,
		concurrency: int64(concurrency),
		itemTimeout: itemTimeout,
	}
}

// StartJob launches job execution in the background. Used by the run-now
// create path, where the request returns immediately with the pending job.
func (e *Executor) StartJob(job *types.BatchJob) {
	go func() {
		if err := e.Execute(context.Background(), job, nil); err != nil {
			e.logger.Error("job execution failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Execute runs the job to a terminal state. Item failures are absorbed into
// the summary; only batch-level faults (enumeration failure) return an error
// and fail the job.
func (e *Executor) Execute(ctx context.Context, job *types.BatchJob, criteria types.SelectionCriteria) error {
	log := e.logger.With(slog.String("job_id", job.ID), slog.String("category", string(job.Category)))

	if err := e.jobs.UpdateState(ctx, job.ID, types.JobOpen); err != nil {
		return err
	}

	items, err := e.source.Enumerate(ctx, job.Category, criteria, job.RequestedQuantity)
	if err != nil {
		log.Error("enumeration failed", slog.String("error", err.Error()))
		summary := types.JobSummary{}
		if termErr := e.jobs.MarkTerminal(ctx, job.ID, types.JobFailed, summary, 0, err.Error()); termErr != nil {
			log.Error("failed to settle job", slog.String("error", termErr.Error()))
		}
		return err
	}

	summary := types.JobSummary{Total: len(items), Pending: len(items)}
	if err := e.jobs.UpdateProgress(ctx, job.ID, summary, 0, "", ""); err != nil {
		return err
	}
	if err := e.jobs.UpdateState(ctx, job.ID, types.JobInProgress); err != nil {
		return err
	}
	log.Info("job started", slog.Int("candidates", len(items)))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		actual    int
		lastError string
		cancelled bool
	)
	sem := semaphore.NewWeighted(e.concurrency)

	for _, item := range items {
		// Cancellation is cooperative: the flag is observed between items,
		// never mid-pipeline. Items already dispatched run to completion.
		requested, err := e.jobs.CancelRequested(ctx, job.ID)
		if err != nil {
			log.Warn("failed to read cancellation flag", slog.String("error", err.Error()))
		}
		if requested {
			cancelled = true
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled = true
			break
		}
		wg.Add(1)
		go func(item types.WorkItem) {
			defer wg.Done()
			defer sem.Release(1)

			result := e.runItem(ctx, job.ID, item)

			mu.Lock()
			defer mu.Unlock()
			actual++
			summary.Pending--
			switch result.Outcome.SummaryBucket() {
			case types.SummarySuccessful:
				summary.Successful++
			case types.SummaryFailed:
				summary.Failed++
				lastError = result.Err
			default:
				summary.Skipped++
			}
			if err := e.jobs.UpdateProgress(ctx, job.ID, summary, actual, item.ResourceID, string(result.Outcome)); err != nil {
				log.Warn("failed to record progress", slog.String("error", err.Error()))
			}
		}(item)
	}
	wg.Wait()

	state := types.JobCompleted
	if cancelled {
		state = types.JobCancelled
	}
	if err := e.jobs.MarkTerminal(ctx, job.ID, state, summary, actual, lastError); err != nil {
		log.Error("failed to settle job", slog.String("error", err.Error()))
		return err
	}
	log.Info("job finished",
		slog.String("state", string(state)),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("pending", summary.Pending),
	)
	return nil
}

// runItem executes one item under the per-item timeout. A timeout is that
// item's failure, never a batch-level fault.
func (e *Executor) runItem(ctx context.Context, jobID string, item types.WorkItem) types.ItemResult {
	itemCtx := ctx
	var cancel context.CancelFunc
	if e.itemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, e.itemTimeout)
		defer cancel()
	}

	result := e.processor.Run(itemCtx, jobID, item)
	if result.Outcome == types.OutcomeFailed && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
		result.Err = string(types.ErrCodePipelineItemTimeout) + ": item processing exceeded the per-item timeout"
	}
	return result
}
