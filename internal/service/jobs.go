package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

// jobQueue is the slice of JobStore the worker needs.
type jobQueue interface {
	ClaimNext(ctx context.Context, now time.Time) (*models.Job, error)
	MarkResult(ctx context.Context, jobID, status, postedThreadID, errorMessage string) error
	SetPostedThreadID(ctx context.Context, jobID, threadID string) error
}

type planReader interface {
	FindByID(ctx context.Context, planID string) (*models.Plan, error)
	UpdateStatus(ctx context.Context, planID, status string) error
}

type logAppender interface {
	Append(ctx context.Context, jobID, planID, status, postedThreadID, errorMessage string) error
}

// JobWorker publishes one approved plan per ProcessNext call: it claims the
// oldest due pending job, posts the plan's main text and comment chain, and
// records the terminal outcome on the job, the plan and the posting log.
type JobWorker struct {
	logger   *zap.Logger
	jobs     jobQueue
	plans    planReader
	logs     logAppender
	engine   *Engine
	notifier Notifier
	delay    DelayPolicy
	now      func() time.Time
}

func NewJobWorker(logger *zap.Logger, jobs jobQueue, plans planReader, logs logAppender, engine *Engine, notifier Notifier, delay DelayPolicy) *JobWorker {
	return &JobWorker{
		logger:   logger.Named("jobs"),
		jobs:     jobs,
		plans:    plans,
		logs:     logs,
		engine:   engine,
		notifier: notifier,
		delay:    delay,
		now:      time.Now,
	}
}

func (w *JobWorker) ProcessNext(ctx context.Context) (*UnitResult, error) {
	job, err := w.jobs.ClaimNext(ctx, w.now())
	if err != nil {
		if isStorageConflict(err) {
			// The row stays pending and will be claimed on a later run.
			w.logger.Warn("transient storage conflict while claiming, skipping run", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil, nil
	}

	w.logger.Info("processing job",
		zap.String("job_id", job.JobID),
		zap.String("plan_id", job.PlanID),
		zap.Int("attempt", job.AttemptCount))

	plan, err := w.plans.FindByID(ctx, job.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", job.PlanID, err)
	}
	if plan == nil {
		return w.failJob(ctx, job, "", fmt.Sprintf("plan %s not found", job.PlanID)), nil
	}

	if err := plan.Validate(); err != nil {
		return w.failJob(ctx, job, "", err.Error()), nil
	}

	items := []ChainItem{{Text: plan.MainText, ThreadID: job.PostedThreadID}}
	for _, comment := range plan.Comments.Sorted() {
		items = append(items, ChainItem{Text: comment.Text})
	}

	threadIDs, err := w.engine.Publish(ctx, items, w.delay, func(step int, threadID string) error {
		if step != 0 {
			return nil
		}
		// Persist the anchor immediately so a crash mid-chain cannot
		// repost the main thread on the next attempt.
		if err := w.jobs.SetPostedThreadID(ctx, job.JobID, threadID); err != nil {
			if isStorageConflict(err) {
				w.logger.Warn("transient storage conflict while saving anchor",
					zap.String("job_id", job.JobID), zap.Error(err))
				return nil
			}
			return err
		}
		return nil
	})

	anchorID := job.PostedThreadID
	if len(threadIDs) > 0 && threadIDs[0] != "" {
		anchorID = threadIDs[0]
	}

	if err != nil {
		return w.failJob(ctx, job, anchorID, err.Error()), nil
	}

	if err := w.jobs.MarkResult(ctx, job.JobID, models.JobStatusSucceeded, anchorID, ""); err != nil {
		if !isStorageConflict(err) {
			return nil, fmt.Errorf("failed to mark job %s succeeded: %w", job.JobID, err)
		}
		w.logger.Warn("transient storage conflict while finalizing job",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
	if err := w.plans.UpdateStatus(ctx, job.PlanID, models.PlanStatusScheduled); err != nil {
		w.logger.Error("failed to update plan status after publish",
			zap.String("plan_id", job.PlanID), zap.Error(err))
	}
	if err := w.logs.Append(ctx, job.JobID, job.PlanID, models.JobStatusSucceeded, anchorID, ""); err != nil {
		w.logger.Error("failed to append posting log",
			zap.String("job_id", job.JobID), zap.Error(err))
	}

	w.logger.Info("job succeeded",
		zap.String("job_id", job.JobID),
		zap.String("posted_thread_id", anchorID))

	return &UnitResult{
		UnitID:         job.JobID,
		PlanID:         job.PlanID,
		Status:         StatusSucceeded,
		PostedThreadID: anchorID,
	}, nil
}

func (w *JobWorker) failJob(ctx context.Context, job *models.Job, anchorID, errorMessage string) *UnitResult {
	w.logger.Error("job failed",
		zap.String("job_id", job.JobID),
		zap.String("plan_id", job.PlanID),
		zap.String("error", errorMessage))

	if err := w.jobs.MarkResult(ctx, job.JobID, models.JobStatusFailed, anchorID, errorMessage); err != nil {
		w.logger.Error("failed to mark job failed",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
	if err := w.logs.Append(ctx, job.JobID, job.PlanID, models.JobStatusFailed, anchorID, errorMessage); err != nil {
		w.logger.Error("failed to append posting log",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
	notifyPublishFailure(ctx, w.notifier, "job", job.JobID, job.PlanID, errorMessage)

	return &UnitResult{
		UnitID:         job.JobID,
		PlanID:         job.PlanID,
		Status:         StatusFailed,
		PostedThreadID: anchorID,
		Error:          errorMessage,
	}
}
