package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

// scheduleQueue is the slice of ScheduleStore the worker needs.
type scheduleQueue interface {
	ListWindow(ctx context.Context, start, end time.Time) ([]models.ScheduledPost, error)
	FindByID(ctx context.Context, scheduleID string) (*models.ScheduledPost, error)
	Claim(ctx context.Context, scheduleID string) (bool, error)
	Release(ctx context.Context, scheduleID string) (bool, error)
	UpdateFields(ctx context.Context, scheduleID string, fields map[string]interface{}) error
}

// ScheduleWorker publishes self-contained scheduled posts. Each unit is a
// chain of up to three parts whose thread ids are persisted per step, so a
// re-claim after a crash resumes from the last posted part.
type ScheduleWorker struct {
	logger         *zap.Logger
	schedules      scheduleQueue
	engine         *Engine
	notifier       Notifier
	delay          DelayPolicy
	loc            *time.Location
	stuckThreshold time.Duration
	now            func() time.Time
}

func NewScheduleWorker(logger *zap.Logger, schedules scheduleQueue, engine *Engine, notifier Notifier, delay DelayPolicy, loc *time.Location, stuckThreshold time.Duration) *ScheduleWorker {
	return &ScheduleWorker{
		logger:         logger.Named("schedules"),
		schedules:      schedules,
		engine:         engine,
		notifier:       notifier,
		delay:          delay,
		loc:            loc,
		stuckThreshold: stuckThreshold,
		now:            time.Now,
	}
}

// window returns the due scan range: start of the previous local day up to
// now. Posts older than that stay untouched for manual review.
func (w *ScheduleWorker) window() (time.Time, time.Time) {
	now := w.now().In(w.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.loc).AddDate(0, 0, -1)
	return start, now
}

// RecoverStuck releases posts that have sat in processing past the stuck
// threshold, returning them to the claimable pool. Called by the cron
// entrypoint before dispatching.
func (w *ScheduleWorker) RecoverStuck(ctx context.Context) (int, error) {
	start, now := w.window()
	rows, err := w.schedules.ListWindow(ctx, start, now.Add(time.Minute))
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled posts: %w", err)
	}

	recovered := 0
	for i := range rows {
		row := &rows[i]
		if !row.StuckSince(now, w.stuckThreshold) {
			continue
		}
		ok, err := w.schedules.Release(ctx, row.ScheduleID)
		if err != nil {
			return recovered, fmt.Errorf("failed to release stuck post %s: %w", row.ScheduleID, err)
		}
		if ok {
			recovered++
			w.logger.Warn("recovered stuck scheduled post",
				zap.String("schedule_id", row.ScheduleID),
				zap.Time("updated_at", row.UpdatedAt))
		}
	}
	return recovered, nil
}

func (w *ScheduleWorker) ProcessNext(ctx context.Context) (*UnitResult, error) {
	start, now := w.window()
	rows, err := w.schedules.ListWindow(ctx, start, now)
	if err != nil {
		if isStorageConflict(err) {
			w.logger.Warn("transient storage conflict while listing, skipping run", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list scheduled posts: %w", err)
	}

	for i := range rows {
		row := &rows[i]
		if !row.Due(now) {
			continue
		}

		claimed, err := w.schedules.Claim(ctx, row.ScheduleID)
		if err != nil {
			if isStorageConflict(err) {
				w.logger.Warn("transient storage conflict while claiming",
					zap.String("schedule_id", row.ScheduleID), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("failed to claim scheduled post %s: %w", row.ScheduleID, err)
		}
		if !claimed {
			// Lost the race to a concurrent invocation
			continue
		}

		// Reload after the claim so resume state reflects any progress a
		// crashed invocation persisted.
		fresh, err := w.schedules.FindByID(ctx, row.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload scheduled post %s: %w", row.ScheduleID, err)
		}
		if fresh == nil {
			continue
		}
		return w.execute(ctx, fresh), nil
	}

	return nil, nil
}

// threadIDColumns maps chain step index to the persisted column, in
// chain order.
var threadIDColumns = []string{"main_thread_id", "comment1_thread_id", "comment2_thread_id"}

func (w *ScheduleWorker) execute(ctx context.Context, post *models.ScheduledPost) *UnitResult {
	w.logger.Info("processing scheduled post",
		zap.String("schedule_id", post.ScheduleID),
		zap.Time("scheduled_at", post.ScheduledAt),
		zap.Bool("resuming", post.MainThreadID != ""))

	if err := post.Validate(); err != nil {
		return w.fail(ctx, post, err.Error())
	}

	items := []ChainItem{{Text: post.MainText, ThreadID: post.MainThreadID}}
	if post.Comment1 != "" {
		items = append(items, ChainItem{Text: post.Comment1, ThreadID: post.Comment1ThreadID})
	}
	if post.Comment2 != "" {
		items = append(items, ChainItem{Text: post.Comment2, ThreadID: post.Comment2ThreadID})
	}

	_, err := w.engine.Publish(ctx, items, w.delay, func(step int, threadID string) error {
		if step >= len(threadIDColumns) {
			return nil
		}
		if err := w.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
			threadIDColumns[step]: threadID,
		}); err != nil {
			if isStorageConflict(err) {
				w.logger.Warn("transient storage conflict while saving thread id",
					zap.String("schedule_id", post.ScheduleID),
					zap.Int("step", step), zap.Error(err))
				return nil
			}
			return err
		}
		switch step {
		case 0:
			post.MainThreadID = threadID
		case 1:
			post.Comment1ThreadID = threadID
		case 2:
			post.Comment2ThreadID = threadID
		}
		return nil
	})
	if err != nil {
		return w.fail(ctx, post, err.Error())
	}

	if err := w.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
		"status":        models.ScheduleStatusPosted,
		"error_message": "",
	}); err != nil {
		w.logger.Error("failed to mark scheduled post as posted",
			zap.String("schedule_id", post.ScheduleID), zap.Error(err))
	}

	w.logger.Info("scheduled post published",
		zap.String("schedule_id", post.ScheduleID),
		zap.String("main_thread_id", post.MainThreadID))

	return &UnitResult{
		UnitID:         post.ScheduleID,
		PlanID:         post.PlanID,
		Status:         StatusSucceeded,
		PostedThreadID: post.MainThreadID,
	}
}

func (w *ScheduleWorker) fail(ctx context.Context, post *models.ScheduledPost, errorMessage string) *UnitResult {
	w.logger.Error("scheduled post failed",
		zap.String("schedule_id", post.ScheduleID),
		zap.String("error", errorMessage))

	if err := w.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
		"status":        models.ScheduleStatusFailed,
		"error_message": errorMessage,
	}); err != nil {
		w.logger.Error("failed to mark scheduled post as failed",
			zap.String("schedule_id", post.ScheduleID), zap.Error(err))
	}
	notifyPublishFailure(ctx, w.notifier, "scheduled post", post.ScheduleID, post.PlanID, errorMessage)

	return &UnitResult{
		UnitID:         post.ScheduleID,
		PlanID:         post.PlanID,
		Status:         StatusFailed,
		PostedThreadID: post.MainThreadID,
		Error:          errorMessage,
	}
}
