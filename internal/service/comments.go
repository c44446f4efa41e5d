package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
	"github.com/dodokudo/autostudio/pkg/textutil"
)

// ErrParentNotFound marks a comment whose parent was never posted. It is a
// permanent failure: retrying cannot make the parent appear.
var ErrParentNotFound = errors.New("previous comment not found")

// commentQueue is the slice of CommentStore the executor needs.
type commentQueue interface {
	ListDue(ctx context.Context, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]models.CommentSchedule, error)
	MarkCompleted(ctx context.Context, scheduleID, postedThreadID string, executedAt time.Time) error
	MarkFailed(ctx context.Context, scheduleID, errorMessage string, executedAt time.Time) error
	FindCompleted(ctx context.Context, planID string, order int) (*models.CommentSchedule, error)
}

// CommentResult is the outcome of one executed comment row.
type CommentResult struct {
	ScheduleID     string `json:"schedule_id"`
	PlanID         string `json:"plan_id"`
	CommentOrder   int    `json:"comment_order"`
	Status         string `json:"status"`
	PostedThreadID string `json:"posted_thread_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CommentBatchResult summarizes one ExecuteDue invocation.
type CommentBatchResult struct {
	Executed int             `json:"executed"`
	Failed   int             `json:"failed"`
	Total    int             `json:"total"`
	Results  []CommentResult `json:"results"`
}

// CommentExecutor posts standalone follow-up comments whose parent threads
// were published earlier. Rows are independent: one failure never blocks
// the rest of the batch.
type CommentExecutor struct {
	logger       *zap.Logger
	comments     commentQueue
	client       ThreadsClient
	cooldown     time.Duration
	maxAttempts  int
	batchSize    int
	prePostDelay time.Duration
	now          func() time.Time
}

func NewCommentExecutor(logger *zap.Logger, comments commentQueue, client ThreadsClient, cooldown time.Duration, maxAttempts, batchSize int, prePostDelay time.Duration) *CommentExecutor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &CommentExecutor{
		logger:       logger.Named("comments"),
		comments:     comments,
		client:       client,
		cooldown:     cooldown,
		maxAttempts:  maxAttempts,
		batchSize:    batchSize,
		prePostDelay: prePostDelay,
		now:          time.Now,
	}
}

// ExecuteDue posts every due comment, oldest first, up to the batch size.
// Due means pending and past its scheduled time, or failed, past the retry
// cooldown and still under the attempt cap.
func (e *CommentExecutor) ExecuteDue(ctx context.Context) (*CommentBatchResult, error) {
	now := e.now()
	rows, err := e.comments.ListDue(ctx, now, e.cooldown, e.maxAttempts, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due comments: %w", err)
	}

	batch := &CommentBatchResult{Total: len(rows), Results: []CommentResult{}}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		result := e.executeOne(ctx, &rows[i])
		batch.Results = append(batch.Results, *result)
		if result.Status == StatusSucceeded {
			batch.Executed++
		} else {
			batch.Failed++
		}
	}

	e.logger.Info("comment batch completed",
		zap.Int("total", batch.Total),
		zap.Int("executed", batch.Executed),
		zap.Int("failed", batch.Failed))
	return batch, nil
}

func (e *CommentExecutor) executeOne(ctx context.Context, row *models.CommentSchedule) *CommentResult {
	e.logger.Info("executing comment",
		zap.String("schedule_id", row.ScheduleID),
		zap.String("plan_id", row.PlanID),
		zap.Int("comment_order", row.CommentOrder),
		zap.Int("attempt", row.AttemptCount+1))

	if err := row.Validate(); err != nil {
		return e.fail(ctx, row, err)
	}

	parentID, err := e.resolveParent(ctx, row)
	if err != nil {
		return e.fail(ctx, row, err)
	}

	if e.prePostDelay > 0 {
		select {
		case <-ctx.Done():
			return e.fail(ctx, row, ctx.Err())
		case <-time.After(e.prePostDelay):
		}
	}

	text, linkURL := textutil.ExtractURL(row.CommentText)
	threadID, err := e.client.PostThread(ctx, text, parentID, linkURL)
	if err != nil {
		return e.fail(ctx, row, err)
	}

	if err := e.comments.MarkCompleted(ctx, row.ScheduleID, threadID, e.now()); err != nil {
		e.logger.Error("failed to mark comment completed",
			zap.String("schedule_id", row.ScheduleID), zap.Error(err))
	}

	e.logger.Info("comment posted",
		zap.String("schedule_id", row.ScheduleID),
		zap.String("thread_id", threadID))

	return &CommentResult{
		ScheduleID:     row.ScheduleID,
		PlanID:         row.PlanID,
		CommentOrder:   row.CommentOrder,
		Status:         StatusSucceeded,
		PostedThreadID: threadID,
	}
}

// resolveParent finds the thread id this comment replies to. Order 1
// replies to the stored parent thread; deeper orders reply to the
// completed comment one order above for the same plan.
func (e *CommentExecutor) resolveParent(ctx context.Context, row *models.CommentSchedule) (string, error) {
	if row.CommentOrder <= 1 {
		if row.ParentThreadID == "" {
			return "", ErrParentNotFound
		}
		return row.ParentThreadID, nil
	}

	prev, err := e.comments.FindCompleted(ctx, row.PlanID, row.CommentOrder-1)
	if err != nil {
		return "", fmt.Errorf("failed to look up parent comment: %w", err)
	}
	if prev == nil || prev.PostedThreadID == "" {
		return "", ErrParentNotFound
	}
	return prev.PostedThreadID, nil
}

func (e *CommentExecutor) fail(ctx context.Context, row *models.CommentSchedule, cause error) *CommentResult {
	e.logger.Error("comment failed",
		zap.String("schedule_id", row.ScheduleID),
		zap.Int("comment_order", row.CommentOrder),
		zap.Error(cause))

	if err := e.comments.MarkFailed(ctx, row.ScheduleID, cause.Error(), e.now()); err != nil {
		e.logger.Error("failed to mark comment failed",
			zap.String("schedule_id", row.ScheduleID), zap.Error(err))
	}

	return &CommentResult{
		ScheduleID:   row.ScheduleID,
		PlanID:       row.PlanID,
		CommentOrder: row.CommentOrder,
		Status:       StatusFailed,
		Error:        cause.Error(),
	}
}
