package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

type fakeCommentQueue struct {
	due       []models.CommentSchedule
	completed map[string]*models.CommentSchedule // "planID/order" -> row
	marked    map[string][2]string               // scheduleID -> status, detail
}

func newFakeCommentQueue(due ...models.CommentSchedule) *fakeCommentQueue {
	return &fakeCommentQueue{
		due:       due,
		completed: map[string]*models.CommentSchedule{},
		marked:    map[string][2]string{},
	}
}

func (q *fakeCommentQueue) ListDue(ctx context.Context, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]models.CommentSchedule, error) {
	if len(q.due) > limit {
		return q.due[:limit], nil
	}
	return q.due, nil
}

func (q *fakeCommentQueue) MarkCompleted(ctx context.Context, scheduleID, postedThreadID string, executedAt time.Time) error {
	q.marked[scheduleID] = [2]string{models.CommentStatusCompleted, postedThreadID}
	return nil
}

func (q *fakeCommentQueue) MarkFailed(ctx context.Context, scheduleID, errorMessage string, executedAt time.Time) error {
	q.marked[scheduleID] = [2]string{models.CommentStatusFailed, errorMessage}
	return nil
}

func (q *fakeCommentQueue) FindCompleted(ctx context.Context, planID string, order int) (*models.CommentSchedule, error) {
	return q.completed[commentKey(planID, order)], nil
}

func commentKey(planID string, order int) string {
	return planID + "/" + string(rune('0'+order))
}

func newTestCommentExecutor(queue *fakeCommentQueue, client ThreadsClient) *CommentExecutor {
	return NewCommentExecutor(zap.NewNop(), queue, client, time.Minute, 3, 10, 0)
}

func TestCommentExecutorPostsUnderParentThread(t *testing.T) {
	queue := newFakeCommentQueue(models.CommentSchedule{
		ScheduleID:     "c1",
		PlanID:         "plan-1",
		ParentThreadID: "parent-1",
		CommentOrder:   1,
		CommentText:    "follow up",
		Status:         models.CommentStatusPending,
	})
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	batch, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Executed)
	assert.Equal(t, 0, batch.Failed)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "parent-1", client.calls[0].ReplyToID)
	assert.Equal(t, [2]string{models.CommentStatusCompleted, "t1"}, queue.marked["c1"])
}

func TestCommentExecutorResolvesDeeperParentFromCompletedRow(t *testing.T) {
	queue := newFakeCommentQueue(models.CommentSchedule{
		ScheduleID:   "c2",
		PlanID:       "plan-1",
		CommentOrder: 2,
		CommentText:  "second comment",
		Status:       models.CommentStatusPending,
	})
	queue.completed[commentKey("plan-1", 1)] = &models.CommentSchedule{
		ScheduleID:     "c1",
		PostedThreadID: "posted-c1",
	}
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	batch, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Executed)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "posted-c1", client.calls[0].ReplyToID)
}

func TestCommentExecutorFailsWhenParentMissing(t *testing.T) {
	queue := newFakeCommentQueue(models.CommentSchedule{
		ScheduleID:   "c2",
		PlanID:       "plan-1",
		CommentOrder: 2,
		CommentText:  "orphan",
		Status:       models.CommentStatusPending,
	})
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	batch, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Executed)
	assert.Equal(t, 1, batch.Failed)

	assert.Empty(t, client.calls)
	assert.Equal(t, models.CommentStatusFailed, queue.marked["c2"][0])
	assert.Contains(t, queue.marked["c2"][1], "previous comment not found")
}

func TestCommentExecutorRejectsOversizedTextBeforePublishing(t *testing.T) {
	queue := newFakeCommentQueue(models.CommentSchedule{
		ScheduleID:     "c1",
		PlanID:         "plan-1",
		ParentThreadID: "parent-1",
		CommentOrder:   1,
		CommentText:    strings.Repeat("a", models.MaxPostLength+1),
		Status:         models.CommentStatusPending,
	})
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	batch, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Executed)
	assert.Equal(t, 1, batch.Failed)

	assert.Empty(t, client.calls)
	assert.Equal(t, models.CommentStatusFailed, queue.marked["c1"][0])
	assert.Contains(t, queue.marked["c1"][1], "exceeds")
}

func TestCommentExecutorExtractsLinkFromText(t *testing.T) {
	queue := newFakeCommentQueue(models.CommentSchedule{
		ScheduleID:     "c1",
		PlanID:         "plan-1",
		ParentThreadID: "parent-1",
		CommentOrder:   1,
		CommentText:    "details here https://example.com/post",
		Status:         models.CommentStatusPending,
	})
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	_, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "details here", client.calls[0].Text)
	assert.Equal(t, "https://example.com/post", client.calls[0].LinkURL)
}

func TestCommentExecutorIsolatesFailures(t *testing.T) {
	queue := newFakeCommentQueue(
		models.CommentSchedule{
			ScheduleID:   "c-orphan",
			PlanID:       "plan-1",
			CommentOrder: 2,
			CommentText:  "orphan",
			Status:       models.CommentStatusPending,
		},
		models.CommentSchedule{
			ScheduleID:     "c-ok",
			PlanID:         "plan-2",
			ParentThreadID: "parent-2",
			CommentOrder:   1,
			CommentText:    "fine",
			Status:         models.CommentStatusPending,
		},
	)
	client := &fakeClient{}
	executor := newTestCommentExecutor(queue, client)

	batch, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Executed)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, models.CommentStatusCompleted, queue.marked["c-ok"][0])
}

func TestCommentEligibility(t *testing.T) {
	now := time.Now()
	cooldown := time.Minute

	pending := &models.CommentSchedule{Status: models.CommentStatusPending, ScheduledAt: now.Add(-time.Second)}
	assert.True(t, pending.Eligible(now, cooldown, 3))

	future := &models.CommentSchedule{Status: models.CommentStatusPending, ScheduledAt: now.Add(time.Hour)}
	assert.False(t, future.Eligible(now, cooldown, 3))

	retryable := &models.CommentSchedule{
		Status:       models.CommentStatusFailed,
		ScheduledAt:  now.Add(-2 * time.Minute),
		AttemptCount: 2,
	}
	assert.True(t, retryable.Eligible(now, cooldown, 3))

	exhausted := &models.CommentSchedule{
		Status:       models.CommentStatusFailed,
		ScheduledAt:  now.Add(-2 * time.Minute),
		AttemptCount: 3,
	}
	assert.False(t, exhausted.Eligible(now, cooldown, 3))

	tooSoon := &models.CommentSchedule{
		Status:       models.CommentStatusFailed,
		ScheduledAt:  now.Add(-30 * time.Second),
		AttemptCount: 1,
	}
	assert.False(t, tooSoon.Eligible(now, cooldown, 3))

	done := &models.CommentSchedule{Status: models.CommentStatusCompleted, ScheduledAt: now.Add(-time.Hour)}
	assert.False(t, done.Eligible(now, cooldown, 3))
}
