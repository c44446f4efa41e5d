package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

type fakeScheduleQueue struct {
	rows      map[string]*models.ScheduledPost
	claimable map[string]bool
	updates   map[string][]map[string]interface{}
	released  []string
}

func newFakeScheduleQueue(rows ...*models.ScheduledPost) *fakeScheduleQueue {
	q := &fakeScheduleQueue{
		rows:      map[string]*models.ScheduledPost{},
		claimable: map[string]bool{},
		updates:   map[string][]map[string]interface{}{},
	}
	for _, row := range rows {
		q.rows[row.ScheduleID] = row
		q.claimable[row.ScheduleID] = true
	}
	return q
}

func (q *fakeScheduleQueue) ListWindow(ctx context.Context, start, end time.Time) ([]models.ScheduledPost, error) {
	var out []models.ScheduledPost
	for _, row := range q.rows {
		if !row.ScheduledAt.Before(start) && row.ScheduledAt.Before(end) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (q *fakeScheduleQueue) FindByID(ctx context.Context, scheduleID string) (*models.ScheduledPost, error) {
	row, ok := q.rows[scheduleID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (q *fakeScheduleQueue) Claim(ctx context.Context, scheduleID string) (bool, error) {
	row := q.rows[scheduleID]
	if row == nil || row.Status != models.ScheduleStatusScheduled || !q.claimable[scheduleID] {
		return false, nil
	}
	row.Status = models.ScheduleStatusProcessing
	return true, nil
}

func (q *fakeScheduleQueue) Release(ctx context.Context, scheduleID string) (bool, error) {
	row := q.rows[scheduleID]
	if row == nil || row.Status != models.ScheduleStatusProcessing {
		return false, nil
	}
	row.Status = models.ScheduleStatusScheduled
	q.released = append(q.released, scheduleID)
	return true, nil
}

func (q *fakeScheduleQueue) UpdateFields(ctx context.Context, scheduleID string, fields map[string]interface{}) error {
	q.updates[scheduleID] = append(q.updates[scheduleID], fields)
	row := q.rows[scheduleID]
	if row == nil {
		return nil
	}
	for key, value := range fields {
		switch key {
		case "status":
			row.Status = value.(string)
		case "error_message":
			row.ErrorMessage = value.(string)
		case "main_thread_id":
			row.MainThreadID = value.(string)
		case "comment1_thread_id":
			row.Comment1ThreadID = value.(string)
		case "comment2_thread_id":
			row.Comment2ThreadID = value.(string)
		}
	}
	return nil
}

func newTestScheduleWorker(queue *fakeScheduleQueue, client ThreadsClient) *ScheduleWorker {
	engine := NewEngine(client, zap.NewNop())
	return NewScheduleWorker(zap.NewNop(), queue, engine, NopNotifier{},
		FixedDelay(0), time.UTC, 10*time.Minute)
}

func duePost(scheduleID string) *models.ScheduledPost {
	return &models.ScheduledPost{
		ScheduleID:  scheduleID,
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      models.ScheduleStatusScheduled,
		MainText:    "main",
		Comment1:    "comment one",
		Comment2:    "comment two",
	}
}

func TestScheduleWorkerPublishesDuePost(t *testing.T) {
	queue := newFakeScheduleQueue(duePost("s1"))
	client := &fakeClient{}
	worker := newTestScheduleWorker(queue, client)

	result, err := worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, "t1", result.PostedThreadID)
	assert.Len(t, client.calls, 3)

	row := queue.rows["s1"]
	assert.Equal(t, models.ScheduleStatusPosted, row.Status)
	assert.Equal(t, "t1", row.MainThreadID)
	assert.Equal(t, "t2", row.Comment1ThreadID)
	assert.Equal(t, "t3", row.Comment2ThreadID)
}

func TestScheduleWorkerIdleWhenNothingDue(t *testing.T) {
	future := duePost("s1")
	future.ScheduledAt = time.Now().Add(time.Hour)
	queue := newFakeScheduleQueue(future)
	worker := newTestScheduleWorker(queue, &fakeClient{})

	result, err := worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestScheduleWorkerSkipsLostClaims(t *testing.T) {
	post := duePost("s1")
	queue := newFakeScheduleQueue(post)
	queue.claimable["s1"] = false // another invocation got there first
	client := &fakeClient{}
	worker := newTestScheduleWorker(queue, client)

	result, err := worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, client.calls)
}

func TestScheduleWorkerResumesAfterCrash(t *testing.T) {
	post := duePost("s1")
	post.MainThreadID = "prev-main"
	post.Comment1ThreadID = "prev-c1"
	queue := newFakeScheduleQueue(post)
	client := &fakeClient{}
	worker := newTestScheduleWorker(queue, client)

	result, err := worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusSucceeded, result.Status)
	// Only the last part was sent, nested under the persisted comment id
	require.Len(t, client.calls, 1)
	assert.Equal(t, "comment two", client.calls[0].Text)
	assert.Equal(t, "prev-c1", client.calls[0].ReplyToID)
}

func TestScheduleWorkerMarksFailureWithPartialProgress(t *testing.T) {
	queue := newFakeScheduleQueue(duePost("s1"))
	client := &fakeClient{failAt: 2}
	worker := newTestScheduleWorker(queue, client)

	result, err := worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusFailed, result.Status)

	row := queue.rows["s1"]
	assert.Equal(t, models.ScheduleStatusFailed, row.Status)
	assert.NotEmpty(t, row.ErrorMessage)
	// The posted main survives for the resume path
	assert.Equal(t, "t1", row.MainThreadID)
	assert.Empty(t, row.Comment1ThreadID)
}

func TestScheduleWorkerRecoversStuckPosts(t *testing.T) {
	stuck := duePost("s1")
	stuck.Status = models.ScheduleStatusProcessing
	stuck.UpdatedAt = time.Now().Add(-time.Hour)

	fresh := duePost("s2")
	fresh.Status = models.ScheduleStatusProcessing
	fresh.UpdatedAt = time.Now()

	queue := newFakeScheduleQueue(stuck, fresh)
	worker := newTestScheduleWorker(queue, &fakeClient{})

	recovered, err := worker.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, []string{"s1"}, queue.released)
	assert.Equal(t, models.ScheduleStatusScheduled, queue.rows["s1"].Status)
	assert.Equal(t, models.ScheduleStatusProcessing, queue.rows["s2"].Status)
}
