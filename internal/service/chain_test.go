package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	calls  []fakeCall
	ids    []string
	failAt int // 1-based call number that fails, 0 means never
	err    error
}

type fakeCall struct {
	Text      string
	ReplyToID string
	LinkURL   string
}

func (f *fakeClient) PostThread(ctx context.Context, text, replyToID, linkURL string) (string, error) {
	f.calls = append(f.calls, fakeCall{Text: text, ReplyToID: replyToID, LinkURL: linkURL})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("boom")
	}
	id := fmt.Sprintf("t%d", len(f.calls))
	f.ids = append(f.ids, id)
	return id, nil
}

func TestEnginePublishOrdering(t *testing.T) {
	client := &fakeClient{}
	engine := NewEngine(client, zap.NewNop())

	items := []ChainItem{
		{Text: "main"},
		{Text: "first reply"},
		{Text: "second reply"},
	}

	ids, err := engine.Publish(context.Background(), items, FixedDelay(0), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2", "t3"}, ids)

	// Each reply nests under the immediately preceding post
	require.Len(t, client.calls, 3)
	assert.Equal(t, "", client.calls[0].ReplyToID)
	assert.Equal(t, "t1", client.calls[1].ReplyToID)
	assert.Equal(t, "t2", client.calls[2].ReplyToID)
}

func TestEnginePublishStopsAtFirstFailure(t *testing.T) {
	client := &fakeClient{failAt: 2}
	engine := NewEngine(client, zap.NewNop())

	items := []ChainItem{{Text: "main"}, {Text: "r1"}, {Text: "r2"}}

	ids, err := engine.Publish(context.Background(), items, FixedDelay(0), nil)
	require.Error(t, err)

	// The published prefix stands, nothing after the failure was attempted
	assert.Equal(t, []string{"t1"}, ids)
	assert.Len(t, client.calls, 2)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 1, chainErr.Step)
}

func TestEnginePublishResumesFromPersistedProgress(t *testing.T) {
	client := &fakeClient{}
	engine := NewEngine(client, zap.NewNop())

	// Main was already posted by a crashed attempt
	items := []ChainItem{
		{Text: "main", ThreadID: "prev-main"},
		{Text: "r1"},
	}

	ids, err := engine.Publish(context.Background(), items, FixedDelay(0), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"prev-main", "t1"}, ids)

	// Only the reply was sent, nested under the persisted id
	require.Len(t, client.calls, 1)
	assert.Equal(t, "prev-main", client.calls[0].ReplyToID)
}

func TestEnginePublishOnPostedCallback(t *testing.T) {
	client := &fakeClient{}
	engine := NewEngine(client, zap.NewNop())

	var posted []string
	_, err := engine.Publish(context.Background(),
		[]ChainItem{{Text: "main"}, {Text: "r1"}}, FixedDelay(0),
		func(step int, threadID string) error {
			posted = append(posted, fmt.Sprintf("%d:%s", step, threadID))
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"0:t1", "1:t2"}, posted)
}

func TestEnginePublishAbortsWhenPersistenceFails(t *testing.T) {
	client := &fakeClient{}
	engine := NewEngine(client, zap.NewNop())

	_, err := engine.Publish(context.Background(),
		[]ChainItem{{Text: "main"}, {Text: "r1"}}, FixedDelay(0),
		func(step int, threadID string) error {
			return errors.New("db down")
		})
	require.Error(t, err)

	// The main post went out before persistence failed; no reply followed
	assert.Len(t, client.calls, 1)
}

type flakyClient struct {
	calls int
	failN int
	err   error
}

func (f *flakyClient) PostThread(ctx context.Context, text, replyToID, linkURL string) (string, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", f.err
	}
	return "ok", nil
}

func TestRetryingClientRetriesTransientErrors(t *testing.T) {
	inner := &flakyClient{failN: 2, err: errors.New("rate limited")}
	client := &RetryingClient{
		Inner:       inner,
		Attempts:    3,
		BaseDelay:   time.Millisecond,
		IsTransient: func(error) bool { return true },
	}

	id, err := client.PostThread(context.Background(), "x", "", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", id)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClientGivesUpAfterAttempts(t *testing.T) {
	inner := &flakyClient{failN: 10, err: errors.New("rate limited")}
	client := &RetryingClient{
		Inner:       inner,
		Attempts:    3,
		BaseDelay:   time.Millisecond,
		IsTransient: func(error) bool { return true },
	}

	_, err := client.PostThread(context.Background(), "x", "", "")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClientDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyClient{failN: 10, err: errors.New("text too long")}
	client := &RetryingClient{
		Inner:       inner,
		Attempts:    3,
		BaseDelay:   time.Millisecond,
		IsTransient: func(error) bool { return false },
	}

	_, err := client.PostThread(context.Background(), "x", "", "")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRandomWindowStaysInBounds(t *testing.T) {
	w := RandomWindow{Min: 30 * time.Second, Max: 90 * time.Second}
	for i := 0; i < 100; i++ {
		d := w.ReplyDelay()
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 90*time.Second)
	}
}
