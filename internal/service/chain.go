package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/pkg/textutil"
)

// ThreadsClient is the outbound publish call. Satisfied by threads.Client
// and by fakes in tests.
type ThreadsClient interface {
	PostThread(ctx context.Context, text, replyToID, linkURL string) (string, error)
}

// DelayPolicy decides how long to wait before each reply of a chain.
// The main post is never delayed.
type DelayPolicy interface {
	ReplyDelay() time.Duration
}

// FixedDelay waits the same duration before every reply.
type FixedDelay time.Duration

func (d FixedDelay) ReplyDelay() time.Duration { return time.Duration(d) }

// RandomWindow waits a uniformly random duration in [Min, Max] before each
// reply, so machine-scheduled chains read like a person typing. Policy,
// not a technical requirement.
type RandomWindow struct {
	Min time.Duration
	Max time.Duration
}

func (w RandomWindow) ReplyDelay() time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rand.Int63n(int64(w.Max-w.Min)))
}

// ChainItem is one post of an ordered chain. A non-empty ThreadID marks an
// item already published by a previous attempt; the engine skips it and
// threads the next item under it.
type ChainItem struct {
	Text     string
	LinkURL  string
	ThreadID string
}

// ChainError carries how far a failed chain got. Items before Step were
// published and stay published; nothing is rolled back.
type ChainError struct {
	Step int // zero-based index of the failed item
	Err  error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain failed at step %d: %v", e.Step, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// Engine publishes an ordered chain: the first item anchors the thread,
// every later item replies to the immediately preceding item's platform
// id. Strictly sequential; each step needs the previous step's result.
type Engine struct {
	client ThreadsClient
	logger *zap.Logger
}

func NewEngine(client ThreadsClient, logger *zap.Logger) *Engine {
	return &Engine{
		client: client,
		logger: logger,
	}
}

// Publish runs the chain and returns the platform ids in item order.
// onPosted is called right after each successful platform call so the
// caller can persist progress; an error from it aborts the remaining
// steps (the already published items stand, per the partial-chain
// contract). On failure the returned ids cover the completed prefix.
func (e *Engine) Publish(ctx context.Context, items []ChainItem, delay DelayPolicy, onPosted func(step int, threadID string) error) ([]string, error) {
	ids := make([]string, 0, len(items))
	replyToID := ""

	for i, item := range items {
		if item.ThreadID != "" {
			// Already published by a previous attempt
			e.logger.Info("Chain item already posted, skipping",
				zap.Int("step", i),
				zap.String("thread_id", item.ThreadID))
			ids = append(ids, item.ThreadID)
			replyToID = item.ThreadID
			continue
		}

		if i > 0 {
			wait := delay.ReplyDelay()
			if wait > 0 {
				e.logger.Info("Waiting before next reply",
					zap.Int("step", i),
					zap.Duration("delay", wait))
				select {
				case <-ctx.Done():
					return ids, &ChainError{Step: i, Err: ctx.Err()}
				case <-time.After(wait):
				}
			}
		}

		e.logger.Info("Posting chain item",
			zap.Int("step", i),
			zap.String("reply_to_id", replyToID),
			zap.String("preview", textutil.Truncate(item.Text, 50)))

		threadID, err := e.client.PostThread(ctx, item.Text, replyToID, item.LinkURL)
		if err != nil {
			return ids, &ChainError{Step: i, Err: err}
		}

		e.logger.Info("Chain item posted",
			zap.Int("step", i),
			zap.String("thread_id", threadID))

		if onPosted != nil {
			if err := onPosted(i, threadID); err != nil {
				return append(ids, threadID), &ChainError{Step: i, Err: fmt.Errorf("failed to persist progress: %w", err)}
			}
		}

		ids = append(ids, threadID)
		replyToID = threadID
	}

	return ids, nil
}

// RetryingClient retries transient publish failures with a linearly
// growing backoff before giving up. Permanent errors pass through on the
// first attempt.
type RetryingClient struct {
	Inner       ThreadsClient
	Attempts    int
	BaseDelay   time.Duration
	IsTransient func(error) bool
	Logger      *zap.Logger
}

func (r *RetryingClient) PostThread(ctx context.Context, text, replyToID, linkURL string) (string, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		threadID, err := r.Inner.PostThread(ctx, text, replyToID, linkURL)
		if err == nil {
			return threadID, nil
		}
		lastErr = err

		if r.IsTransient != nil && !r.IsTransient(err) {
			return "", err
		}
		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt) * r.BaseDelay
		if r.Logger != nil {
			r.Logger.Warn("Publish attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("retry_in", wait),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", lastErr
}
