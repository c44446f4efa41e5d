package threads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/config"
)

// Error classes callers branch on. Rate limiting and timeouts are
// transient; everything else the platform rejects is permanent.
var (
	ErrRateLimited   = errors.New("threads: rate limited")
	ErrNotConfigured = errors.New("threads: API credentials are not configured")
)

// Client wraps the Threads Graph API publish flow: create a media
// container, wait for it to finish processing, then publish it.
type Client struct {
	config     *config.ThreadsConfig
	logger     *zap.Logger
	httpClient *http.Client
	apiBase    string
}

func NewClient(cfg *config.ThreadsConfig, logger *zap.Logger) *Client {
	timeout := config.Duration(cfg.Timeout, 120*time.Second)

	return &Client{
		config:     cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		apiBase:    cfg.APIBase,
	}
}

// PostThread publishes one text post and returns the platform-assigned
// thread id. A non-empty replyToID nests the post under that thread, and
// a non-empty linkURL is attached as the post's link attachment. The text
// length ceiling is the caller's responsibility.
func (c *Client) PostThread(ctx context.Context, text, replyToID, linkURL string) (string, error) {
	if !c.config.PostingEnabled {
		mockID := "dryrun-" + uuid.NewString()
		c.logger.Info("Posting disabled, returning dry-run id",
			zap.String("thread_id", mockID),
			zap.String("reply_to_id", replyToID))
		return mockID, nil
	}

	if c.config.Token == "" || c.config.AccountID == "" {
		return "", ErrNotConfigured
	}

	containerID, err := c.createContainer(ctx, text, replyToID, linkURL)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	threadID, err := c.publishContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to publish container: %w", err)
	}

	return threadID, nil
}

// IsTransient reports whether a publish error is worth retrying: rate
// limits, request timeouts and platform 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
