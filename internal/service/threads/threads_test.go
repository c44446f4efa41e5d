package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/config"
)

func TestPostThreadDryRun(t *testing.T) {
	client := NewClient(&config.ThreadsConfig{PostingEnabled: false}, zap.NewNop())

	id, err := client.PostThread(context.Background(), "hello", "", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dryrun-"))

	// Dry-run ids are unique per call
	id2, err := client.PostThread(context.Background(), "hello", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestPostThreadRequiresCredentials(t *testing.T) {
	client := NewClient(&config.ThreadsConfig{PostingEnabled: true}, zap.NewNop())

	_, err := client.PostThread(context.Background(), "hello", "", "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrRateLimited))
	assert.True(t, IsTransient(fmt.Errorf("publish: %w", ErrRateLimited)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&APIError{StatusCode: 500, Body: "server error"}))
	assert.True(t, IsTransient(&APIError{StatusCode: 503, Body: "unavailable"}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400, Body: "text too long"}))
	assert.False(t, IsTransient(&APIError{StatusCode: 403, Body: "forbidden"}))
	assert.False(t, IsTransient(errors.New("something else")))
}
