package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	containerPollAttempts = 10
	containerPollInterval = 2 * time.Second
)

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("threads API returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) request(ctx context.Context, method, path string, params map[string]string, body map[string]any) (map[string]any, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s", c.apiBase, path))
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL: %w", err)
	}

	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("access_token", c.config.Token)
	u.RawQuery = query.Encode()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var response map[string]any
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response, nil
}

func (c *Client) createContainer(ctx context.Context, text, replyToID, linkURL string) (string, error) {
	body := map[string]any{
		"text":       text,
		"media_type": "TEXT",
	}
	if replyToID != "" {
		body["reply_to_id"] = replyToID
	}
	if linkURL != "" {
		body["link_attachment"] = linkURL
	}

	response, err := c.request(ctx, http.MethodPost, c.config.AccountID+"/threads", nil, body)
	if err != nil {
		return "", err
	}

	id, ok := response["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("container response missing id")
	}
	return id, nil
}

// waitForContainer polls the container until the platform reports it
// finished processing.
func (c *Client) waitForContainer(ctx context.Context, containerID string) error {
	for i := 0; i < containerPollAttempts; i++ {
		response, err := c.request(ctx, http.MethodGet, containerID, map[string]string{
			"fields": "status,error_message",
		}, nil)
		if err != nil {
			return err
		}

		switch response["status"] {
		case "ERROR":
			message, _ := response["error_message"].(string)
			if message == "" {
				message = "container creation failed"
			}
			return fmt.Errorf("container %s failed: %s", containerID, message)
		case "FINISHED":
			return nil
		}

		c.logger.Debug("Waiting for container",
			zap.String("container_id", containerID),
			zap.Int("attempt", i+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containerPollInterval):
		}
	}

	return fmt.Errorf("timed out waiting for container %s", containerID)
}

func (c *Client) publishContainer(ctx context.Context, containerID string) (string, error) {
	response, err := c.request(ctx, http.MethodPost, c.config.AccountID+"/threads_publish", map[string]string{
		"creation_id": containerID,
	}, nil)
	if err != nil {
		return "", err
	}

	if id, ok := response["id"].(string); ok && id != "" {
		return id, nil
	}

	// The publish call can return before processing finishes; wait and
	// fetch the id from the container itself.
	if err := c.waitForContainer(ctx, containerID); err != nil {
		return "", err
	}

	response, err = c.request(ctx, http.MethodGet, containerID, map[string]string{"fields": "id"}, nil)
	if err != nil {
		return "", err
	}

	id, ok := response["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("published container %s missing id", containerID)
	}
	return id, nil
}
