// Package client provides a REST client for the Unica server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/unicahq/unica-go/internal/chat"
	"github.com/unicahq/unica-go/internal/models"
)

// Client talks to the Unica gateway.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses UNICA_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via UNICA_CLIENT_TIMEOUT env var (default 10m, chat
// replies can take a while).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("UNICA_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("UNICA_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the configured server URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type errorBody struct {
	Error string `json:"error"`
}

// do sends one JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error (%s): %s", resp.Status, e.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// StartIndexing starts an indexing run for a knowledge base.
func (c *Client) StartIndexing(ctx context.Context, workspaceID, baseID string, mode models.IndexMode) (*models.IndexingJob, error) {
	path := fmt.Sprintf("/api/workspaces/%s/bases/%s/indexing",
		url.PathEscape(workspaceID), url.PathEscape(baseID))
	var job models.IndexingJob
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"mode": mode}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PauseIndexing requests a pause; observed at the run's next checkpoint.
func (c *Client) PauseIndexing(ctx context.Context, actionID string) (*models.IndexingJob, error) {
	return c.jobOp(ctx, actionID, "pause")
}

// ResumeIndexing reactivates a paused run.
func (c *Client) ResumeIndexing(ctx context.Context, actionID string) (*models.IndexingJob, error) {
	return c.jobOp(ctx, actionID, "resume")
}

// CancelIndexing requests cancellation.
func (c *Client) CancelIndexing(ctx context.Context, actionID string) (*models.IndexingJob, error) {
	return c.jobOp(ctx, actionID, "cancel")
}

func (c *Client) jobOp(ctx context.Context, actionID, op string) (*models.IndexingJob, error) {
	var job models.IndexingJob
	path := fmt.Sprintf("/api/indexing/%s/%s", url.PathEscape(actionID), op)
	if err := c.do(ctx, http.MethodPost, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a single job's status.
func (c *Client) GetJob(ctx context.Context, actionID string) (*models.IndexingJob, error) {
	var job models.IndexingJob
	path := "/api/indexing/" + url.PathEscape(actionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ActiveJobs lists a workspace's in-flight runs.
func (c *Client) ActiveJobs(ctx context.Context, workspaceID string) ([]models.IndexingJob, error) {
	var jobs []models.IndexingJob
	path := fmt.Sprintf("/api/workspaces/%s/indexing/active", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// JobHistory lists a base's past runs, most recent first.
func (c *Client) JobHistory(ctx context.Context, baseID string, limit int) ([]models.IndexingJob, error) {
	var jobs []models.IndexingJob
	path := fmt.Sprintf("/api/bases/%s/indexing/history?limit=%d", url.PathEscape(baseID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ChatContext fetches the context pack of a chat. budget 0 uses the server
// default.
func (c *Client) ChatContext(ctx context.Context, chatID string, budget int) (*chat.Pack, error) {
	path := "/api/chats/" + url.PathEscape(chatID) + "/context"
	if budget > 0 {
		path += fmt.Sprintf("?budget=%d", budget)
	}
	var pack chat.Pack
	if err := c.do(ctx, http.MethodGet, path, nil, &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// SendMessage appends a user message and returns the full exchange.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*chat.Exchange, error) {
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages"
	var exchange chat.Exchange
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &exchange); err != nil {
		return nil, err
	}
	return &exchange, nil
}

// Stats fetches gateway introspection data.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Health checks server reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
