// Package taskapi is the JSON-over-HTTP client for the task and
// orchestration services the session controller consumes. Both services are
// opaque to the controller: it only resumes tasks and reads status snapshots.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// TaskService exposes the pause/resume operations of the pipeline's task API
type TaskService interface {
	ResumeTask(ctx context.Context, taskID string, inputs []protocol.SubmittedInput) error
	GetTask(ctx context.Context, taskID string) (*protocol.TaskSnapshot, error)
}

// OrchestrationService exposes execution status snapshots
type OrchestrationService interface {
	GetOrchestration(ctx context.Context, executionID string) (*protocol.OrchestrationSnapshot, error)
}

// Client talks to both services under a single base URL
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a service client. A nil httpc falls back to
// http.DefaultClient.
func NewClient(baseURL string, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		logger:  logger,
	}
}

// ResumeTask submits user-provided inputs for a paused task
func (c *Client) ResumeTask(ctx context.Context, taskID string, inputs []protocol.SubmittedInput) error {
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	body, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return fmt.Errorf("failed to marshal resume inputs: %w", err)
	}

	endpoint := fmt.Sprintf("%s/tasks/%s/resume", c.baseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build resume request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("resuming task", "task_id", taskID, "inputs", len(inputs))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("resume task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("resume task %s: %s", taskID, errorFromResponse(resp))
	}
	return nil
}

// GetTask fetches the current task snapshot
func (c *Client) GetTask(ctx context.Context, taskID string) (*protocol.TaskSnapshot, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}

	endpoint := fmt.Sprintf("%s/tasks/%s", c.baseURL, url.PathEscape(taskID))
	var snap protocol.TaskSnapshot
	if err := c.getJSON(ctx, endpoint, &snap); err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &snap, nil
}

// GetOrchestration fetches the orchestration status snapshot for an execution
func (c *Client) GetOrchestration(ctx context.Context, executionID string) (*protocol.OrchestrationSnapshot, error) {
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}

	endpoint := fmt.Sprintf("%s/orchestrations/%s", c.baseURL, url.PathEscape(executionID))
	var snap protocol.OrchestrationSnapshot
	if err := c.getJSON(ctx, endpoint, &snap); err != nil {
		return nil, fmt.Errorf("get orchestration %s: %w", executionID, err)
	}
	return &snap, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s", errorFromResponse(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorFromResponse extracts the optional {"error": ...} body from a non-2xx
// response, falling back to the HTTP status.
func errorFromResponse(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Error)
		}
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
