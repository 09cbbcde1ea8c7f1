package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"whisperq/internal/config"
	"whisperq/internal/logging"
)

// ProgressSnapshot is the polled view of a task's progress, used to
// resynchronize after a live subscription (re)connects.
type ProgressSnapshot struct {
	TaskID     string `json:"task_id"`
	Stage      string `json:"stage"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// Segment is one transcribed span with second-resolution timestamps.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Result is the completed transcription payload.
type Result struct {
	Language string    `json:"language"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Task is the full task record returned by the service.
type Task struct {
	Identifier string  `json:"identifier"`
	Status     string  `json:"status"`
	Error      string  `json:"error"`
	Result     *Result `json:"result"`
}

// NotFoundError reports that the service does not know the task.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// Client talks to the task endpoints of the transcription service.
// Requests retry transient failures transparently; callers see only the
// final outcome.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying standard client, keeping retries.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient.HTTPClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a task client for the configured server.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	retrying := retryablehttp.NewClient()
	retrying.RetryMax = 3
	retrying.RetryWaitMin = 500 * time.Millisecond
	retrying.RetryWaitMax = 5 * time.Second
	retrying.Logger = nil
	retrying.HTTPClient.Timeout = time.Duration(cfg.Server.RequestTimeout) * time.Second

	client := &Client{
		baseURL:    cfg.Server.BaseURL,
		httpClient: retrying,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Progress fetches the authoritative progress for a task. Called on
// every subscription connect so nothing missed while offline is lost.
func (c *Client) Progress(ctx context.Context, taskID string) (*ProgressSnapshot, error) {
	var snapshot ProgressSnapshot
	if err := c.getJSON(ctx, fmt.Sprintf("%s/tasks/%s/progress", c.baseURL, taskID), taskID, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.TaskID == "" {
		snapshot.TaskID = taskID
	}
	c.logger.Debug("progress resync",
		logging.String("task_id", taskID),
		logging.String("stage", snapshot.Stage),
		logging.Int("percentage", snapshot.Percentage),
	)
	return &snapshot, nil
}

// Get fetches the full task record, including the transcription result
// once the task has finished.
func (c *Client) Get(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.getJSON(ctx, fmt.Sprintf("%s/task/%s", c.baseURL, taskID), taskID, &task); err != nil {
		return nil, err
	}
	if task.Identifier == "" {
		task.Identifier = taskID
	}
	return &task, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, taskID string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{TaskID: taskID}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("request %s: HTTP %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}
