package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"whisperq/internal/config"
	"whisperq/internal/logging"
)

// TranscriptionAccepted is the synchronous response of the direct
// endpoint: the task identifier used for all progress tracking.
type TranscriptionAccepted struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

// DirectRequest describes one direct upload.
type DirectRequest struct {
	Path        string
	FileName    string
	ContentType string
	Language    string
	Model       string
}

// DirectClient sends small files as a single multipart POST. No
// chunk-level progress exists on this path; progress tracking starts
// once the channel subscription is armed with the returned identifier.
type DirectClient struct {
	baseURL    string
	path       string
	httpClient *http.Client
	logger     *slog.Logger
}

// DirectOption configures a DirectClient.
type DirectOption func(*DirectClient)

// WithDirectHTTPClient overrides the default HTTP client.
func WithDirectHTTPClient(client *http.Client) DirectOption {
	return func(c *DirectClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDirectLogger attaches a logger.
func WithDirectLogger(logger *slog.Logger) DirectOption {
	return func(c *DirectClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDirectClient builds a client for the configured transcribe endpoint.
func NewDirectClient(cfg *config.Config, opts ...DirectOption) *DirectClient {
	client := &DirectClient{
		baseURL:    cfg.Server.BaseURL,
		path:       cfg.Server.TranscribePath,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Upload posts the file and returns the assigned task identifier.
// Failures surface as *APIError: status 0 when no response arrived,
// otherwise the HTTP status with the server's detail string.
func (c *DirectClient) Upload(ctx context.Context, req DirectRequest) (*TranscriptionAccepted, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	// Stream the multipart body; buffering an 80 MiB file defeats the
	// point of the direct path.
	bodyReader, bodyWriter := io.Pipe()
	form := multipart.NewWriter(bodyWriter)
	go func() {
		part, err := form.CreateFormFile("file", req.FileName)
		if err != nil {
			_ = bodyWriter.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			_ = bodyWriter.CloseWithError(err)
			return
		}
		_ = bodyWriter.CloseWithError(form.Close())
	}()

	endpoint := c.baseURL + c.path + "?" + url.Values{
		"language": {req.Language},
		"model":    {req.Model},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.Debug("direct upload request",
		logging.String("file", req.FileName),
		logging.String("language", req.Language),
		logging.String("model", req.Model),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Detail: readDetail(resp)}
	}

	var accepted TranscriptionAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if accepted.Identifier == "" {
		return nil, fmt.Errorf("upload response missing identifier")
	}
	return &accepted, nil
}

// readDetail extracts the service's {"detail": ...} error body, falling
// back to a generic status description.
func readDetail(resp *http.Response) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
