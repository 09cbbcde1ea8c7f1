package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"whisperq/internal/config"
	"whisperq/internal/logging"
)

// protocolVersion is the resumable upload protocol revision spoken on
// the Tus-Resumable header.
const protocolVersion = "1.0.0"

// DefaultRetryDelays is the fixed schedule for transient chunk
// failures: an immediate retry, then increasing waits.
var DefaultRetryDelays = []time.Duration{0, time.Second, 3 * time.Second, 5 * time.Second}

// ChunkedRequest describes one resumable upload. TaskID is minted by
// the caller and travels in the creation metadata so progress tracking
// can be armed before the transfer finishes.
type ChunkedRequest struct {
	Path        string
	FileName    string
	ContentType string
	Language    string
	TaskID      string
}

// ProgressFunc receives cumulative byte progress after each chunk
// acknowledgement.
type ProgressFunc func(bytesSent, bytesTotal int64)

// ChunkedClient implements the resumable chunked upload protocol: a
// resource is created declaring total length and metadata, then filled
// with fixed-size chunks at tracked offsets. Fingerprint persistence
// across runs is deliberately disabled; an interrupted run starts over.
type ChunkedClient struct {
	endpoint    string
	chunkSize   int64
	retryDelays []time.Duration
	httpClient  *http.Client
	logger      *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// ChunkedOption configures a ChunkedClient.
type ChunkedOption func(*ChunkedClient)

// WithChunkedHTTPClient overrides the default HTTP client.
func WithChunkedHTTPClient(client *http.Client) ChunkedOption {
	return func(c *ChunkedClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithChunkedLogger attaches a logger.
func WithChunkedLogger(logger *slog.Logger) ChunkedOption {
	return func(c *ChunkedClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryDelays overrides the transient-failure schedule.
func WithRetryDelays(delays []time.Duration) ChunkedOption {
	return func(c *ChunkedClient) {
		if len(delays) > 0 {
			c.retryDelays = append([]time.Duration{}, delays...)
		}
	}
}

// NewChunkedClient builds a client for the configured chunked endpoint.
func NewChunkedClient(cfg *config.Config, opts ...ChunkedOption) *ChunkedClient {
	client := &ChunkedClient{
		endpoint:    cfg.Server.BaseURL + cfg.Server.ChunkedPath,
		chunkSize:   cfg.Upload.ChunkSizeBytes,
		retryDelays: append([]time.Duration{}, DefaultRetryDelays...),
		httpClient:  &http.Client{},
		logger:      logging.NewNop(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Upload transfers the file and returns the server resource URL. The
// pre-supplied task identifier from the request metadata is treated as
// authoritative by the service once the final chunk lands.
func (c *ChunkedClient) Upload(ctx context.Context, req ChunkedRequest, onProgress ProgressFunc) (string, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat upload source: %w", err)
	}
	total := info.Size()

	uploadURL, err := c.createResource(ctx, req, total)
	if err != nil {
		return "", err
	}
	c.logger.Debug("upload resource created",
		logging.String("url", uploadURL),
		logging.String("task_id", req.TaskID),
		logging.Int64("total_bytes", total),
	)

	var offset int64
	for offset < total {
		next, err := c.transferChunk(ctx, file, uploadURL, offset, total)
		if err != nil {
			return "", err
		}
		offset = next
		if onProgress != nil {
			onProgress(offset, total)
		}
	}

	return uploadURL, nil
}

// createResource declares the upload: total length plus the metadata
// map the service needs to start a task.
func (c *ChunkedClient) createResource(ctx context.Context, req ChunkedRequest, total int64) (string, error) {
	metadata := encodeMetadata(map[string]string{
		"filename": req.FileName,
		"filetype": req.ContentType,
		"language": req.Language,
		"taskId":   req.TaskID,
	})

	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryDelays[attempt-1]); err != nil {
				return "", err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("build create request: %w", err)
		}
		httpReq.Header.Set("Tus-Resumable", protocolVersion)
		httpReq.Header.Set("Upload-Length", strconv.FormatInt(total, 10))
		httpReq.Header.Set("Upload-Metadata", metadata)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = networkError(err)
			continue
		}
		location := resp.Header.Get("Location")
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated:
			return c.resolveLocation(location)
		case retryableStatus(resp.StatusCode):
			lastErr = &APIError{Status: resp.StatusCode, Detail: "create upload resource"}
			continue
		default:
			return "", &APIError{Status: resp.StatusCode, Detail: "create upload resource"}
		}
	}
	return "", fmt.Errorf("create upload resource: retries exhausted: %w", lastErr)
}

// transferChunk sends one chunk starting at offset and returns the new
// offset. Transient failures retry on the fixed delay schedule with the
// server offset re-queried first, so a partially absorbed chunk is not
// resent from the wrong position.
func (c *ChunkedClient) transferChunk(ctx context.Context, file *os.File, uploadURL string, offset, total int64) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryDelays[attempt-1]); err != nil {
				return 0, err
			}
			current, err := c.currentOffset(ctx, uploadURL)
			if err == nil {
				offset = current
			}
			if offset >= total {
				return offset, nil
			}
		}

		length := c.chunkSize
		if remaining := total - offset; remaining < length {
			length = remaining
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, uploadURL,
			io.NewSectionReader(file, offset, length))
		if err != nil {
			return 0, fmt.Errorf("build chunk request: %w", err)
		}
		httpReq.Header.Set("Tus-Resumable", protocolVersion)
		httpReq.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
		httpReq.Header.Set("Content-Type", "application/offset+octet-stream")
		httpReq.ContentLength = length

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = networkError(err)
			c.logger.Warn("chunk transfer failed",
				logging.Int64("offset", offset),
				logging.Int("attempt", attempt+1),
				logging.Error(err),
			)
			continue
		}
		newOffset := resp.Header.Get("Upload-Offset")
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNoContent:
			if parsed, err := strconv.ParseInt(newOffset, 10, 64); err == nil {
				return parsed, nil
			}
			return offset + length, nil
		case retryableStatus(resp.StatusCode):
			lastErr = &APIError{Status: resp.StatusCode, Detail: "chunk transfer"}
			c.logger.Warn("chunk transfer rejected",
				logging.Int64("offset", offset),
				logging.Int("status", resp.StatusCode),
				logging.Int("attempt", attempt+1),
			)
			continue
		default:
			return 0, &APIError{Status: resp.StatusCode, Detail: "chunk transfer"}
		}
	}
	return 0, fmt.Errorf("chunk transfer at offset %d: retries exhausted: %w", offset, lastErr)
}

// currentOffset asks the server how much of the upload it has.
func (c *ChunkedClient) currentOffset(ctx context.Context, uploadURL string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, uploadURL, nil)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Tus-Resumable", protocolVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return 0, fmt.Errorf("offset probe: HTTP %d", resp.StatusCode)
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}

func (c *ChunkedClient) resolveLocation(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("create upload resource: missing location")
	}
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	resolved, err := base.Parse(location)
	if err != nil {
		return "", fmt.Errorf("resolve upload location: %w", err)
	}
	return resolved.String(), nil
}

// retryableStatus classifies server responses worth retrying: overload
// and transient conflict conditions, never ordinary client errors.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusConflict, http.StatusLocked, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// encodeMetadata renders the creation metadata map: comma-separated
// "key base64(value)" pairs with deterministic ordering.
func encodeMetadata(pairs map[string]string) string {
	keys := []string{"filename", "filetype", "language", "taskId"}
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value, ok := pairs[key]
		if !ok {
			continue
		}
		parts = append(parts, key+" "+base64.StdEncoding.EncodeToString([]byte(value)))
	}
	return strings.Join(parts, ",")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
