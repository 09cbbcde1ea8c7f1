package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/docker/go-units"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeDefaults()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	dataDir, err := expandPath(valueOr(c.Paths.DataDir, defaultDataDir))
	if err != nil {
		return err
	}
	logDir, err := expandPath(valueOr(c.Paths.LogDir, defaultLogDir))
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir
	c.Paths.LogDir = logDir
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(valueOr(c.Server.BaseURL, defaultBaseURL)), "/")
	c.Server.TranscribePath = ensureLeadingSlash(valueOr(c.Server.TranscribePath, defaultTranscribePath))
	c.Server.ChunkedPath = ensureLeadingSlash(valueOr(c.Server.ChunkedPath, defaultChunkedPath))

	ws := strings.TrimSpace(c.Server.WebSocketURL)
	if ws == "" {
		derived, err := deriveWebSocketURL(c.Server.BaseURL)
		if err != nil {
			return err
		}
		ws = derived
	}
	c.Server.WebSocketURL = strings.TrimRight(ws, "/")

	if c.Server.RequestTimeout < 0 {
		c.Server.RequestTimeout = 0
	}
	return nil
}

func (c *Config) normalizeUpload() error {
	threshold, err := units.RAMInBytes(valueOr(c.Upload.SizeThreshold, defaultSizeThreshold))
	if err != nil {
		return fmt.Errorf("parse upload.size_threshold: %w", err)
	}
	chunk, err := units.RAMInBytes(valueOr(c.Upload.ChunkSize, defaultChunkSize))
	if err != nil {
		return fmt.Errorf("parse upload.chunk_size: %w", err)
	}
	c.Upload.SizeThresholdBytes = threshold
	c.Upload.ChunkSizeBytes = chunk
	return nil
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Model = strings.TrimSpace(valueOr(c.Defaults.Model, defaultModel))
	c.Defaults.Language = strings.ToLower(strings.TrimSpace(c.Defaults.Language))
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(valueOr(c.Logging.Format, defaultLogFormat)))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(valueOr(c.Logging.Level, defaultLogLevel)))
}

func deriveWebSocketURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server.base_url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("server.base_url: unsupported scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func ensureLeadingSlash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "/") {
		return value
	}
	return "/" + value
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
