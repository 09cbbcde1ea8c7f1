package testsupport

import (
	"path/filepath"
	"testing"

	"whisperq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Size strings are pre-parsed so stores and clients can use the config
// without running Load.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Upload.SizeThresholdBytes = 80 * 1024 * 1024
	cfg.Upload.ChunkSizeBytes = 50 * 1024 * 1024
	cfg.Server.WebSocketURL = "ws://127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithServer points the config at a test server origin.
func WithServer(baseURL, wsURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.BaseURL = baseURL
		cfg.Server.WebSocketURL = wsURL
	}
}

// WithUploadSizes overrides the routing threshold and chunk size in bytes.
func WithUploadSizes(threshold, chunk int64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.SizeThresholdBytes = threshold
		cfg.Upload.ChunkSizeBytes = chunk
	}
}
