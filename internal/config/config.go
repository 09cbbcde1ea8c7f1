package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the remote transcription service endpoints.
type Server struct {
	// BaseURL is the HTTP origin of the transcription service,
	// e.g. "http://localhost:8000".
	BaseURL string `toml:"base_url"`
	// WebSocketURL overrides the live progress origin. When empty it is
	// derived from BaseURL (http -> ws, https -> wss).
	WebSocketURL string `toml:"websocket_url"`
	// TranscribePath is the direct upload endpoint.
	TranscribePath string `toml:"transcribe_path"`
	// ChunkedPath is the resumable chunked upload endpoint.
	ChunkedPath string `toml:"chunked_path"`
	// RequestTimeout bounds direct upload requests, in seconds.
	// Zero disables the client timeout (large files on slow links).
	RequestTimeout int `toml:"request_timeout"`
}

// Upload contains transport routing and chunked transfer settings.
type Upload struct {
	// SizeThreshold routes files at or above this size to the chunked
	// transport. Accepts human-readable sizes ("80MiB").
	SizeThreshold string `toml:"size_threshold"`
	// ChunkSize is the chunked transfer unit ("50MiB").
	ChunkSize string `toml:"chunk_size"`

	// Parsed byte values, populated by normalize.
	SizeThresholdBytes int64 `toml:"-"`
	ChunkSizeBytes     int64 `toml:"-"`
}

// Defaults contains per-file settings applied at enqueue time.
type Defaults struct {
	// Model is the whisper model preselected for new queue items.
	Model string `toml:"model"`
	// Language preselects a language when filename detection finds none.
	// Empty leaves the item without a language until the user sets one.
	Language string `toml:"language"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Paths contains local directory configuration.
type Paths struct {
	// DataDir holds the queue database and the run lock.
	DataDir string `toml:"data_dir"`
	// LogDir receives the rolling log file alongside console output.
	LogDir string `toml:"log_dir"`
}

// Config encapsulates all configuration values for whisperq.
//
// Sections by subsystem:
//   - Server: transcription service endpoints
//   - Upload: transport routing threshold and chunk size
//   - Defaults: model/language preselection for new items
//   - Paths: queue database and log directories
//   - Logging: log format and level
type Config struct {
	Server   Server   `toml:"server"`
	Upload   Upload   `toml:"upload"`
	Defaults Defaults `toml:"defaults"`
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/whisperq/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and size strings parsed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("whisperq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for queue operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDatabasePath returns the SQLite file backing the queue store.
func (c *Config) QueueDatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockFilePath returns the flock path guarding a processing run.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.DataDir, "whisperq.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
