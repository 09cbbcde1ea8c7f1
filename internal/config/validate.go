package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return errors.New("server.base_url must be set")
	}
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("server.base_url is not a valid URL: %q", c.Server.BaseURL)
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.ChunkSizeBytes <= 0 {
		return errors.New("upload.chunk_size must be positive")
	}
	if c.Upload.SizeThresholdBytes <= 0 {
		return errors.New("upload.size_threshold must be positive")
	}
	if c.Upload.ChunkSizeBytes > c.Upload.SizeThresholdBytes {
		return errors.New("upload.chunk_size must not exceed upload.size_threshold")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
