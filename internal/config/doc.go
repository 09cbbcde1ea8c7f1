// Package config loads and validates whisperq configuration from TOML.
package config
