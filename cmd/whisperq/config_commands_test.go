package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitCreatesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "whisperq", "config.toml")

	out, err := runCommand(t, writeTestConfig(t), "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, writeTestConfig(t), "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when target already exists")
	}
}

func TestConfigShowPrintsResolvedValues(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "base_url = 'http://localhost:8000'") &&
		!strings.Contains(out, `base_url = "http://localhost:8000"`) {
		t.Fatalf("config show output missing base_url:\n%s", out)
	}
	if !strings.Contains(out, configPath) {
		t.Fatalf("config show output missing source path:\n%s", out)
	}
}
