package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"whisperq/internal/testsupport"
)

func writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

func TestDirectUploadSuccess(t *testing.T) {
	content := []byte("not really audio but good enough")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.URL.Query().Get("language"); got != "lv" {
			t.Errorf("language query = %q, want %q", got, "lv")
		}
		if got := r.URL.Query().Get("model"); got != "large-v3" {
			t.Errorf("model query = %q, want %q", got, "large-v3")
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "interview.mp3" {
			t.Errorf("filename = %q, want %q", header.Filename, "interview.mp3")
		}
		body, _ := io.ReadAll(file)
		if string(body) != string(content) {
			t.Errorf("file body mismatch: got %d bytes", len(body))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"identifier":"task-123","message":"Task queued"}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused"))
	client := NewDirectClient(cfg)

	accepted, err := client.Upload(context.Background(), DirectRequest{
		Path:        writeSource(t, "interview.mp3", content),
		FileName:    "interview.mp3",
		ContentType: "audio/mpeg",
		Language:    "lv",
		Model:       "large-v3",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if accepted.Identifier != "task-123" {
		t.Fatalf("identifier = %q, want %q", accepted.Identifier, "task-123")
	}
	if accepted.Message != "Task queued" {
		t.Fatalf("message = %q, want %q", accepted.Message, "Task queued")
	}
}

func TestDirectUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"detail":"file exceeds the direct upload limit"}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused"))
	client := NewDirectClient(cfg)

	_, err := client.Upload(context.Background(), DirectRequest{
		Path:        writeSource(t, "big.mp3", []byte("x")),
		FileName:    "big.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
		Model:       "large-v3",
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", apiErr.Status, http.StatusRequestEntityTooLarge)
	}
	if apiErr.Detail != "file exceeds the direct upload limit" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
	if apiErr.IsNetwork() {
		t.Fatal("server rejection classified as network error")
	}
}

func TestDirectUploadNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused"))
	client := NewDirectClient(cfg)

	_, err := client.Upload(context.Background(), DirectRequest{
		Path:        writeSource(t, "clip.mp3", []byte("x")),
		FileName:    "clip.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
		Model:       "large-v3",
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if !apiErr.IsNetwork() {
		t.Fatalf("expected network sentinel, got status %d", apiErr.Status)
	}
}
