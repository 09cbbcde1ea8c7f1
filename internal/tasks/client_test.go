package tasks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"whisperq/internal/testsupport"
)

func TestProgressSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/task-9/progress" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id":"task-9","stage":"transcribing","percentage":42,"message":"Transcribing audio"}`))
	}))
	defer srv.Close()

	client := NewClient(testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused")))

	snapshot, err := client.Progress(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if snapshot.Stage != "transcribing" {
		t.Fatalf("stage = %q, want %q", snapshot.Stage, "transcribing")
	}
	if snapshot.Percentage != 42 {
		t.Fatalf("percentage = %d, want 42", snapshot.Percentage)
	}
}

func TestProgressRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stage":"queued","percentage":5}`))
	}))
	defer srv.Close()

	client := NewClient(testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused")))

	snapshot, err := client.Progress(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("server saw %d calls, want a retry", calls.Load())
	}
	if snapshot.TaskID != "task-9" {
		t.Fatalf("task id not backfilled: %q", snapshot.TaskID)
	}
}

func TestGetTaskWithResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task/task-9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"identifier": "task-9",
			"status": "completed",
			"result": {
				"language": "lv",
				"text": "Labdien. Paldies.",
				"segments": [
					{"start": 0.0, "end": 1.4, "text": "Labdien.", "speaker": "SPEAKER_00"},
					{"start": 1.6, "end": 2.8, "text": "Paldies."}
				]
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused")))

	task, err := client.Get(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Result == nil {
		t.Fatal("missing result")
	}
	if len(task.Result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(task.Result.Segments))
	}
	if task.Result.Segments[0].Speaker != "SPEAKER_00" {
		t.Fatalf("speaker = %q", task.Result.Segments[0].Speaker)
	}
	if task.Result.Segments[1].End != 2.8 {
		t.Fatalf("end = %f, want 2.8", task.Result.Segments[1].End)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testsupport.NewConfig(t, testsupport.WithServer(srv.URL, "ws://unused")))

	_, err := client.Get(context.Background(), "ghost")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
	if notFound.TaskID != "ghost" {
		t.Fatalf("task id = %q", notFound.TaskID)
	}
}
