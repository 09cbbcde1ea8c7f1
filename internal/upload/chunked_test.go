package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperq/internal/testsupport"
)

// tusServer is a minimal in-memory implementation of the resumable
// upload protocol for exercising the client.
type tusServer struct {
	mu        sync.Mutex
	length    int64
	offset    int64
	metadata  string
	chunks    []int64
	failNext  int
	failWith  int
	received  []byte
	headCalls int
}

func (s *tusServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if got := r.Header.Get("Tus-Resumable"); got != "1.0.0" {
			t.Errorf("Tus-Resumable = %q, want %q", got, "1.0.0")
		}

		switch r.Method {
		case http.MethodPost:
			s.length, _ = strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
			s.metadata = r.Header.Get("Upload-Metadata")
			w.Header().Set("Location", "/uploads/files/u1")
			w.WriteHeader(http.StatusCreated)

		case http.MethodHead:
			s.headCalls++
			w.Header().Set("Upload-Offset", strconv.FormatInt(s.offset, 10))
			w.WriteHeader(http.StatusOK)

		case http.MethodPatch:
			if s.failNext > 0 {
				s.failNext--
				w.WriteHeader(s.failWith)
				return
			}
			if got := r.Header.Get("Content-Type"); got != "application/offset+octet-stream" {
				t.Errorf("chunk content type = %q", got)
			}
			claimed, _ := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
			if claimed != s.offset {
				w.WriteHeader(http.StatusConflict)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			s.received = append(s.received, body...)
			s.offset += int64(len(body))
			s.chunks = append(s.chunks, int64(len(body)))
			w.Header().Set("Upload-Offset", strconv.FormatInt(s.offset, 10))
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (s *tusServer) decodedMetadata(t *testing.T) map[string]string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs := map[string]string{}
	for _, part := range strings.Split(s.metadata, ",") {
		kv := strings.SplitN(part, " ", 2)
		if len(kv) != 2 {
			t.Fatalf("malformed metadata pair %q", part)
		}
		decoded, err := base64.StdEncoding.DecodeString(kv[1])
		if err != nil {
			t.Fatalf("decode metadata value for %q: %v", kv[0], err)
		}
		pairs[kv[0]] = string(decoded)
	}
	return pairs
}

func newChunkedFixture(t *testing.T, fileSize int64, chunkSize int64) (*ChunkedClient, *tusServer, string, *[]time.Duration) {
	t.Helper()

	server := &tusServer{}
	srv := httptest.NewServer(server.handler(t))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t,
		testsupport.WithServer(srv.URL, "ws://unused"),
		testsupport.WithUploadSizes(1024, chunkSize),
	)
	client := NewChunkedClient(cfg)

	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}

	path := writeSource(t, "lecture.mp3", patternBytes(fileSize))
	return client, server, path, &slept
}

func patternBytes(n int64) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func TestChunkedUploadSplitsIntoChunks(t *testing.T) {
	client, server, path, _ := newChunkedFixture(t, 1200, 500)

	var progress [][2]int64
	url, err := client.Upload(context.Background(), ChunkedRequest{
		Path:        path,
		FileName:    "lecture.mp3",
		ContentType: "audio/mpeg",
		Language:    "ru",
		TaskID:      "task-abc",
	}, func(sent, total int64) {
		progress = append(progress, [2]int64{sent, total})
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url == "" {
		t.Fatal("empty resource URL")
	}

	wantChunks := []int64{500, 500, 200}
	if len(server.chunks) != len(wantChunks) {
		t.Fatalf("chunk count = %d, want %d", len(server.chunks), len(wantChunks))
	}
	for i, want := range wantChunks {
		if server.chunks[i] != want {
			t.Fatalf("chunk %d size = %d, want %d", i, server.chunks[i], want)
		}
	}
	if string(server.received) != string(patternBytes(1200)) {
		t.Fatal("reassembled bytes do not match the source file")
	}

	wantProgress := [][2]int64{{500, 1200}, {1000, 1200}, {1200, 1200}}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress calls = %d, want %d", len(progress), len(wantProgress))
	}
	for i, want := range wantProgress {
		if progress[i] != want {
			t.Fatalf("progress[%d] = %v, want %v", i, progress[i], want)
		}
	}

	meta := server.decodedMetadata(t)
	if meta["filename"] != "lecture.mp3" {
		t.Fatalf("metadata filename = %q", meta["filename"])
	}
	if meta["filetype"] != "audio/mpeg" {
		t.Fatalf("metadata filetype = %q", meta["filetype"])
	}
	if meta["language"] != "ru" {
		t.Fatalf("metadata language = %q", meta["language"])
	}
	if meta["taskId"] != "task-abc" {
		t.Fatalf("metadata taskId = %q", meta["taskId"])
	}
	if server.length != 1200 {
		t.Fatalf("declared length = %d, want 1200", server.length)
	}
}

func TestChunkedUploadRetriesTransientFailures(t *testing.T) {
	client, server, path, slept := newChunkedFixture(t, 600, 500)
	server.failNext = 2
	server.failWith = http.StatusServiceUnavailable

	_, err := client.Upload(context.Background(), ChunkedRequest{
		Path:        path,
		FileName:    "talk.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
		TaskID:      "task-retry",
	}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	want := []time.Duration{0, time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("retry delays = %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("retry delay %d = %v, want %v", i, (*slept)[i], d)
		}
	}
	if server.headCalls == 0 {
		t.Fatal("offset was never re-queried before retrying")
	}
	if server.offset != 600 {
		t.Fatalf("final offset = %d, want 600", server.offset)
	}
}

func TestChunkedUploadGivesUpAfterSchedule(t *testing.T) {
	client, server, path, slept := newChunkedFixture(t, 600, 500)
	server.failNext = 100
	server.failWith = http.StatusServiceUnavailable

	_, err := client.Upload(context.Background(), ChunkedRequest{
		Path:        path,
		FileName:    "talk.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
		TaskID:      "task-fail",
	}, nil)
	if err == nil {
		t.Fatal("expected error after exhausting the retry schedule")
	}

	want := []time.Duration{0, time.Second, 3 * time.Second, 5 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("retry delays = %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("retry delay %d = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestChunkedUploadPermanentRejection(t *testing.T) {
	client, server, path, slept := newChunkedFixture(t, 600, 500)
	server.failNext = 1
	server.failWith = http.StatusNotFound

	_, err := client.Upload(context.Background(), ChunkedRequest{
		Path:        path,
		FileName:    "talk.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
		TaskID:      "task-gone",
	}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", apiErr.Status)
	}
	if len(*slept) != 0 {
		t.Fatalf("permanent rejection should not retry, slept %v", *slept)
	}
}
