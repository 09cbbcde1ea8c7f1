package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whisperq/internal/tasks"
	"whisperq/internal/testsupport"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantErr  bool
		wantKind string
	}{
		{"progress", `{"type":"progress","task_id":"t1","stage":"transcribing","percentage":40,"message":"working","timestamp":1756400000.5}`, false, "progress"},
		{"error", `{"type":"error","task_id":"t1","error_code":"TRANSCRIPTION_FAILED","user_message":"Transcription failed","technical_detail":"oom","timestamp":1756400000.5}`, false, "error"},
		{"heartbeat", `{"type":"heartbeat","timestamp":1756400000.5}`, false, "heartbeat"},
		{"unknown type", `{"type":"telemetry"}`, true, ""},
		{"not json", `{{{`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, taskErr, ok, err := decodeMessage([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				if ok {
					t.Fatal("bad message reported as valid")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeMessage: %v", err)
			}
			switch tt.wantKind {
			case "progress":
				if update == nil || update.Stage != "transcribing" || update.Percentage != 40 {
					t.Fatalf("update = %+v", update)
				}
			case "error":
				if taskErr == nil || taskErr.ErrorCode != "TRANSCRIPTION_FAILED" {
					t.Fatalf("taskErr = %+v", taskErr)
				}
			case "heartbeat":
				if update != nil || taskErr != nil {
					t.Fatal("heartbeat should carry nothing")
				}
			}
		})
	}
}

// recorder collects callback invocations thread-safely.
type recorder struct {
	mu       sync.Mutex
	updates  []Update
	failures []TaskError
	states   []ConnectionState
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(u Update) {
			r.mu.Lock()
			r.updates = append(r.updates, u)
			r.mu.Unlock()
		},
		OnTaskError: func(e TaskError) {
			r.mu.Lock()
			r.failures = append(r.failures, e)
			r.mu.Unlock()
		},
		OnStateChange: func(s ConnectionState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]Update, []TaskError, []ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update{}, r.updates...),
		append([]TaskError{}, r.failures...),
		append([]ConnectionState{}, r.states...)
}

type fakeResyncer struct {
	calls atomic.Int32
}

func (f *fakeResyncer) Progress(ctx context.Context, taskID string) (*tasks.ProgressSnapshot, error) {
	f.calls.Add(1)
	return &tasks.ProgressSnapshot{TaskID: taskID, Stage: "queued", Percentage: 5}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

var upgrader = websocket.Upgrader{}

func TestChannelDeliversMessagesAndStopsOnNormalClose(t *testing.T) {
	frames := []string{
		`{"type":"progress","task_id":"t1","stage":"transcribing","percentage":30,"message":"working"}`,
		`{"type":"heartbeat","timestamp":1756400000}`,
		`this is not json`,
		`{"type":"unknown","task_id":"t1"}`,
		`{"type":"error","task_id":"t1","error_code":"AUDIO_UNREADABLE","user_message":"Could not read audio"}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/tasks/t1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	defer srv.Close()

	rec := &recorder{}
	resync := &fakeResyncer{}
	cfg := testsupport.NewConfig(t, testsupport.WithServer("http://unused", wsURL(srv)))
	channel := NewChannel(cfg, resync, rec.callbacks())

	if err := channel.Connect(context.Background(), "t1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "subscription to finish", func() bool { return channel.State().Idle() })

	updates, failures, _ := rec.snapshot()
	// resync snapshot plus the one live progress frame
	if len(updates) != 2 {
		t.Fatalf("updates = %d (%+v), want 2", len(updates), updates)
	}
	if updates[0].Stage != "queued" || updates[0].Percentage != 5 {
		t.Fatalf("resync update = %+v", updates[0])
	}
	if updates[1].Stage != "transcribing" || updates[1].Percentage != 30 {
		t.Fatalf("live update = %+v", updates[1])
	}
	if len(failures) != 1 || failures[0].ErrorCode != "AUDIO_UNREADABLE" {
		t.Fatalf("failures = %+v", failures)
	}
	if got := resync.calls.Load(); got != 1 {
		t.Fatalf("resync calls = %d, want 1 (normal close must not reconnect)", got)
	}
}

func TestChannelResyncsOnEveryReconnect(t *testing.T) {
	var connections atomic.Int32
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if connections.Add(1) == 1 {
			// drop the first connection without a close frame
			_ = conn.Close()
			return
		}
		<-release
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}))
	defer srv.Close()

	rec := &recorder{}
	resync := &fakeResyncer{}
	cfg := testsupport.NewConfig(t, testsupport.WithServer("http://unused", wsURL(srv)))
	channel := NewChannel(cfg, resync, rec.callbacks())
	channel.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	if err := channel.Connect(context.Background(), "t2"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "second resync", func() bool { return resync.calls.Load() == 2 })
	close(release)
	waitFor(t, "subscription to finish", func() bool { return channel.State().Idle() })

	_, _, states := rec.snapshot()
	sawReconnecting := false
	for _, s := range states {
		if s.IsReconnecting && s.ReconnectAttempt == 1 {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("no reconnecting(1) state observed: %+v", states)
	}
}

func TestChannelBackoffScheduleAndManualReconnect(t *testing.T) {
	rec := &recorder{}
	// nothing listens on the configured address; every dial fails
	cfg := testsupport.NewConfig(t)
	channel := NewChannel(cfg, nil, rec.callbacks())

	var mu sync.Mutex
	var slept []time.Duration
	channel.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	sleeps := func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration{}, slept...)
	}

	if err := channel.Connect(context.Background(), "t3"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer channel.Disconnect()

	waitFor(t, "failed state", func() bool { return channel.State().MaxAttemptsReached })

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}
	got := sleeps()
	if len(got) != len(want) {
		t.Fatalf("backoff delays = %v, want %v", got, want)
	}
	for i, d := range want {
		if got[i] != d {
			t.Fatalf("delay %d = %v, want %v", i, got[i], d)
		}
	}

	_, _, states := rec.snapshot()
	maxAttempt := 0
	for _, s := range states {
		if s.ReconnectAttempt > maxAttempt {
			maxAttempt = s.ReconnectAttempt
		}
	}
	if maxAttempt != 5 {
		t.Fatalf("highest reconnect attempt = %d, want 5", maxAttempt)
	}

	// manual reconnect resets the attempt counter and leaves failed state
	channel.Reconnect()
	waitFor(t, "retry after manual reconnect", func() bool { return len(sleeps()) > len(want) })
	if next := sleeps()[len(want)]; next != time.Second {
		t.Fatalf("first delay after manual reconnect = %v, want 1s", next)
	}
}

func TestChannelRejectsDoubleConnect(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	channel := NewChannel(cfg, nil, Callbacks{})
	channel.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	if err := channel.Connect(context.Background(), "t4"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer channel.Disconnect()

	if err := channel.Connect(context.Background(), "t4"); err == nil {
		t.Fatal("second Connect should fail while the first is active")
	}
}
