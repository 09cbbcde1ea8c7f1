package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whisperq/internal/config"
	"whisperq/internal/logging"
	"whisperq/internal/tasks"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
)

// Resyncer supplies the authoritative progress snapshot fetched on
// every successful (re)connect, so ticks missed while offline are not
// lost. *tasks.Client satisfies it.
type Resyncer interface {
	Progress(ctx context.Context, taskID string) (*tasks.ProgressSnapshot, error)
}

// Callbacks receive subscription events. All callbacks fire from the
// channel's own goroutine; implementations must not block for long.
type Callbacks struct {
	OnProgress    func(Update)
	OnTaskError   func(TaskError)
	OnStateChange func(ConnectionState)
}

// Channel maintains a live progress subscription for one task. It
// reconnects automatically with exponential backoff; after the attempt
// cap it parks in a failed state until Reconnect is called. A normal
// server close ends the subscription without any reconnection.
type Channel struct {
	wsBase      string
	resyncer    Resyncer
	callbacks   Callbacks
	dialer      *websocket.Dialer
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(context.Context, time.Duration) error

	mu      sync.Mutex
	state   ConnectionState
	conn    *websocket.Conn
	taskID  string
	cancel  context.CancelFunc
	reset   bool
	kick    chan struct{}
	done    chan struct{}
	running bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) ChannelOption {
	return func(c *Channel) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithChannelLogger attaches a logger.
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(base, max time.Duration) ChannelOption {
	return func(c *Channel) {
		if base > 0 {
			c.baseDelay = base
		}
		if max > 0 {
			c.maxDelay = max
		}
	}
}

// NewChannel builds a subscription channel for the configured server.
func NewChannel(cfg *config.Config, resyncer Resyncer, callbacks Callbacks, opts ...ChannelOption) *Channel {
	channel := &Channel{
		wsBase:      cfg.Server.WebSocketURL,
		resyncer:    resyncer,
		callbacks:   callbacks,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      logging.NewNop(),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepContext,
		state:       stateIdle(),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

// Connect starts the subscription for a task. It returns once the
// managed connection loop is running; connection outcomes surface
// through the state callback.
func (c *Channel) Connect(ctx context.Context, taskID string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("subscription already active for task %s", c.taskID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.taskID = taskID
	c.cancel = cancel
	c.reset = false
	c.kick = make(chan struct{}, 1)
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Disconnect tears the subscription down and waits for the loop to
// exit. Safe to call when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	done := c.done
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	<-done
}

// Reconnect forces an immediate fresh connection attempt with the
// attempt counter cleared. It covers both a parked failed subscription
// and a live one the user wants to cycle.
func (c *Channel) Reconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.reset = true
	conn := c.conn
	kick := c.kick
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.conn = nil
		c.mu.Unlock()
		close(c.done)
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(stateIdle())
			return
		}
		if attempt == 0 {
			c.setState(stateConnecting())
		} else {
			c.setState(stateReconnecting(attempt))
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(), nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			c.setConn(conn)
			attempt = 0
			c.setState(stateConnected())
			c.resyncProgress(ctx)

			normal := c.readLoop(ctx, conn)
			c.setConn(nil)
			_ = conn.Close()
			if normal || ctx.Err() != nil {
				c.setState(stateIdle())
				return
			}
		} else {
			if ctx.Err() != nil {
				c.setState(stateIdle())
				return
			}
			c.logger.Warn("subscription dial failed",
				logging.String("task_id", c.taskID),
				logging.Error(err),
			)
		}

		if c.consumeReset() {
			attempt = 0
			continue
		}

		attempt++
		if attempt > c.maxAttempts {
			c.setState(stateFailed())
			select {
			case <-ctx.Done():
				c.setState(stateIdle())
				return
			case <-c.kick:
				c.consumeReset()
				attempt = 0
				continue
			}
		}

		if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
			c.setState(stateIdle())
			return
		}
	}
}

// readLoop pumps messages until the connection drops. It reports
// whether the subscription ended cleanly (server close or local
// shutdown) as opposed to a loss that warrants reconnection.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("subscription closed by server", logging.String("task_id", c.taskID))
				return true
			}
			if ctx.Err() != nil {
				return true
			}
			c.logger.Warn("subscription connection lost",
				logging.String("task_id", c.taskID),
				logging.Error(err),
			)
			return false
		}

		update, taskErr, _, err := decodeMessage(data)
		if err != nil {
			c.logger.Warn("dropping unparseable message",
				logging.String("task_id", c.taskID),
				logging.Error(err),
			)
			continue
		}
		switch {
		case update != nil:
			if c.callbacks.OnProgress != nil {
				c.callbacks.OnProgress(*update)
			}
		case taskErr != nil:
			if c.callbacks.OnTaskError != nil {
				c.callbacks.OnTaskError(*taskErr)
			}
		default:
			// heartbeat, keepalive only
		}
	}
}

// resyncProgress replays the authoritative snapshot into the progress
// callback. Runs on every entry into the connected state.
func (c *Channel) resyncProgress(ctx context.Context) {
	if c.resyncer == nil {
		return
	}
	snapshot, err := c.resyncer.Progress(ctx, c.taskID)
	if err != nil {
		c.logger.Warn("progress resync failed",
			logging.String("task_id", c.taskID),
			logging.Error(err),
		)
		return
	}
	if c.callbacks.OnProgress != nil {
		c.callbacks.OnProgress(Update{
			TaskID:     snapshot.TaskID,
			Stage:      snapshot.Stage,
			Percentage: snapshot.Percentage,
			Message:    snapshot.Message,
		})
	}
}

func (c *Channel) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay || delay <= 0 {
		delay = c.maxDelay
	}
	return delay
}

func (c *Channel) endpoint() string {
	return fmt.Sprintf("%s/ws/tasks/%s", c.wsBase, c.taskID)
}

func (c *Channel) setState(state ConnectionState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(state)
	}
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) consumeReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.reset
	c.reset = false
	return was
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
