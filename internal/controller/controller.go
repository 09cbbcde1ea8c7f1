package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"whisperq/internal/config"
	"whisperq/internal/logging"
	"whisperq/internal/progress"
	"whisperq/internal/queue"
	"whisperq/internal/upload"
)

// Stage names reported over the progress subscription.
const (
	stageUploading = "uploading"
	stageQueued    = "queued"
	stageComplete  = "complete"
)

const networkErrorMessage = "Network error. Check your connection and the server address."

// directUploader covers the single-request upload path.
type directUploader interface {
	Upload(ctx context.Context, req upload.DirectRequest) (*upload.TranscriptionAccepted, error)
}

// chunkedUploader covers the resumable upload path.
type chunkedUploader interface {
	Upload(ctx context.Context, req upload.ChunkedRequest, onProgress upload.ProgressFunc) (string, error)
}

// subscription is the live progress channel for one task.
type subscription interface {
	Connect(ctx context.Context, taskID string) error
	Disconnect()
	Reconnect()
	State() progress.ConnectionState
}

// channelFactory builds a fresh subscription wired to the given
// callbacks. One subscription serves one task.
type channelFactory func(callbacks progress.Callbacks) subscription

// terminalEvent ends the wait for an in-flight item.
type terminalEvent struct {
	failed bool
}

// Controller drives queue items through upload and transcription one
// at a time. It owns the single active-item slot: items are started in
// queue order, each blocks until its task reaches a terminal state,
// and the next ready item follows automatically.
type Controller struct {
	store      *queue.Store
	cfg        *config.Config
	direct     directUploader
	chunked    chunkedUploader
	newChannel channelFactory
	newTaskID  func() string
	logger     *slog.Logger
	notify     func(*queue.Item)

	mu       sync.Mutex
	activeID int64
	channel  subscription
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotify registers a callback invoked after each item mutation,
// with the fresh item row. Used by the CLI to render progress.
func WithNotify(fn func(*queue.Item)) Option {
	return func(c *Controller) {
		c.notify = fn
	}
}

// WithDirectUploader overrides the direct upload client.
func WithDirectUploader(client directUploader) Option {
	return func(c *Controller) {
		if client != nil {
			c.direct = client
		}
	}
}

// WithChunkedUploader overrides the chunked upload client.
func WithChunkedUploader(client chunkedUploader) Option {
	return func(c *Controller) {
		if client != nil {
			c.chunked = client
		}
	}
}

// WithChannelFactory overrides how progress subscriptions are built.
func WithChannelFactory(factory channelFactory) Option {
	return func(c *Controller) {
		if factory != nil {
			c.newChannel = factory
		}
	}
}

// WithTaskIDSource overrides task identifier generation.
func WithTaskIDSource(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newTaskID = fn
		}
	}
}

// New builds a controller over the given store. Resyncing on reconnect
// uses the supplied task client through the channel factory.
func New(cfg *config.Config, store *queue.Store, resyncer progress.Resyncer, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		cfg:       cfg,
		direct:    upload.NewDirectClient(cfg),
		chunked:   upload.NewChunkedClient(cfg),
		newTaskID: uuid.NewString,
		logger:    logging.NewNop(),
	}
	c.newChannel = func(callbacks progress.Callbacks) subscription {
		return progress.NewChannel(cfg, resyncer, callbacks, progress.WithChannelLogger(c.logger))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActiveID returns the id of the in-flight item, or 0.
func (c *Controller) ActiveID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// ReconnectActive forces a fresh subscription attempt for the in-flight
// item after the automatic reconnect attempts have been exhausted.
func (c *Controller) ReconnectActive() {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel != nil {
		channel.Reconnect()
	}
}

// ConnectionState reports the subscription state for the in-flight item.
func (c *Controller) ConnectionState() progress.ConnectionState {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return progress.ConnectionState{}
	}
	return channel.State()
}

// Retry moves an errored item back to pending with its error and task
// assignment cleared. A later run picks it up like any other pending
// item and assigns a fresh task.
func (c *Controller) Retry(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := c.store.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("item queued for retry",
		logging.Int64("item_id", id),
		logging.String("file", item.FileName),
	)
	return item, nil
}

// Run processes ready items in queue order until the queue drains or
// the context is cancelled. Items left in flight by an interrupted run
// are adopted first. Items that fail are recorded and skipped; the run
// carries on with the next ready item.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.recoverStale(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := c.store.NextReady(ctx)
		if err != nil {
			return err
		}
		if item == nil {
			return nil
		}
		if err := c.processOne(ctx, item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("item failed",
				logging.Int64("item_id", item.ID),
				logging.Error(err),
			)
		}
	}
}

// RunItem processes one chosen item first, then continues with the
// rest of the ready queue in order.
func (c *Controller) RunItem(ctx context.Context, id int64) error {
	item, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !item.IsReady() {
		if item.Status != queue.StatusPending {
			return fmt.Errorf("item %d is %s, only pending items can start", id, item.Status)
		}
		return fmt.Errorf("item %d has no language selected", id)
	}
	if err := c.processOne(ctx, item); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("item failed",
			logging.Int64("item_id", item.ID),
			logging.Error(err),
		)
	}
	return c.Run(ctx)
}

// recoverStale deals with items a previous run left mid-flight. A task
// already submitted can still be tracked to completion through its
// identifier; an interrupted upload cannot, so it is marked for retry.
func (c *Controller) recoverStale(ctx context.Context) error {
	items, err := c.store.List(ctx, queue.StatusUploading, queue.StatusProcessing)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Status == queue.StatusProcessing && item.TaskID != "" {
			c.logger.Info("resuming interrupted item",
				logging.Int64("item_id", item.ID),
				logging.String("task_id", item.TaskID),
			)
			if err := c.track(ctx, item.ID, item.TaskID); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("resumed item failed",
					logging.Int64("item_id", item.ID),
					logging.Error(err),
				)
			}
			continue
		}
		if err := c.store.MarkError(ctx, item.ID, "Interrupted before the upload finished.", ""); err != nil {
			return err
		}
		c.notifyItem(ctx, item.ID)
	}
	return nil
}

// track subscribes to an already submitted task and waits for a
// terminal event. The connect-time resync replays whatever happened
// while no one was listening.
func (c *Controller) track(ctx context.Context, itemID int64, taskID string) error {
	if !c.claimActive(itemID) {
		return fmt.Errorf("item %d already in flight", c.ActiveID())
	}
	defer c.releaseActive()

	done := make(chan terminalEvent, 1)
	channel := c.newChannel(c.callbacksFor(itemID, done))
	c.setChannel(channel)
	defer func() {
		c.setChannel(nil)
		channel.Disconnect()
	}()

	if err := channel.Connect(ctx, taskID); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case event := <-done:
		if event.failed {
			return fmt.Errorf("task %s failed", taskID)
		}
		return nil
	}
}

// processOne drives a single item to a terminal state. The active slot
// is held for the whole journey; a lost subscription past the reconnect
// cap keeps the item in processing rather than failing it, so the wait
// only ends on a terminal event or cancellation.
func (c *Controller) processOne(ctx context.Context, item *queue.Item) error {
	if !c.claimActive(item.ID) {
		return fmt.Errorf("item %d already in flight", c.ActiveID())
	}
	defer c.releaseActive()

	c.logger.Info("starting item",
		logging.Int64("item_id", item.ID),
		logging.String("file", item.FileName),
		logging.Int64("size_bytes", item.SizeBytes),
		logging.String("language", item.SelectedLanguage),
		logging.String("model", item.SelectedModel),
	)

	done := make(chan terminalEvent, 1)
	channel := c.newChannel(c.callbacksFor(item.ID, done))

	var taskID string
	var err error
	switch upload.Route(item.SizeBytes, c.cfg.Upload.SizeThresholdBytes) {
	case upload.TransportChunked:
		taskID, err = c.uploadChunked(ctx, item, channel)
	default:
		taskID, err = c.uploadDirect(ctx, item)
	}
	if err != nil {
		c.failUpload(ctx, item.ID, err)
		if channel != nil {
			channel.Disconnect()
		}
		return err
	}

	c.setChannel(channel)
	defer func() {
		c.setChannel(nil)
		channel.Disconnect()
	}()

	// the chunked path connects before the transfer; direct connects now
	if channel.State().Idle() {
		if err := channel.Connect(ctx, taskID); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event := <-done:
		if event.failed {
			return fmt.Errorf("task %s failed", taskID)
		}
		c.logger.Info("item complete",
			logging.Int64("item_id", item.ID),
			logging.String("task_id", taskID),
		)
		return nil
	}
}

// uploadDirect sends the file in one request. The server assigns the
// task identifier; progress starts at the synthetic queued tick.
func (c *Controller) uploadDirect(ctx context.Context, item *queue.Item) (string, error) {
	if err := c.transition(ctx, item.ID, queue.StatusUploading); err != nil {
		return "", err
	}

	accepted, err := c.direct.Upload(ctx, upload.DirectRequest{
		Path:        item.SourcePath,
		FileName:    item.FileName,
		ContentType: item.ContentType,
		Language:    item.SelectedLanguage,
		Model:       item.SelectedModel,
	})
	if err != nil {
		return "", err
	}

	if err := c.store.AssignTaskID(ctx, item.ID, accepted.Identifier); err != nil {
		return "", err
	}
	if err := c.transition(ctx, item.ID, queue.StatusProcessing); err != nil {
		return "", err
	}
	if err := c.store.SetProgress(ctx, item.ID, 5, stageQueued); err != nil {
		return "", err
	}
	c.notifyItem(ctx, item.ID)
	return accepted.Identifier, nil
}

// uploadChunked streams the file in chunks under a client-minted task
// identifier. The subscription is armed before the transfer so stage
// updates the service emits mid-upload are not missed.
func (c *Controller) uploadChunked(ctx context.Context, item *queue.Item, channel subscription) (string, error) {
	taskID := c.newTaskID()
	if err := c.store.AssignTaskID(ctx, item.ID, taskID); err != nil {
		return "", err
	}
	if err := c.transition(ctx, item.ID, queue.StatusUploading); err != nil {
		return "", err
	}
	if err := channel.Connect(ctx, taskID); err != nil {
		return "", err
	}

	tracker := upload.NewSpeedTracker()
	_, err := c.chunked.Upload(ctx, upload.ChunkedRequest{
		Path:        item.SourcePath,
		FileName:    item.FileName,
		ContentType: item.ContentType,
		Language:    item.SelectedLanguage,
		TaskID:      taskID,
	}, func(sent, total int64) {
		metrics := tracker.Update(sent, total)
		if err := c.store.SetProgress(ctx, item.ID, metrics.Percentage, stageUploading); err != nil {
			c.logger.Warn("record upload progress", logging.Error(err))
			return
		}
		if err := c.store.SetUploadMetrics(ctx, item.ID, metrics.SpeedFormatted, metrics.ETAFormatted); err != nil {
			c.logger.Warn("record upload metrics", logging.Error(err))
		}
		c.notifyItem(ctx, item.ID)
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// callbacksFor routes subscription events for one item. Terminal
// events are reported exactly once through done.
func (c *Controller) callbacksFor(itemID int64, done chan terminalEvent) progress.Callbacks {
	var once sync.Once
	finish := func(event terminalEvent) {
		once.Do(func() { done <- event })
	}

	return progress.Callbacks{
		OnProgress: func(update progress.Update) {
			c.applyProgress(itemID, update, finish)
		},
		OnTaskError: func(taskErr progress.TaskError) {
			ctx := context.Background()
			message := taskErr.UserMessage
			if message == "" {
				message = "Transcription failed."
			}
			if err := c.store.MarkError(ctx, itemID, message, taskErr.TechnicalDetail); err != nil {
				c.logger.Warn("record task error", logging.Error(err))
			}
			c.logger.Warn("task failed",
				logging.Int64("item_id", itemID),
				logging.String("error_code", taskErr.ErrorCode),
				logging.String("detail", taskErr.TechnicalDetail),
			)
			c.notifyItem(ctx, itemID)
			finish(terminalEvent{failed: true})
		},
		OnStateChange: func(state progress.ConnectionState) {
			if state.MaxAttemptsReached {
				c.logger.Warn("subscription lost, waiting for manual reconnect",
					logging.Int64("item_id", itemID),
				)
			}
		},
	}
}

// applyProgress folds one progress tick into the stored item. A stage
// beyond uploading promotes the item to processing; the complete stage
// finishes it.
func (c *Controller) applyProgress(itemID int64, update progress.Update, finish func(terminalEvent)) {
	ctx := context.Background()

	if update.Stage == stageComplete {
		if err := c.store.MarkComplete(ctx, itemID); err != nil {
			c.logger.Warn("record completion", logging.Error(err))
		}
		c.notifyItem(ctx, itemID)
		finish(terminalEvent{})
		return
	}

	if update.Stage != stageUploading {
		item, err := c.store.GetByID(ctx, itemID)
		if err != nil {
			c.logger.Warn("load item for progress", logging.Error(err))
			return
		}
		if item.Status == queue.StatusUploading {
			if err := c.transition(ctx, itemID, queue.StatusProcessing); err != nil {
				c.logger.Warn("promote item to processing", logging.Error(err))
			}
		}
	}

	if err := c.store.SetProgress(ctx, itemID, update.Percentage, update.Stage); err != nil {
		c.logger.Warn("record progress", logging.Error(err))
	}
	c.notifyItem(ctx, itemID)
}

// failUpload records an upload failure on the item. Network failures
// get a friendlier message than server rejections.
func (c *Controller) failUpload(ctx context.Context, itemID int64, err error) {
	message := "Upload failed."
	var apiErr *upload.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsNetwork() {
			message = networkErrorMessage
		} else if apiErr.Detail != "" {
			message = apiErr.Detail
		}
	}
	recordCtx := ctx
	if recordCtx.Err() != nil {
		recordCtx = context.Background()
	}
	if markErr := c.store.MarkError(recordCtx, itemID, message, err.Error()); markErr != nil {
		c.logger.Warn("record upload failure", logging.Error(markErr))
	}
	c.notifyItem(recordCtx, itemID)
}

func (c *Controller) transition(ctx context.Context, itemID int64, status queue.Status) error {
	if err := c.store.SetStatus(ctx, itemID, status); err != nil {
		return fmt.Errorf("set item %d status %s: %w", itemID, status, err)
	}
	c.notifyItem(ctx, itemID)
	return nil
}

func (c *Controller) notifyItem(ctx context.Context, itemID int64) {
	if c.notify == nil {
		return
	}
	item, err := c.store.GetByID(ctx, itemID)
	if err != nil {
		return
	}
	c.notify(item)
}

func (c *Controller) claimActive(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != 0 {
		return false
	}
	c.activeID = id
	return true
}

func (c *Controller) releaseActive() {
	c.mu.Lock()
	c.activeID = 0
	c.mu.Unlock()
}

func (c *Controller) setChannel(channel subscription) {
	c.mu.Lock()
	c.channel = channel
	c.mu.Unlock()
}
