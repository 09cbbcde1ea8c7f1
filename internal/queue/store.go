package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"whisperq/internal/config"
)

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = errors.New("queue item not found")

// ErrNotPending is returned when a pending-only mutation targets a started item.
var ErrNotPending = errors.New("queue item is not pending")

// ErrNotErrored is returned when retry targets an item outside the error state.
var ErrNotErrored = errors.New("queue item is not in error state")

// Store manages queue persistence backed by SQLite.
//
// Every mutation rewrites the row and callers re-read items after
// mutating; no *Item handed out by the store is shared.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewItem describes a file being enqueued.
type NewItem struct {
	SourcePath       string
	FileName         string
	SizeBytes        int64
	ContentType      string
	DetectedLanguage string
	SelectedLanguage string
	SelectedModel    string
}

// Add enqueues a file in pending state and returns the stored item.
func (s *Store) Add(ctx context.Context, in NewItem) (*Item, error) {
	if strings.TrimSpace(in.SourcePath) == "" {
		return nil, errors.New("source path required")
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		return nil, errors.New("file name required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            source_path, file_name, display_title, size_bytes, content_type,
            detected_language, selected_language, selected_model,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SourcePath,
		fileName,
		deriveTitle(fileName),
		in.SizeBytes,
		in.ContentType,
		strings.ToLower(strings.TrimSpace(in.DetectedLanguage)),
		strings.ToLower(strings.TrimSpace(in.SelectedLanguage)),
		strings.TrimSpace(in.SelectedModel),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches one item.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM queue_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item %d: %w", id, err)
	}
	return item, nil
}

// List returns items in insertion order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := selectColumns + " FROM queue_items"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes a pending item. Items that have begun processing are
// immutable to the user except via retry; removing them is a no-op.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM queue_items WHERE id = ? AND status = ?", id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("remove queue item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearPending removes all pending items and reports how many were deleted.
func (s *Store) ClearPending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM queue_items WHERE status = ?", StatusPending)
	if err != nil {
		return 0, fmt.Errorf("clear pending items: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes completed and errored items.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM queue_items WHERE status IN (?, ?)", StatusComplete, StatusError)
	if err != nil {
		return 0, fmt.Errorf("clear terminal items: %w", err)
	}
	return res.RowsAffected()
}

// Settings carries optional per-item setting updates.
type Settings struct {
	Language *string
	Model    *string
}

// UpdateSettings adjusts language/model for a pending item. Items that
// have started carry the settings they were started with.
func (s *Store) UpdateSettings(ctx context.Context, id int64, settings Settings) (*Item, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusPending {
		return nil, ErrNotPending
	}

	language := item.SelectedLanguage
	if settings.Language != nil {
		language = strings.ToLower(strings.TrimSpace(*settings.Language))
	}
	model := item.SelectedModel
	if settings.Model != nil {
		model = strings.TrimSpace(*settings.Model)
	}

	if err := s.update(ctx, id,
		"selected_language = ?, selected_model = ?", language, model); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// SetStatus transitions an item to the given status. An optional error
// message is stored alongside (used when entering the error state).
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, errorMessage ...string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	message := ""
	if len(errorMessage) > 0 {
		message = errorMessage[0]
	}
	return s.update(ctx, id, "status = ?, error_message = ?", status, message)
}

// SetProgress updates percentage and stage for an item.
func (s *Store) SetProgress(ctx context.Context, id int64, percent int, stage string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.update(ctx, id, "progress_percent = ?, progress_stage = ?", percent, stage)
}

// SetUploadMetrics stores the display strings for upload speed and ETA.
// Only meaningful during the uploading phase of the chunked transport.
func (s *Store) SetUploadMetrics(ctx context.Context, id int64, speed, eta string) error {
	return s.update(ctx, id, "upload_speed = ?, upload_eta = ?", speed, eta)
}

// AssignTaskID records the server task identifier for an item.
func (s *Store) AssignTaskID(ctx context.Context, id int64, taskID string) error {
	return s.update(ctx, id, "task_id = ?", taskID)
}

// MarkComplete moves an item to the terminal complete state at 100%.
func (s *Store) MarkComplete(ctx context.Context, id int64) error {
	return s.update(ctx, id,
		"status = ?, progress_percent = 100, progress_stage = ?, upload_speed = '', upload_eta = ''",
		StatusComplete, "complete")
}

// MarkError moves an item to the terminal error state with a user-facing
// message and optional technical detail.
func (s *Store) MarkError(ctx context.Context, id int64, message, technicalDetail string) error {
	return s.update(ctx, id,
		"status = ?, error_message = ?, technical_detail = ?, upload_speed = '', upload_eta = ''",
		StatusError, message, technicalDetail)
}

// ResetForRetry returns an errored item to pending with error fields,
// progress, and the stale task id cleared. The item keeps its id and
// settings; a fresh task identifier is minted when it restarts.
func (s *Store) ResetForRetry(ctx context.Context, id int64) (*Item, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusError {
		return nil, ErrNotErrored
	}
	err = s.update(ctx, id,
		`status = ?, task_id = '', progress_stage = '', progress_percent = 0,
         upload_speed = '', upload_eta = '', error_message = '', technical_detail = ''`,
		StatusPending)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// NextReady returns the oldest pending item with a language selected, or
// nil when none is ready.
func (s *Store) NextReady(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` FROM queue_items
         WHERE status = ? AND selected_language != ''
         ORDER BY id ASC LIMIT 1`, StatusPending)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next ready item: %w", err)
	}
	return item, nil
}

// PendingCount reports how many items are pending.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(1) FROM queue_items WHERE status = ?", StatusPending)
}

// ReadyCount reports how many pending items have a language selected.
func (s *Store) ReadyCount(ctx context.Context) (int, error) {
	return s.count(ctx,
		"SELECT COUNT(1) FROM queue_items WHERE status = ? AND selected_language != ''",
		StatusPending)
}

// HasActiveItem reports whether any item is uploading or processing.
func (s *Store) HasActiveItem(ctx context.Context) (bool, error) {
	n, err := s.count(ctx,
		"SELECT COUNT(1) FROM queue_items WHERE status IN (?, ?)",
		StatusUploading, StatusProcessing)
	return n > 0, err
}

// HasTerminalItem reports whether any item already finished (complete or
// error); the controller uses this as the auto-continuation gate.
func (s *Store) HasTerminalItem(ctx context.Context) (bool, error) {
	n, err := s.count(ctx,
		"SELECT COUNT(1) FROM queue_items WHERE status IN (?, ?)",
		StatusComplete, StatusError)
	return n > 0, err
}

// Stats returns per-status item counts.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM queue_items GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) update(ctx context.Context, id int64, assignments string, args ...any) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	query := "UPDATE queue_items SET " + assignments + ", updated_at = ? WHERE id = ?"
	args = append(args, timestamp, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update queue item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return n, nil
}

const selectColumns = `SELECT
    id, source_path, file_name, display_title, size_bytes, content_type,
    detected_language, selected_language, selected_model, status, task_id,
    progress_stage, progress_percent, upload_speed, upload_eta,
    error_message, technical_detail, created_at, updated_at`

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var item Item
	var createdAt, updatedAt string
	err := scanner.Scan(
		&item.ID,
		&item.SourcePath,
		&item.FileName,
		&item.DisplayTitle,
		&item.SizeBytes,
		&item.ContentType,
		&item.DetectedLanguage,
		&item.SelectedLanguage,
		&item.SelectedModel,
		&item.Status,
		&item.TaskID,
		&item.ProgressStage,
		&item.ProgressPercent,
		&item.UploadSpeed,
		&item.UploadETA,
		&item.ErrorMessage,
		&item.TechnicalDetail,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if item.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
