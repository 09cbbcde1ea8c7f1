package queue

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusProcessing,
	StatusComplete,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether a status occupies the single in-flight slot.
func IsActive(status Status) bool {
	return status == StatusUploading || status == StatusProcessing
}

// IsTerminal reports whether a status ends the item lifecycle.
func IsTerminal(status Status) bool {
	return status == StatusComplete || status == StatusError
}

// Item represents a queued media file persisted in SQLite.
type Item struct {
	ID               int64
	SourcePath       string
	FileName         string
	DisplayTitle     string
	SizeBytes        int64
	ContentType      string
	DetectedLanguage string // set once at enqueue, never updated
	SelectedLanguage string
	SelectedModel    string
	Status           Status
	TaskID           string
	ProgressStage    string
	ProgressPercent  int
	UploadSpeed      string
	UploadETA        string
	ErrorMessage     string
	TechnicalDetail  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive reports whether the item occupies the single in-flight slot.
func (i Item) IsActive() bool {
	return IsActive(i.Status)
}

// IsReady reports whether the item can be started: still pending and a
// language has been chosen.
func (i Item) IsReady() bool {
	return i.Status == StatusPending && strings.TrimSpace(i.SelectedLanguage) != ""
}

// deriveTitle produces a presentable title from a media filename.
func deriveTitle(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}
