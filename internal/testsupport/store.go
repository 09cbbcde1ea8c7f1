package testsupport

import (
	"context"
	"testing"

	"whisperq/internal/config"
	"whisperq/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a media file entry for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, name string, size int64, language string) *queue.Item {
	t.Helper()

	item, err := store.Add(context.Background(), queue.NewItem{
		SourcePath:       "/media/" + name,
		FileName:         name,
		SizeBytes:        size,
		ContentType:      "audio/mpeg",
		SelectedLanguage: language,
		SelectedModel:    "large-v3",
	})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return item
}
