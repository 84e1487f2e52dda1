package testsupport

import (
	"context"
	"testing"

	"nonalt/internal/config"
	"nonalt/internal/storage"
)

// MustOpenStore opens a storage.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *storage.Store {
	t.Helper()

	store, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a queue entry for tests using the provided store.
func Enqueue(t testing.TB, store *storage.Store, postURL string, imageURLs ...string) *storage.QueueEntry {
	t.Helper()

	entry, err := store.Enqueue(context.Background(), postURL, imageURLs)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return entry
}
