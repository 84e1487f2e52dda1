package storage_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"nonalt/internal/testsupport"
)

func TestOpenMigratesLegacyFlatKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}

	// Seed a previous-generation database: a flat key-value table where
	// image URLs map directly to repost timestamps.
	dbPath := filepath.Join(cfg.Paths.DataDir, "nonalt.db")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE kv_entries (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`INSERT INTO kv_entries (key, value) VALUES
            ('https://i.example/old-a.png', '2023-06-01T00:00:00Z'),
            ('https://i.example/old-b.png', '2023-06-02T00:00:00Z'),
            ('settings.version', '3')`,
	}
	for _, stmt := range stmts {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("seed legacy db: %v", err)
		}
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("close raw db: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, url := range []string{"https://i.example/old-a.png", "https://i.example/old-b.png"} {
		ok, err := store.HistoryContains(ctx, url)
		if err != nil {
			t.Fatalf("HistoryContains: %v", err)
		}
		if !ok {
			t.Fatalf("expected legacy record %s in history", url)
		}
	}

	count, err := store.HistoryCount(ctx)
	if err != nil {
		t.Fatalf("HistoryCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("non-URL legacy keys should be dropped, got %d entries", count)
	}

	// The legacy table is gone, so reopening must not re-import.
	store.Close()
	reopened := testsupport.MustOpenStore(t, cfg)
	count, err = reopened.HistoryCount(ctx)
	if err != nil {
		t.Fatalf("HistoryCount after reopen: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected stable history after reopen, got %d", count)
	}
}
