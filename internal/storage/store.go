package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"nonalt/internal/config"
)

// Store manages preflight persistence backed by SQLite: the pending reblog
// queue, the completed-repost history, and the post-to-images map.
type Store struct {
	db         *sql.DB
	path       string
	quotaBytes int64
}

// Open initializes or connects to the preflight database and applies
// migrations, including the one-time import of legacy flat-key history
// records when an old database generation is detected.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "nonalt.db")
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

	store := &Store{db: db, path: dbPath, quotaBytes: cfg.Storage.QuotaBytes}
	ctx := context.Background()
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.migrateLegacyHistory(ctx); err != nil {
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

// QuotaBytes returns the configured storage quota.
func (s *Store) QuotaBytes() int64 {
	return s.quotaBytes
}

// UsageBytes approximates the persisted payload size the way a flat
// key-value store would account it: the byte length of every key and value
// across the three stores.
func (s *Store) UsageBytes(ctx context.Context) (int64, error) {
	var queueBytes, historyBytes, postBytes sql.NullInt64

	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(q.post_url)) + (SELECT COALESCE(SUM(LENGTH(image_url)), 0) FROM queue_images), 0) FROM reblog_queue q`)
	if err := row.Scan(&queueBytes); err != nil {
		return 0, fmt.Errorf("queue usage: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(image_url) + LENGTH(recorded_at)), 0) FROM reblog_history`)
	if err := row.Scan(&historyBytes); err != nil {
		return 0, fmt.Errorf("history usage: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(post_url) + LENGTH(image_url) + LENGTH(COALESCE(artist_url, ''))), 0) FROM post_images`)
	if err := row.Scan(&postBytes); err != nil {
		return 0, fmt.Errorf("post map usage: %w", err)
	}

	return queueBytes.Int64 + historyBytes.Int64 + postBytes.Int64, nil
}

// Summary aggregates store state for diagnostic output.
type Summary struct {
	QueueLength  int
	HistoryCount int
	PostMapCount int
	UsageBytes   int64
	QuotaBytes   int64
}

// Summarize reports queue depth, history size, post-map size, and usage
// against quota.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{QuotaBytes: s.quotaBytes}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM reblog_queue`, &summary.QueueLength},
		{`SELECT COUNT(1) FROM reblog_history`, &summary.HistoryCount},
		{`SELECT COUNT(DISTINCT post_url) FROM post_images`, &summary.PostMapCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Summary{}, fmt.Errorf("summarize: %w", err)
		}
	}

	usage, err := s.UsageBytes(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary.UsageBytes = usage
	return summary, nil
}
