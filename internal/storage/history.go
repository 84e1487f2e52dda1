package storage

import (
	"context"
	"fmt"
	"math"
	"time"
)

// evictionTriggerRatio is the fraction of quota at which eviction starts.
const evictionTriggerRatio = 0.8

// evictionKeepRatio is the fraction of history entries retained, newest
// first, when eviction runs.
const evictionKeepRatio = 0.6

// RecordHistory stamps each image URL into the completed-repost history and
// then evicts old entries if usage crossed the quota trigger.
func (s *Store) RecordHistory(ctx context.Context, imageURLs []string, at time.Time) error {
	if len(imageURLs) == 0 {
		return nil
	}
	stamp := at.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, imageURL := range imageURLs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reblog_history (image_url, recorded_at) VALUES (?, ?)
             ON CONFLICT(image_url) DO UPDATE SET recorded_at = excluded.recorded_at`,
			imageURL, stamp,
		); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}

	return s.EvictIfNeeded(ctx)
}

// HistoryContains reports whether the image URL has already been reposted.
func (s *Store) HistoryContains(ctx context.Context, imageURL string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reblog_history WHERE image_url = ?`, imageURL)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("history lookup: %w", err)
	}
	return count > 0, nil
}

// ListHistory returns history entries newest first.
func (s *Store) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_url, recorded_at FROM reblog_history ORDER BY recorded_at DESC, image_url`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			imageURL    string
			recordedRaw string
		)
		if err := rows.Scan(&imageURL, &recordedRaw); err != nil {
			return nil, err
		}
		entry := HistoryEntry{ImageURL: imageURL}
		if ts, err := time.Parse(time.RFC3339Nano, recordedRaw); err == nil {
			entry.RecordedAt = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// HistoryCount returns the number of recorded images.
func (s *Store) HistoryCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reblog_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("history count: %w", err)
	}
	return count, nil
}

// EvictIfNeeded trims the history store when usage exceeds 80% of quota.
// Entries are removed oldest first until at most ceil(0.6 * N) of the
// original N remain, then further if usage is still above the trigger.
func (s *Store) EvictIfNeeded(ctx context.Context) error {
	if s.quotaBytes <= 0 {
		return nil
	}
	usage, err := s.UsageBytes(ctx)
	if err != nil {
		return err
	}
	threshold := int64(float64(s.quotaBytes) * evictionTriggerRatio)
	if usage <= threshold {
		return nil
	}

	count, err := s.HistoryCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	keep := int(math.Ceil(float64(count) * evictionKeepRatio))
	if err := s.evictOldest(ctx, count-keep); err != nil {
		return err
	}

	// The count-based pass normally lands under the trigger. If payloads are
	// unusually large it may not, so keep trimming oldest entries until it
	// does or the store is empty.
	for {
		usage, err = s.UsageBytes(ctx)
		if err != nil {
			return err
		}
		if usage <= threshold {
			return nil
		}
		remaining, err := s.HistoryCount(ctx)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
		if err := s.evictOldest(ctx, 1); err != nil {
			return err
		}
	}
}

func (s *Store) evictOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reblog_history WHERE image_url IN (
            SELECT image_url FROM reblog_history ORDER BY recorded_at ASC, image_url LIMIT ?
        )`, n)
	if err != nil {
		return fmt.Errorf("evict history: %w", err)
	}
	return nil
}
