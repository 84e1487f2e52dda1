package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Enqueue appends a post and its matched image URLs to the tail of the
// pending repost queue. Enqueuing a post URL that is already queued is an
// error; the caller's dedup gate should have filtered it.
func (s *Store) Enqueue(ctx context.Context, postURL string, imageURLs []string) (*QueueEntry, error) {
	if postURL == "" {
		return nil, errors.New("post URL is empty")
	}
	if len(imageURLs) == 0 {
		return nil, errors.New("no image URLs to enqueue")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reblog_queue (post_url, enqueued_at) VALUES (?, ?)`,
		postURL, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	for i, imageURL := range imageURLs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue_images (queue_id, position, image_url) VALUES (?, ?, ?)`,
			id, i, imageURL,
		); err != nil {
			return nil, fmt.Errorf("insert queue image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return s.queueEntryByID(ctx, id)
}

// PeekQueue returns the head of the queue without removing it, or nil when
// the queue is empty.
func (s *Store) PeekQueue(ctx context.Context) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM reblog_queue ORDER BY id LIMIT 1`)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	return s.queueEntryByID(ctx, id)
}

// DequeueHead removes and returns the head of the queue, or nil when the
// queue is empty.
func (s *Store) DequeueHead(ctx context.Context) (*QueueEntry, error) {
	entry, err := s.PeekQueue(ctx)
	if err != nil || entry == nil {
		return entry, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reblog_queue WHERE id = ?`, entry.ID); err != nil {
		return nil, fmt.Errorf("dequeue head: %w", err)
	}
	return entry, nil
}

// RemoveQueued deletes the queue entry for a post URL. It reports whether an
// entry was removed.
func (s *Store) RemoveQueued(ctx context.Context, postURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reblog_queue WHERE post_url = ?`, postURL)
	if err != nil {
		return false, fmt.Errorf("remove queued: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListQueue returns all pending entries in FIFO order.
func (s *Store) ListQueue(ctx context.Context) ([]*QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, post_url, enqueued_at FROM reblog_queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.ImageURLs, err = s.queueImages(ctx, entry.ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ClearQueue removes every pending entry and returns how many were deleted.
func (s *Store) ClearQueue(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reblog_queue`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// QueueContainsImage reports whether any pending entry claims the image URL.
func (s *Store) QueueContainsImage(ctx context.Context, imageURL string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_images WHERE image_url = ?`, imageURL)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("queue image lookup: %w", err)
	}
	return count > 0, nil
}

// QueueContainsPost reports whether the post URL is already queued.
func (s *Store) QueueContainsPost(ctx context.Context, postURL string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reblog_queue WHERE post_url = ?`, postURL)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("queue post lookup: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queueEntryByID(ctx context.Context, id int64) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, post_url, enqueued_at FROM reblog_queue WHERE id = ?`, id)
	entry, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	if entry.ImageURLs, err = s.queueImages(ctx, entry.ID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) queueImages(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT image_url FROM queue_images WHERE queue_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("queue images: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func scanQueueEntry(scanner interface{ Scan(dest ...any) error }) (*QueueEntry, error) {
	var (
		id          int64
		postURL     string
		enqueuedRaw string
	)
	if err := scanner.Scan(&id, &postURL, &enqueuedRaw); err != nil {
		return nil, err
	}
	entry := &QueueEntry{ID: id, PostURL: postURL}
	if ts, err := time.Parse(time.RFC3339Nano, enqueuedRaw); err == nil {
		entry.EnqueuedAt = ts
	}
	return entry, nil
}
