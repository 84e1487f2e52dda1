package storage

import (
	"context"
	"fmt"
	"time"
)

// SetPostImages replaces the recorded image list for a post URL.
func (s *Store) SetPostImages(ctx context.Context, postURL string, images []PostImage) error {
	if postURL == "" {
		return fmt.Errorf("post URL is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin post map tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_images WHERE post_url = ?`, postURL); err != nil {
		return fmt.Errorf("replace post images: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, img := range images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_images (post_url, position, image_url, artist_url, updated_at) VALUES (?, ?, ?, ?, ?)`,
			postURL, i, img.ImageURL, nullableString(img.ArtistURL), now,
		); err != nil {
			return fmt.Errorf("insert post image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit post map: %w", err)
	}
	return nil
}

// PostImagesFor returns the recorded images for a post URL in insertion
// order, or nil when the post is unknown.
func (s *Store) PostImagesFor(ctx context.Context, postURL string) ([]PostImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_url, COALESCE(artist_url, '') FROM post_images WHERE post_url = ? ORDER BY position`, postURL)
	if err != nil {
		return nil, fmt.Errorf("post images: %w", err)
	}
	defer rows.Close()

	var images []PostImage
	for rows.Next() {
		var img PostImage
		if err := rows.Scan(&img.ImageURL, &img.ArtistURL); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// LoadPostImages returns the whole post-to-images map.
func (s *Store) LoadPostImages(ctx context.Context) (map[string][]PostImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_url, image_url, COALESCE(artist_url, '') FROM post_images ORDER BY post_url, position`)
	if err != nil {
		return nil, fmt.Errorf("load post images: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]PostImage)
	for rows.Next() {
		var (
			postURL string
			img     PostImage
		)
		if err := rows.Scan(&postURL, &img.ImageURL, &img.ArtistURL); err != nil {
			return nil, err
		}
		result[postURL] = append(result[postURL], img)
	}
	return result, rows.Err()
}

// ClearPostImages drops the whole post-to-images map and returns how many
// posts were recorded.
func (s *Store) ClearPostImages(ctx context.Context) (int64, error) {
	var posts int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT post_url) FROM post_images`).Scan(&posts); err != nil {
		return 0, fmt.Errorf("count post map: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM post_images`); err != nil {
		return 0, fmt.Errorf("clear post map: %w", err)
	}
	return posts, nil
}

// RemovePostImages deletes the record for one post URL.
func (s *Store) RemovePostImages(ctx context.Context, postURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM post_images WHERE post_url = ?`, postURL); err != nil {
		return fmt.Errorf("remove post images: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
