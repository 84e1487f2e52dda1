package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// migrateLegacyHistory imports repost records from the flat per-image-URL
// key scheme used by an earlier database generation. Each legacy row keyed
// by an image URL holds its repost timestamp directly; these fold into the
// consolidated reblog_history table once, after which the legacy table is
// dropped.
func (s *Store) migrateLegacyHistory(ctx context.Context) error {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'kv_entries'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("probe legacy table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin legacy migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM kv_entries`)
	if err != nil {
		return fmt.Errorf("read legacy entries: %w", err)
	}
	type legacyRow struct {
		key   string
		value string
	}
	var imported []legacyRow
	for rows.Next() {
		var row legacyRow
		if err := rows.Scan(&row.key, &row.value); err != nil {
			rows.Close()
			return fmt.Errorf("scan legacy entry: %w", err)
		}
		if strings.HasPrefix(row.key, "http://") || strings.HasPrefix(row.key, "https://") {
			imported = append(imported, row)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate legacy entries: %w", err)
	}

	for _, row := range imported {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reblog_history (image_url, recorded_at) VALUES (?, ?)
             ON CONFLICT(image_url) DO NOTHING`,
			row.key, row.value,
		); err != nil {
			return fmt.Errorf("import legacy entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE kv_entries`); err != nil {
		return fmt.Errorf("drop legacy table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit legacy migration: %w", err)
	}
	return nil
}
