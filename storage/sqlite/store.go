// Copyright 2025 OpenCivic Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	extracted_at DATETIME NOT NULL,
	payload TEXT NOT NULL,
	stored_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(category, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_records_category_stored
	ON records(category, stored_at DESC);
`

// Store is the durable relational backend on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.DurableStore = (*Store)(nil)

// Open opens (or creates) the durable store in dataDir and applies the
// schema. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (storage.DurableStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "datahub.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, logger: slog.Default().With("backend", "durable")}, nil
}

// Save persists one record. The (category, content_hash) pair is unique, so
// re-saving an identical record updates the existing row in place and
// returns its ID. This makes whole-batch re-submission idempotent.
func (s *Store) Save(ctx context.Context, category string, record *core.Record) (int64, error) {
	payload, err := storage.MarshalRecord(record)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO records (category, content_hash, extracted_at, payload, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category, content_hash)
			DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at
		RETURNING id`,
		category, record.ContentHash, record.ExtractedAt.UTC(), string(payload), time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("saving record: %w", err)
	}
	return id, nil
}

// QueryRecent returns up to limit records for the category, most recently
// stored first.
func (s *Store) QueryRecent(ctx context.Context, category string, limit int) ([]*core.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM records
		WHERE category = ?
		ORDER BY stored_at DESC, id DESC
		LIMIT ?`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		record, err := storage.UnmarshalRecord([]byte(payload))
		if err != nil {
			s.logger.Warn("skipping undecodable row", "category", category, "err", err)
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountByCategory returns the number of stored rows for the category.
func (s *Store) CountByCategory(ctx context.Context, category string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE category = ?`, category).Scan(&count)
	return count, err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
