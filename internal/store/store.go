// Package store persists editions, pages, items, and search state in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// Sentinel errors surfaced to callers.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEdition = errors.New("edition with identical content already exists")
	ErrRunActive        = errors.New("another run is already active for this edition")
)

// Schema for all broadsheet tables. Applied on Open.
const Schema = `
CREATE TABLE IF NOT EXISTS editions (
	id TEXT PRIMARY KEY,
	newspaper_name TEXT NOT NULL,
	edition_date TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	total_pages INTEGER NOT NULL DEFAULT 0,
	processed_pages INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	archive_status TEXT NOT NULL DEFAULT 'NOT_SCHEDULED',
	storage_backend TEXT NOT NULL DEFAULT '',
	storage_key TEXT NOT NULL DEFAULT '',
	cover_image_key TEXT NOT NULL DEFAULT '',
	active_run_id TEXT NOT NULL DEFAULT '',
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_editions_hash ON editions(content_hash);
CREATE INDEX IF NOT EXISTS idx_editions_paper_date ON editions(newspaper_name, edition_date);

CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	edition_id TEXT NOT NULL REFERENCES editions(id),
	page_number INTEGER NOT NULL,
	status TEXT NOT NULL,
	char_count INTEGER NOT NULL DEFAULT 0,
	ocr_used INTEGER NOT NULL DEFAULT 0,
	ocr_engine TEXT NOT NULL DEFAULT '',
	ocr_confidence INTEGER,
	image_key TEXT NOT NULL DEFAULT '',
	extracted_text TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE(edition_id, page_number)
);
CREATE INDEX IF NOT EXISTS idx_pages_edition ON pages(edition_id);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	edition_id TEXT NOT NULL REFERENCES editions(id),
	page_id TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	item_type TEXT NOT NULL,
	subtype TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	bounds TEXT NOT NULL DEFAULT '{}',
	entities TEXT NOT NULL DEFAULT '{}',
	structured_data TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_edition ON items(edition_id);
CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type, subtype);

CREATE TABLE IF NOT EXISTS story_groups (
	id TEXT PRIMARY KEY,
	edition_id TEXT NOT NULL REFERENCES editions(id),
	title TEXT NOT NULL DEFAULT '',
	pages TEXT NOT NULL DEFAULT '[]',
	item_ids TEXT NOT NULL DEFAULT '[]',
	excerpt TEXT NOT NULL DEFAULT '',
	full_text TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_story_groups_edition ON story_groups(edition_id);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	color TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS item_categories (
	item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	confidence INTEGER NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY(item_id, category_id)
);

CREATE TABLE IF NOT EXISTS extraction_runs (
	id TEXT PRIMARY KEY,
	edition_id TEXT NOT NULL REFERENCES editions(id),
	version TEXT NOT NULL,
	trigger_kind TEXT NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	stats TEXT NOT NULL DEFAULT '{}',
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_edition ON extraction_runs(edition_id, started_at);

CREATE TABLE IF NOT EXISTS saved_searches (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	query TEXT NOT NULL,
	item_types TEXT NOT NULL DEFAULT '[]',
	date_from TEXT NOT NULL DEFAULT '',
	date_to TEXT NOT NULL DEFAULT '',
	match_count INTEGER NOT NULL DEFAULT 0,
	last_run TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single writer connection avoids
	// SQLITE_BUSY under concurrent edition processing.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for components that maintain their own
// tables on the same database (the FTS index backend).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the canonical timestamp representation used in all tables.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
