package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// schema defines the database tables.
const schema = `
CREATE TABLE IF NOT EXISTS communities (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    updated_at DATETIME,
    external_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    name TEXT NOT NULL,
    logo TEXT NOT NULL DEFAULT '',
    default_description TEXT NOT NULL DEFAULT '',
    custom_description TEXT NOT NULL DEFAULT '',
    monitored INTEGER NOT NULL DEFAULT 0,
    configured INTEGER NOT NULL DEFAULT 0,
    url TEXT NOT NULL DEFAULT '',
    members_count INTEGER NOT NULL DEFAULT 0,
    tags TEXT NOT NULL DEFAULT '',
    private_channel_id TEXT NOT NULL DEFAULT '',
    public_channel_id TEXT NOT NULL DEFAULT '',
    events_url TEXT NOT NULL DEFAULT '',
    UNIQUE(external_id, platform)
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    updated_at DATETIME,
    created_at_external DATETIME,
    external_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    session_image TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    location_web_session_url TEXT NOT NULL DEFAULT '',
    location_session_url TEXT NOT NULL DEFAULT '',
    start_time DATETIME NOT NULL,
    end_time DATETIME,
    community_id TEXT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
    tags TEXT NOT NULL DEFAULT '',
    scheduler_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'READY'
);

CREATE TABLE IF NOT EXISTS streams (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    updated_at DATETIME,
    external_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    start_time DATETIME NOT NULL,
    end_time DATETIME NOT NULL,
    community_id TEXT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
    tags TEXT NOT NULL DEFAULT '',
    scheduler_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'READY'
);

CREATE INDEX IF NOT EXISTS idx_events_community ON events(community_id);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);
CREATE INDEX IF NOT EXISTS idx_streams_community ON streams(community_id);
`

// NewDatabase creates a new database connection and initializes the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func NewDatabase(dbPath string) (*Database, error) {
	inMemory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")

	if !inMemory {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Store returns a store bound directly to the connection pool.
func (d *Database) Store() *Store {
	return &Store{ext: d.DB}
}

// WithTx runs fn with a store bound to a single transaction. The transaction
// is committed when fn returns nil and rolled back wholesale otherwise. Each
// collection run owns exactly one such session.
func (d *Database) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Store{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
