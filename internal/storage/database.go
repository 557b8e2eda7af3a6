package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// schema defines the database tables.
const schema = `
CREATE TABLE IF NOT EXISTS contributors (
    username TEXT PRIMARY KEY,
    pr_daily INTEGER NOT NULL DEFAULT 0,
    pr_weekly INTEGER NOT NULL DEFAULT 0,
    pr_monthly INTEGER NOT NULL DEFAULT 0,
    pr_all_time INTEGER NOT NULL DEFAULT 0,
    issue_daily INTEGER NOT NULL DEFAULT 0,
    issue_weekly INTEGER NOT NULL DEFAULT 0,
    issue_monthly INTEGER NOT NULL DEFAULT 0,
    issue_all_time INTEGER NOT NULL DEFAULT 0,
    commit_daily INTEGER NOT NULL DEFAULT 0,
    commit_weekly INTEGER NOT NULL DEFAULT 0,
    commit_monthly INTEGER NOT NULL DEFAULT 0,
    commit_all_time INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_active TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS seen_events (
    username TEXT NOT NULL,
    event_id TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (username, event_id)
);

CREATE TABLE IF NOT EXISTS rankings (
    category TEXT NOT NULL,
    period TEXT NOT NULL,
    position INTEGER NOT NULL,
    username TEXT NOT NULL,
    count INTEGER NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (category, period, position)
);

CREATE TABLE IF NOT EXISTS documents (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS identity_links (
    discord_id TEXT PRIMARY KEY,
    github_username TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS role_state (
    discord_id TEXT PRIMARY KEY,
    roles TEXT NOT NULL DEFAULT '[]',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_locks (
    scope TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    acquired_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    status TEXT NOT NULL DEFAULT 'running',
    summary TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_seen_events_user ON seen_events(username);
CREATE INDEX IF NOT EXISTS idx_rankings_user ON rankings(username);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// NewDatabase creates a new database connection and initializes the schema.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Single writer; concurrent upserts are serialized by the driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
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
