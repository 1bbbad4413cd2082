// Package storage opens the single sqlite file that backs persisted patrol
// state, the knowledge tables and the usage log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open creates/opens the store at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One patrol process at a time; a single connection keeps sqlite writer
	// locking simple and makes ":memory:" databases usable in tests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS state_blobs (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS qa_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			point TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS doc_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			major_category TEXT NOT NULL DEFAULT '',
			minor_category TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			point TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS usage_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at_ms INTEGER NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS usage_log_created_idx ON usage_log(created_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init store schema: %w", err)
		}
	}
	return nil
}

// Ping is used by the status command.
func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
