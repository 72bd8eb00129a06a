// Package db opens the castlightd SQLite database and creates its schema.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Ledger writers share one connection; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Transition ledger - append-only audit trail, never read back into state
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transition_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			session_id TEXT,
			outcome TEXT,
			device TEXT,
			group_id TEXT,
			message TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_transition_ts ON transition_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_transition_session ON transition_ledger(session_id)
			WHERE session_id IS NOT NULL AND session_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create transition_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
