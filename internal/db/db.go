// Package db provides the in-memory SQLite database used for diagnostics.
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

// OpenMemory opens a private in-memory database and initializes the schema.
// Its contents live only as long as the process.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would be a separate database
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Dispatch ledger - append-only record of requests sent to the controller API
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			session TEXT,
			endpoint TEXT NOT NULL,
			action TEXT,
			payload TEXT,
			response TEXT,
			error TEXT,
			elapsed_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_ts ON dispatch_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_session ON dispatch_ledger(session, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create dispatch_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
