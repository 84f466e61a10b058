// Package db persists beat sessions and their events in SQLite.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle. The schema is migrated on open.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and applies any
// pending migrations.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serialises writers; one connection keeps per-connection
	// pragmas consistent.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }
