// Package db persists tasks and result records in sqlite. Persistence is
// optional: the orchestrator runs fully in-memory when no store is
// attached, and mirrors records here when one is.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path. Schema
// management is separate; run MigrateUp before first use.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Workers and the monitor share one handle; WAL keeps readers from
	// blocking the collector's writes.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &DB{db}, nil
}
