// Package storage persists extraction results in SQLite so that anchors
// can be resolved across files and runs.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is written to cache_metadata when the schema is created.
const SchemaVersion = "1"

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for a private in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases and PRAGMAs consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if version == "0" {
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// CreateSchema creates all tables and indexes in one transaction.
//
// Schema includes:
//   - runs: one row per extraction run
//   - files: one row per extracted file, tagged with the run that wrote it
//   - symbols: extracted symbols keyed by (file_path, anchor)
//   - cache_metadata: schema version and bookkeeping
//
// Must be called with SQLite PRAGMA foreign_keys = ON.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"runs", createRunsTable},
		{"files", createFilesTable},
		{"symbols", createSymbolsTable},
		{"cache_metadata", createCacheMetadataTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		"INSERT INTO cache_metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)",
		SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap cache_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion retrieves the schema version from cache_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check cache_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil // New database
	}

	var version string
	err = db.QueryRow("SELECT value FROM cache_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in cache_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// Table DDL constants

const createRunsTable = `
CREATE TABLE runs (
    run_id TEXT PRIMARY KEY,                     -- UUID
    root TEXT NOT NULL,                          -- Absolute root directory
    started_at TEXT NOT NULL,                    -- ISO 8601
    finished_at TEXT,                            -- NULL while running
    file_count INTEGER NOT NULL DEFAULT 0,
    symbol_count INTEGER NOT NULL DEFAULT 0,
    skipped_count INTEGER NOT NULL DEFAULT 0
)
`

const createFilesTable = `
CREATE TABLE files (
    file_path TEXT PRIMARY KEY,                  -- Relative path from root, slash separated
    language TEXT NOT NULL,                      -- ruby, python
    file_hash TEXT NOT NULL,                     -- SHA-256 for change detection
    size_bytes INTEGER NOT NULL DEFAULT 0,
    symbol_count INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL,
    extracted_at TEXT NOT NULL,                  -- ISO 8601
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
)
`

const createSymbolsTable = `
CREATE TABLE symbols (
    file_path TEXT NOT NULL,
    anchor TEXT NOT NULL,                        -- Unique within the file
    ordinal INTEGER NOT NULL,                    -- Declaration order within the file
    path_json TEXT NOT NULL,                     -- JSON array of path segments
    qualified_name TEXT NOT NULL,                -- Segments joined with ::
    name TEXT NOT NULL,
    kind TEXT NOT NULL,                          -- module, class, constant, attribute, method
    doc TEXT NOT NULL DEFAULT '',
    line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    doc_line INTEGER NOT NULL DEFAULT 0,
    mode TEXT NOT NULL DEFAULT '',
    initializer INTEGER NOT NULL DEFAULT 0,
    value TEXT NOT NULL DEFAULT '',
    visibility TEXT NOT NULL DEFAULT '',
    singleton INTEGER NOT NULL DEFAULT 0,
    fingerprint TEXT NOT NULL,
    PRIMARY KEY (file_path, anchor),
    FOREIGN KEY (file_path) REFERENCES files(file_path) ON DELETE CASCADE
)
`

const createCacheMetadataTable = `
CREATE TABLE cache_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

var indexes = []string{
	"CREATE INDEX idx_symbols_name ON symbols(name)",
	"CREATE INDEX idx_symbols_kind ON symbols(kind)",
	"CREATE INDEX idx_symbols_fingerprint ON symbols(fingerprint)",
	"CREATE INDEX idx_files_run ON files(run_id)",
}
