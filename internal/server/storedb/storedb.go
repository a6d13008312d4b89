// Package storedb opens the single SQLite database shared by the document
// store (C6) and the attachment store's metadata (C7), mirroring the
// teacher's BaselineManager.DB() being shared with its Ledger in
// internal/sync/engine.go: one sole-writer connection, two schemas.
package storedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the server's SQLite database at
// dbPath under the sole-writer discipline used throughout this codebase.
// Callers run their own package's migrations against the returned handle.
func Open(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storedb: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}
