// Package basestore is the durable base-content store (C3): a per-path
// mapping from path to the last content a client and server agreed on,
// fronted by an in-memory LRU. Grounded on the teacher's BaselineManager
// sole-writer SQLite pattern (internal/sync/baseline.go).
package basestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxAge is the age threshold past which an unaccessed entry is
// swept by Cleanup, per §4.3's "entries older than 90 days without access
// are swept".
const DefaultMaxAge = 90 * 24 * time.Hour

// Store is the sole writer to the base-content database. All durable
// operations degrade to a logged no-op (writes) or a logged miss (reads)
// on error: "a failing store must not fail a sync" (§4.3).
type Store struct {
	db      *sql.DB
	lru     *lru
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if necessary) the SQLite-backed base-content store
// at dbPath and runs pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("basestore: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		lru:     newLRU(lruCapacity),
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored content for path. An LRU hit bumps recency
// without touching the database; a miss falls through to the durable
// store, fills the LRU, and asynchronously refreshes accessed_at. Any
// durable-store error is logged and treated as a miss.
func (s *Store) Get(ctx context.Context, path string) (string, bool) {
	if content, ok := s.lru.get(path); ok {
		s.touchAsync(path)
		return content, true
	}

	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM base_content WHERE path = ?`, path).Scan(&content)
	switch {
	case err == sql.ErrNoRows:
		return "", false
	case err != nil:
		s.logger.Warn("basestore: get failed, treating as miss", slog.String("path", path), slog.Any("error", err))
		return "", false
	}

	s.lru.add(path, content)
	s.touchAsync(path)

	return content, true
}

// touchAsync refreshes accessed_at without blocking the caller; the store's
// durability boundary for access-time bookkeeping is best-effort.
func (s *Store) touchAsync(path string) {
	go func() {
		_, err := s.db.Exec(`UPDATE base_content SET accessed_at = ? WHERE path = ?`, s.nowFunc().UnixMilli(), path)
		if err != nil {
			s.logger.Warn("basestore: touch failed", slog.String("path", path), slog.Any("error", err))
		}
	}()
}

// Set writes content for path (write-through: database first, then LRU)
// with the current time as accessed_at. A database error is logged and
// swallowed — the LRU is still updated so within-process reads stay
// correct even if durability briefly failed.
func (s *Store) Set(ctx context.Context, path, content string) {
	now := s.nowFunc().UnixMilli()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO base_content (path, content, accessed_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET content = excluded.content, accessed_at = excluded.accessed_at`,
		path, content, now)
	if err != nil {
		s.logger.Warn("basestore: set failed", slog.String("path", path), slog.Any("error", err))
	}

	s.lru.add(path, content)
}

// Delete removes the entry for path from both the LRU and the durable
// store.
func (s *Store) Delete(ctx context.Context, path string) {
	s.lru.remove(path)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM base_content WHERE path = ?`, path); err != nil {
		s.logger.Warn("basestore: delete failed", slog.String("path", path), slog.Any("error", err))
	}
}

// Has reports whether path has a stored entry, without materializing its
// content into the LRU.
func (s *Store) Has(ctx context.Context, path string) bool {
	if _, ok := s.lru.get(path); ok {
		return true
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM base_content WHERE path = ?`, path).Scan(&exists)
	if err != nil {
		return false
	}

	return true
}

// Clear empties both the LRU and the durable store.
func (s *Store) Clear(ctx context.Context) {
	s.lru.clear()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM base_content`); err != nil {
		s.logger.Warn("basestore: clear failed", slog.Any("error", err))
	}
}

// Cleanup deletes entries whose accessed_at is older than maxAge and
// reports how many rows were removed. Entries still resident in the LRU
// but deleted durably are also evicted from the LRU so the two layers
// cannot disagree.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.nowFunc().Add(-maxAge).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM base_content WHERE accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("basestore: cleanup query: %w", err)
	}

	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, fmt.Errorf("basestore: cleanup scan: %w", err)
		}
		stale = append(stale, p)
	}
	rows.Close()

	res, err := s.db.ExecContext(ctx, `DELETE FROM base_content WHERE accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("basestore: cleanup delete: %w", err)
	}

	for _, p := range stale {
		s.lru.remove(p)
	}

	n, _ := res.RowsAffected()

	return int(n), nil
}
