package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Store is the sole writer to the documents/revisions/changes tables. It
// shares its *sql.DB with attachstore.Store (storedb.Open), following the
// teacher's BaselineManager.DB()-shared-with-Ledger precedent.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open runs docstore's migrations against db and returns a ready Store.
func Open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		return nil, err
	}

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// GetDocument returns the current document for (vaultID, docID).
func (s *Store) GetDocument(ctx context.Context, vaultID, docID string) (Document, bool, error) {
	return s.getDocumentTx(ctx, s.db, vaultID, docID)
}

func (s *Store) getDocumentTx(ctx context.Context, q querier, vaultID, docID string) (Document, bool, error) {
	var d Document
	var content sql.NullString

	row := q.QueryRowContext(ctx, `
		SELECT vault_id, doc_id, content, rev, deleted, created_at, updated_at
		FROM documents WHERE vault_id = ? AND doc_id = ?`, vaultID, docID)

	err := row.Scan(&d.VaultID, &d.DocID, &content, &d.Rev, &d.Deleted, &d.CreatedAt, &d.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
		return Document{}, false, nil
	case err != nil:
		return Document{}, false, fmt.Errorf("docstore: get document: %w", err)
	}

	d.Content = content.String

	return d, true, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertDocumentTx inserts or updates a document, appends a Revision and a
// Change row, all as one logical unit (§5: "the insert of a Document row
// and its Change row are a single logical unit").
func (s *Store) upsertDocumentTx(ctx context.Context, vaultID, docID, rev, content string, deleted bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.nowFunc().UnixMilli()

	var contentVal any
	if !deleted {
		contentVal = content
	}

	existing, found, err := s.getDocumentTx(ctx, tx, vaultID, docID)
	if err != nil {
		return err
	}

	createdAt := now
	if found {
		createdAt = existing.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (vault_id, doc_id, content, rev, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vault_id, doc_id) DO UPDATE SET
			content = excluded.content, rev = excluded.rev,
			deleted = excluded.deleted, updated_at = excluded.updated_at`,
		vaultID, docID, contentVal, rev, deleted, createdAt, now)
	if err != nil {
		return fmt.Errorf("docstore: upsert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (vault_id, doc_id, rev, content, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		vaultID, docID, rev, contentVal, deleted, now)
	if err != nil {
		return fmt.Errorf("docstore: insert revision: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO changes (vault_id, doc_id, rev, deleted, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		vaultID, docID, rev, deleted, now)
	if err != nil {
		return fmt.Errorf("docstore: insert change: %w", err)
	}

	return tx.Commit()
}

// getRevisionContent looks up a specific historical revision's content,
// used to resolve "_base_content" fallback via the revisions table (§4.6:
// "the client may also look up a base from the revisions table").
func (s *Store) getRevisionContent(ctx context.Context, vaultID, docID, rev string) (string, bool, error) {
	var content sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM revisions WHERE vault_id = ? AND doc_id = ? AND rev = ?`,
		vaultID, docID, rev).Scan(&content)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("docstore: get revision: %w", err)
	}

	return content.String, true, nil
}

// GetChanges returns changes with seq > since for vaultID, ascending,
// capped at limit, plus the resulting lastSeq (the largest seq in the
// batch, or since if the batch is empty).
func (s *Store) GetChanges(ctx context.Context, vaultID string, since int64, limit int) ([]Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, vault_id, doc_id, rev, deleted, created_at
		FROM changes WHERE vault_id = ? AND seq > ?
		ORDER BY seq ASC LIMIT ?`, vaultID, since, limit)
	if err != nil {
		return nil, since, fmt.Errorf("docstore: get changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	lastSeq := since

	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.VaultID, &c.DocID, &c.Rev, &c.Deleted, &c.CreatedAt); err != nil {
			return nil, since, fmt.Errorf("docstore: scan change: %w", err)
		}
		out = append(out, c)
		if c.Seq > lastSeq {
			lastSeq = c.Seq
		}
	}

	return out, lastSeq, rows.Err()
}

// Vaults returns the distinct vault IDs with at least one document,
// used by the admin stats endpoint to enumerate what to report on.
func (s *Store) Vaults(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT vault_id FROM documents ORDER BY vault_id`)
	if err != nil {
		return nil, fmt.Errorf("docstore: list vaults: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("docstore: scan vault: %w", err)
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

// GetLatestSeq returns the document change-feed tip for vaultID (0 if the
// vault has no changes yet).
func (s *Store) GetLatestSeq(ctx context.Context, vaultID string) (int64, error) {
	var seq sql.NullInt64

	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes WHERE vault_id = ?`, vaultID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("docstore: get latest seq: %w", err)
	}

	return seq.Int64, nil
}

// DeleteDocument soft-deletes a document: an upsert with content=null,
// deleted=1 (§4.6).
func (s *Store) DeleteDocument(ctx context.Context, vaultID, docID, rev string) error {
	return s.upsertDocumentTx(ctx, vaultID, docID, rev, "", true)
}

// UpsertDocument inserts or updates a document under an already-decided
// rev, appending a Revision and a Change row. Used directly by the single-
// document PUT handler (§6); BulkUpsert (bulk.go) drives the same
// primitive for the batch path.
func (s *Store) UpsertDocument(ctx context.Context, vaultID, docID, rev, content string, deleted bool) error {
	return s.upsertDocumentTx(ctx, vaultID, docID, rev, content, deleted)
}

// Cleanup prunes Revision and Change rows older than maxAge, never
// removing the latest revision per document (§3's cleanup invariant, the
// concrete hook the distilled spec names but never implements). Mirrors
// the teacher's CleanupTombstones(ctx, retentionDays) idiom.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (revisionsRemoved, changesRemoved int64, err error) {
	cutoff := s.nowFunc().Add(-maxAge).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("docstore: cleanup begin tx: %w", err)
	}
	defer tx.Rollback()

	revRes, err := tx.ExecContext(ctx, `
		DELETE FROM revisions
		WHERE created_at < ? AND rev NOT IN (
			SELECT rev FROM documents d
			WHERE d.vault_id = revisions.vault_id AND d.doc_id = revisions.doc_id
		)`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("docstore: cleanup revisions: %w", err)
	}

	changeRes, err := tx.ExecContext(ctx, `
		DELETE FROM changes
		WHERE created_at < ? AND seq NOT IN (
			SELECT MAX(seq) FROM changes GROUP BY vault_id, doc_id
		)`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("docstore: cleanup changes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("docstore: cleanup commit: %w", err)
	}

	revisionsRemoved, _ = revRes.RowsAffected()
	changesRemoved, _ = changeRes.RowsAffected()

	return revisionsRemoved, changesRemoved, nil
}
