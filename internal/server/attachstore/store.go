package attachstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Store is the sole writer to the attachments/attachment_changes tables,
// sharing its *sql.DB with docstore.Store.
type Store struct {
	db      *sql.DB
	blobs   *blobStore
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open runs attachstore's migrations against db and returns a ready Store
// backed by blobRoot for object bytes.
func Open(ctx context.Context, db *sql.DB, blobRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		return nil, err
	}

	return &Store{db: db, blobs: newBlobStore(blobRoot), logger: logger, nowFunc: time.Now}, nil
}

// Put implements §4.7: validates bytes and declared hash/length, content-
// addresses the object, and short-circuits to unchanged:true when an
// identical, non-deleted object already exists under that id.
func (s *Store) Put(ctx context.Context, vaultID, p, contentType string, data []byte, declaredHash string, declaredLength int64) (PutResult, error) {
	if err := validatePath(p); err != nil {
		return PutResult{}, err
	}

	if int64(len(data)) > MaxSize {
		return PutResult{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	sum := sha256Hex(data)

	if declaredHash != "" && declaredHash != sum {
		return PutResult{}, ErrHashMismatch
	}
	if declaredLength > 0 && declaredLength != int64(len(data)) {
		return PutResult{}, ErrLengthMismatch
	}

	ext := path.Ext(p)
	id := vaultID + ":" + sum + ext
	objectKey := vaultID + "/" + sum + ext

	existing, found, err := s.getByID(ctx, id)
	if err != nil {
		return PutResult{}, err
	}

	if found && !existing.Deleted {
		return PutResult{ID: id, Hash: sum, Size: existing.Size, ContentType: existing.ContentType, Unchanged: true}, nil
	}

	if !s.blobs.exists(objectKey) {
		if err := s.blobs.write(objectKey, data); err != nil {
			return PutResult{}, err
		}
	}

	now := s.nowFunc().UnixMilli()
	createdAt := now
	if found {
		createdAt = existing.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, vault_id, path, content_type, size, hash, object_key, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, content_type = excluded.content_type, size = excluded.size,
			deleted = 0, updated_at = excluded.updated_at`,
		id, vaultID, p, contentType, len(data), sum, objectKey, createdAt, now)
	if err != nil {
		return PutResult{}, fmt.Errorf("attachstore: upsert metadata: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO attachment_changes (vault_id, id, path, hash, deleted, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`, vaultID, id, p, sum, now); err != nil {
		return PutResult{}, fmt.Errorf("attachstore: insert change: %w", err)
	}

	return PutResult{ID: id, Hash: sum, Size: int64(len(data)), ContentType: contentType}, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// RequireVaultID enforces "all by-id routes must assert id begins with
// v + ':'" (§4.7).
func RequireVaultID(vaultID, id string) error {
	if !strings.HasPrefix(id, vaultID+":") {
		return ErrWrongVault
	}
	return nil
}

func (s *Store) getByID(ctx context.Context, id string) (Attachment, bool, error) {
	var a Attachment

	err := s.db.QueryRowContext(ctx, `
		SELECT id, vault_id, path, content_type, size, hash, object_key, deleted, created_at, updated_at
		FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &a.VaultID, &a.Path, &a.ContentType, &a.Size, &a.Hash, &a.ObjectKey, &a.Deleted, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
		return Attachment{}, false, nil
	case err != nil:
		return Attachment{}, false, fmt.Errorf("attachstore: get by id: %w", err)
	}

	return a, true, nil
}

// GetMetadata returns an attachment's metadata by id, scoped to vaultID.
func (s *Store) GetMetadata(ctx context.Context, vaultID, id string) (Attachment, bool, error) {
	if err := RequireVaultID(vaultID, id); err != nil {
		return Attachment{}, false, err
	}

	return s.getByID(ctx, id)
}

// GetContent opens the blob bytes for id, scoped to vaultID.
func (s *Store) GetContent(ctx context.Context, vaultID, id string) (io.ReadCloser, Attachment, error) {
	a, found, err := s.GetMetadata(ctx, vaultID, id)
	if err != nil {
		return nil, Attachment{}, err
	}
	if !found || a.Deleted {
		return nil, Attachment{}, sql.ErrNoRows
	}

	r, err := s.blobs.read(a.ObjectKey)
	if err != nil {
		return nil, Attachment{}, err
	}

	return r, a, nil
}

// Delete soft-deletes the attachment identified by id, appending an
// AttachmentChange.
func (s *Store) Delete(ctx context.Context, vaultID, id string) error {
	if err := RequireVaultID(vaultID, id); err != nil {
		return err
	}

	a, found, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return sql.ErrNoRows
	}

	now := s.nowFunc().UnixMilli()

	if _, err := s.db.ExecContext(ctx, `UPDATE attachments SET deleted = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("attachstore: soft delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO attachment_changes (vault_id, id, path, hash, deleted, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`, vaultID, id, a.Path, a.Hash, now); err != nil {
		return fmt.Errorf("attachstore: insert delete change: %w", err)
	}

	return nil
}

// GetChanges mirrors docstore.GetChanges for the attachment change feed.
func (s *Store) GetChanges(ctx context.Context, vaultID string, since int64, limit int) ([]Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, vault_id, id, path, hash, deleted, created_at
		FROM attachment_changes WHERE vault_id = ? AND seq > ?
		ORDER BY seq ASC LIMIT ?`, vaultID, since, limit)
	if err != nil {
		return nil, since, fmt.Errorf("attachstore: get changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	lastSeq := since

	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.VaultID, &c.ID, &c.Path, &c.Hash, &c.Deleted, &c.CreatedAt); err != nil {
			return nil, since, fmt.Errorf("attachstore: scan change: %w", err)
		}
		out = append(out, c)
		if c.Seq > lastSeq {
			lastSeq = c.Seq
		}
	}

	return out, lastSeq, rows.Err()
}

// GetLatestSeq returns the attachment change-feed tip for vaultID.
func (s *Store) GetLatestSeq(ctx context.Context, vaultID string) (int64, error) {
	var seq sql.NullInt64

	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM attachment_changes WHERE vault_id = ?`, vaultID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("attachstore: get latest seq: %w", err)
	}

	return seq.Int64, nil
}
