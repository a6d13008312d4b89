// Package attachstore is the server's content-addressed attachment store
// (C7): blob bytes under objectKey = vaultId/hash+ext on a configurable
// root directory, metadata in the same SQLite database as docstore (C6).
package attachstore

import "errors"

// Validation sentinel errors, mapped to HTTP status by the API layer.
var (
	ErrHashMismatch   = errors.New("attachstore: declared hash does not match content")
	ErrLengthMismatch = errors.New("attachstore: declared length does not match content")
	ErrTooLarge       = errors.New("attachstore: content exceeds maximum attachment size")
	ErrInvalidPath    = errors.New("attachstore: invalid attachment path")
	ErrWrongVault     = errors.New("attachstore: attachment id does not belong to vault")
)

// MaxSize is the upload size cap from §4.7 (100 MiB).
const MaxSize = 100 * 1024 * 1024

// Attachment is the current metadata for one stored object.
type Attachment struct {
	ID          string
	VaultID     string
	Path        string
	ContentType string
	Size        int64
	Hash        string
	ObjectKey   string
	Deleted     bool
	CreatedAt   int64
	UpdatedAt   int64
}

// Change is one row of the attachment change feed (AttachmentChange, §3).
type Change struct {
	Seq       int64
	VaultID   string
	ID        string
	Path      string
	Hash      string
	Deleted   bool
	CreatedAt int64
}

// PutResult is the outcome of Put, matching §4.7/§6's PUT response shape.
type PutResult struct {
	ID          string
	Hash        string
	Size        int64
	ContentType string
	Unchanged   bool
}
