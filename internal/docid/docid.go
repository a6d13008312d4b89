// Package docid derives a document's (vaultId, docId) identity from a
// vault-relative file path, per spec.md §3: "docId is the file path with
// any .md suffix stripped and path separators normalized to '/'".
// Grounded on the teacher's internal/driveid normalize-before-compare
// discipline (internal/driveid/canonical.go), here using
// golang.org/x/text/unicode/norm to NFC-normalize path segments before
// comparison, the same defensive step the teacher takes against
// filesystems that hand back NFD-decomposed names.
package docid

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mdSuffix is the text-document extension stripped from a docId.
const mdSuffix = ".md"

// FromPath converts a vault-relative, slash-separated file path into a
// docId: NFC-normalized, separators normalized to "/", and a trailing
// ".md" stripped.
func FromPath(path string) string {
	normalized := norm.NFC.String(path)
	normalized = strings.ReplaceAll(normalized, "\\", "/")
	normalized = strings.TrimSuffix(normalized, mdSuffix)

	return normalized
}

// ToPath converts a docId back into the on-disk relative path, restoring
// the ".md" suffix markdown documents are stored with.
func ToPath(docID string) string {
	return docID + mdSuffix
}
