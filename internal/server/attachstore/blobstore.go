package attachstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// blobStore writes/reads content-addressed bytes under a root directory
// keyed by objectKey ("vaultId/hash.ext"), per spec.md's non-goal that
// attachment bytes never live in the metadata database.
type blobStore struct {
	root string
}

func newBlobStore(root string) *blobStore {
	return &blobStore{root: root}
}

func (b *blobStore) path(objectKey string) string {
	return filepath.Join(b.root, filepath.FromSlash(objectKey))
}

func (b *blobStore) write(objectKey string, data []byte) error {
	p := b.path(objectKey)

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("attachstore: creating blob directory: %w", err)
	}

	if err := os.WriteFile(p, data, 0o600); err != nil {
		return fmt.Errorf("attachstore: writing blob: %w", err)
	}

	return nil
}

func (b *blobStore) read(objectKey string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(objectKey))
	if err != nil {
		return nil, fmt.Errorf("attachstore: reading blob: %w", err)
	}

	return f, nil
}

func (b *blobStore) exists(objectKey string) bool {
	_, err := os.Stat(b.path(objectKey))
	return err == nil
}
