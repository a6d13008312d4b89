package attachstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/notesync/notesync/internal/server/storedb"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := storedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := Open(context.Background(), db, t.TempDir(), nil)
	require.NoError(t, err)

	return store
}

func TestPutNewAttachment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	res, err := store.Put(ctx, "v1", "assets/photo.png", "image/png", []byte("bytes"), "", 0)
	require.NoError(t, err)
	require.False(t, res.Unchanged)
	require.Equal(t, int64(len("bytes")), res.Size)
}

func TestPutContentAddressingDeduplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	data := []byte("identical bytes")

	first, err := store.Put(ctx, "v1", "assets/a.png", "image/png", data, "", 0)
	require.NoError(t, err)
	require.False(t, first.Unchanged)

	second, err := store.Put(ctx, "v1", "assets/b.png", "image/png", data, "", 0)
	require.NoError(t, err)
	require.True(t, second.Unchanged)
	require.Equal(t, first.Hash, second.Hash)
}

func TestPutHashMismatchRejected(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Put(context.Background(), "v1", "a.png", "image/png", []byte("bytes"), "wronghash", 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrHashMismatch))
}

func TestPutLengthMismatchRejected(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Put(context.Background(), "v1", "a.png", "image/png", []byte("bytes"), "", 999)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestPutPathTraversalRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cases := []string{"", "/abs/path.png", "../escape.png", "a/../../b.png", "a\x00b.png", "\\windows\\abs.png"}
	for _, p := range cases {
		_, err := store.Put(ctx, "v1", p, "image/png", []byte("x"), "", 0)
		require.Errorf(t, err, "path %q should be rejected", p)
		require.True(t, errors.Is(err, ErrInvalidPath), "path %q", p)
	}
}

func TestGetContentReturnsBytesAndRejectsWrongVault(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	put, err := store.Put(ctx, "v1", "a.png", "image/png", []byte("payload"), "", 0)
	require.NoError(t, err)

	r, _, err := store.GetContent(ctx, "v1", put.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	r.Close()
	require.Equal(t, "payload", string(data))

	_, _, err = store.GetContent(ctx, "other-vault", put.ID)
	require.ErrorIs(t, err, ErrWrongVault)
}

func TestDeleteSoftDeletesAndAppendsChange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	put, err := store.Put(ctx, "v1", "a.png", "image/png", []byte("payload"), "", 0)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "v1", put.ID))

	_, _, err = store.GetContent(ctx, "v1", put.ID)
	require.Error(t, err)

	changes, _, err := store.GetChanges(ctx, "v1", 0, 100)
	require.NoError(t, err)
	require.True(t, changes[len(changes)-1].Deleted)
}

func TestBlobsWrittenUnderObjectKey(t *testing.T) {
	dir := t.TempDir()
	bs := newBlobStore(dir)

	require.NoError(t, bs.write("v1/abcd.png", []byte("x")))
	require.True(t, bs.exists("v1/abcd.png"))
	require.FileExists(t, filepath.Join(dir, "v1", "abcd.png"))
}
