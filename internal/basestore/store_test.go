package basestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	store, err := Open(context.Background(), filepath.Join(dir, "base.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestStoreSetGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "notes/a.md", "hello")

	content, ok := store.Get(ctx, "notes/a.md")
	require.True(t, ok)
	require.Equal(t, "hello", content)
}

func TestStoreGetMiss(t *testing.T) {
	store := openTestStore(t)

	_, ok := store.Get(context.Background(), "missing")
	require.False(t, ok)
}

func TestStoreGetSurvivesLRUEviction(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "keep", "content-keep")

	for i := 0; i < lruCapacity+10; i++ {
		store.Set(ctx, fmt.Sprintf("filler-%d", i), "filler")
	}

	content, ok := store.Get(ctx, "keep")
	require.True(t, ok, "durable store must still serve an entry evicted from the hot LRU")
	require.Equal(t, "content-keep", content)
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "notes/a.md", "hello")
	store.Delete(ctx, "notes/a.md")

	_, ok := store.Get(ctx, "notes/a.md")
	require.False(t, ok)
}

func TestStoreHas(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.False(t, store.Has(ctx, "notes/a.md"))
	store.Set(ctx, "notes/a.md", "hello")
	require.True(t, store.Has(ctx, "notes/a.md"))
}

func TestStoreClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "a", "1")
	store.Set(ctx, "b", "2")
	store.Clear(ctx)

	require.False(t, store.Has(ctx, "a"))
	require.False(t, store.Has(ctx, "b"))
}

func TestStoreCleanup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return fixed }
	store.Set(ctx, "old", "stale content")

	store.nowFunc = func() time.Time { return fixed.Add(100 * 24 * time.Hour) }
	store.Set(ctx, "fresh", "new content")

	removed, err := store.Cleanup(ctx, DefaultMaxAge)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.False(t, store.Has(ctx, "old"))
	require.True(t, store.Has(ctx, "fresh"))
}
