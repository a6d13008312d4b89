package docsync

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/basestore"
	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/metacache"
	"github.com/notesync/notesync/internal/server/api"
	"github.com/notesync/notesync/internal/server/attachstore"
	"github.com/notesync/notesync/internal/server/docstore"
	"github.com/notesync/notesync/internal/server/storedb"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/pkg/vaultfs"
	"github.com/stretchr/testify/require"
)

const testVaultID = "v1"
const testAPIKey = "test-key"

// harness wires a real httptest-backed server (real docstore/attachstore)
// to a real Driver over a temp-dir vault, mirroring the teacher's
// full-stack e2e test setup rather than mocking either side.
type harness struct {
	docs   *docstore.Store
	root   string
	driver *Driver
	meta   *metacache.Cache
	base   *basestore.Store
}

func newHarness(t *testing.T, res resolver.Resolver) *harness {
	t.Helper()

	db, err := storedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()

	docs, err := docstore.Open(ctx, db, nil)
	require.NoError(t, err)

	attachments, err := attachstore.Open(ctx, db, t.TempDir(), nil)
	require.NoError(t, err)

	s := api.New(docs, attachments, testAPIKey, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	root := t.TempDir()

	tr := transport.New(srv.URL, testAPIKey)
	meta := metacache.New(nil, nil)

	base, err := basestore.Open(ctx, filepath.Join(t.TempDir(), "base.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	driver := New(tr, vaultfs.New(root), meta, base, res, testVaultID, nil)

	return &harness{docs: docs, root: root, driver: driver, meta: meta, base: base}
}

func (h *harness) writeFile(t *testing.T, path, content string) {
	t.Helper()
	full := filepath.Join(h.root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (h *harness) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, filepath.FromSlash(path)))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) fileExists(path string) bool {
	_, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(path)))
	return err == nil
}

// bumpMtimeAfterMeta nudges path's mtime strictly after its recorded
// metadata so the driver treats it as locally modified, without relying on
// real wall-clock sleeps between fast-running test steps.
func (h *harness) bumpMtimeAfterMeta(t *testing.T, path string) {
	t.Helper()

	var afterMillis int64 = 1
	if meta, ok := h.meta.GetDoc(path); ok {
		afterMillis = meta.LastModified + 1000
	}

	full := filepath.Join(h.root, filepath.FromSlash(path))
	mtime := time.UnixMilli(afterMillis)
	require.NoError(t, os.Chtimes(full, mtime, mtime))
}

func noopPersistCursor(int64) error { return nil }
func noopPersist() error            { return nil }

// seed creates or updates a document directly through the server's store,
// bypassing HTTP, the way a teacher-style harness seeds fixture state.
func seed(t *testing.T, h *harness, id, rev, content string, deleted bool) {
	t.Helper()

	results := h.docs.BulkUpsert(context.Background(), testVaultID, []docstore.BulkDocInput{
		{ID: id, Rev: rev, Content: content, ContentSet: true, Deleted: deleted},
	})
	require.Len(t, results, 1)
	require.True(t, results[0].OK, "seed failed: %s: %s", results[0].Error, results[0].Reason)
}

func TestPullNewRemoteDocumentWritesFile(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel})
	ctx := context.Background()

	seed(t, h, "notes/a", "", "hello from server", false)

	res, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.True(t, h.fileExists("notes/a.md"))
	require.Equal(t, "hello from server", h.readFile(t, "notes/a.md"))
}

func TestPullDeleteRemovesUnmodifiedLocalFile(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel})
	ctx := context.Background()

	seed(t, h, "notes/a", "", "hello", false)

	res, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)

	seed(t, h, "notes/a", meta.Rev, "", true)

	res, err = h.driver.Pull(ctx, res.LastSeq, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.False(t, h.fileExists("notes/a.md"))
}

func TestPullDeleteVsEditConflictUseLocalKeepsFile(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseLocal}}
	h := newHarness(t, sc)
	ctx := context.Background()

	seed(t, h, "notes/a", "", "hello", false)
	res, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "hello, locally edited")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "", true)

	res, err = h.driver.Pull(ctx, res.LastSeq, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.True(t, h.fileExists("notes/a.md"), "UseLocal on a delete-vs-edit conflict keeps the local file")
	require.Equal(t, "hello, locally edited", h.readFile(t, "notes/a.md"))
}

func TestPullEditVsEditConflictResolverUseRemoteOverwrites(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseRemote}}
	h := newHarness(t, sc)
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	res, err := h.driver.Pull(ctx, 1, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.Equal(t, "A\nB-remote\nC", h.readFile(t, "notes/a.md"))
}

func TestPullEditVsEditConflictResolverUseLocalKeepsFile(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseLocal}}
	h := newHarness(t, sc)
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	res, err := h.driver.Pull(ctx, 1, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.Equal(t, "A\nB-local\nC", h.readFile(t, "notes/a.md"), "UseLocal leaves the local file untouched")
}

func TestPullNonOverlappingEditsMergeAutomaticallyWithoutPrompting(t *testing.T) {
	h := newHarness(t, resolver.Func(func(context.Context, resolver.Request) (resolver.Decision, error) {
		t.Fatal("resolver must not be consulted for a clean automatic merge")
		return resolver.Cancel, nil
	}))
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A2\nB\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB\nC2", false)

	res, err := h.driver.Pull(ctx, 1, noopPersistCursor)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pulled)
	require.Equal(t, "A2\nB\nC2", h.readFile(t, "notes/a.md"))
}

func TestPushNewLocalDocumentCreatesOnServer(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel})
	ctx := context.Background()

	h.writeFile(t, "notes/new.md", "brand new content")

	res, err := h.driver.Push(ctx, noopPersist)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pushed)

	doc, found, err := h.docs.GetDocument(ctx, testVaultID, "notes/new")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "brand new content", doc.Content)
}

func TestPushDeletionRecordForMissingLocalFile(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel})
	ctx := context.Background()

	seed(t, h, "notes/a", "", "hello", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)
	require.True(t, h.fileExists("notes/a.md"))

	require.NoError(t, os.Remove(filepath.Join(h.root, "notes/a.md")))

	res, err := h.driver.Push(ctx, noopPersist)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pushed)

	doc, found, err := h.docs.GetDocument(ctx, testVaultID, "notes/a")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, doc.Deleted)
}

func TestPushConflictUseLocalForcesPush(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseLocal}}
	h := newHarness(t, sc)
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	res, err := h.driver.Push(ctx, noopPersist)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Conflicts)

	doc, found, err := h.docs.GetDocument(ctx, testVaultID, "notes/a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "A\nB-local\nC", doc.Content)
}

func TestPushConflictUseRemoteOverwritesLocal(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseRemote}}
	h := newHarness(t, sc)
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	res, err := h.driver.Push(ctx, noopPersist)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Conflicts)
	require.Equal(t, "A\nB-remote\nC", h.readFile(t, "notes/a.md"))
}

func TestPushMergedResultRePullsWithoutPrompting(t *testing.T) {
	// The client's own edit and the server's prior edit touch different
	// lines, so the server performs the merge itself and reports
	// Merged:true; the driver must re-pull quietly rather than asking the
	// resolver anything.
	h := newHarness(t, resolver.Func(func(context.Context, resolver.Request) (resolver.Decision, error) {
		t.Fatal("resolver must not be consulted for a server-side automatic merge")
		return resolver.Cancel, nil
	}))
	ctx := context.Background()

	seed(t, h, "notes/a", "", "A\nB\nC", false)
	_, err := h.driver.Pull(ctx, 0, noopPersistCursor)
	require.NoError(t, err)

	// A third party updates the server copy's other line first, so the
	// client's stale _rev triggers the server's merge path on push.
	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	seed(t, h, "notes/a", meta.Rev, "A\nB\nC2", false)

	h.writeFile(t, "notes/a.md", "A2\nB\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	res, err := h.driver.Push(ctx, noopPersist)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Pushed)
	require.Equal(t, "A2\nB\nC2", h.readFile(t, "notes/a.md"))
}
