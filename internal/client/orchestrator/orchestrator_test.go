package orchestrator

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/basestore"
	"github.com/notesync/notesync/internal/client/attachsync"
	"github.com/notesync/notesync/internal/client/docsync"
	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/client/settings"
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
const testVaultName = "testvault"
const testAPIKey = "test-key"

// harness wires a real httptest-backed server and a full client stack
// (docsync + attachsync + orchestrator) over a temp-dir vault, the same
// way the teacher's e2e suite drives its Engine against a live server.
type harness struct {
	docs         *docstore.Store
	root         string
	orchestrator *Orchestrator
	meta         *metacache.Cache
	sf           *settings.File
	settingsPath string
	resetCalls   int
}

func newHarness(t *testing.T, res resolver.Resolver, syncAttachments bool) *harness {
	t.Helper()
	return newHarnessWithBaseURL(t, res, syncAttachments, "")
}

func newHarnessWithBaseURL(t *testing.T, res resolver.Resolver, syncAttachments bool, overrideBaseURL string) *harness {
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

	baseURL := srv.URL
	var trOpts []transport.Option
	if overrideBaseURL != "" {
		baseURL = overrideBaseURL
		trOpts = append(trOpts, transport.WithRetryPolicy(0, time.Millisecond, time.Millisecond, 1))
	}

	root := t.TempDir()
	tr := transport.New(baseURL, testAPIKey, trOpts...)
	meta := metacache.New(nil, nil)

	base, err := basestore.Open(ctx, filepath.Join(t.TempDir(), "base.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	files := vaultfs.New(root)

	docsDriver := docsync.New(tr, files, meta, base, res, testVaultID, nil)
	attachDriver := attachsync.New(tr, files, meta, testVaultID, nil)

	sf := &settings.File{Vaults: map[string]settings.VaultSettings{}}
	sf.SetVault(testVaultName, settings.VaultSettings{
		LocalPath: root, ServerURL: baseURL, APIKey: testAPIKey, VaultID: testVaultID,
		SyncAttachments: syncAttachments,
	})

	settingsPath := filepath.Join(t.TempDir(), "config.toml")

	h := &harness{docs: docs, root: root, meta: meta, sf: sf, settingsPath: settingsPath}

	reset := func(ctx context.Context) error {
		h.resetCalls++
		return nil
	}

	h.orchestrator = New(docsDriver, attachDriver, tr, meta, sf, settingsPath, testVaultName, reset, nil)

	return h
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

func (h *harness) seed(t *testing.T, id, rev, content string, deleted bool) {
	t.Helper()

	results := h.docs.BulkUpsert(context.Background(), testVaultID, []docstore.BulkDocInput{
		{ID: id, Rev: rev, Content: content, ContentSet: true, Deleted: deleted},
	})
	require.Len(t, results, 1)
	require.True(t, results[0].OK, "seed failed: %s: %s", results[0].Error, results[0].Reason)
}

// Scenario 1 (spec §8): conflict resolved by keeping the local version.
func TestSyncConflictResolvedViaLocal(t *testing.T) {
	// UseLocal leaves the pull phase's metadata/base untouched by design
	// (it force-pushes instead of adopting the remote), so the same
	// conflict resurfaces once for the pull phase's prompt and again for
	// the push phase's force-push confirmation.
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseLocal, resolver.UseLocal}}
	h := newHarness(t, sc, false)
	ctx := context.Background()

	h.seed(t, "notes/a", "", "A\nB\nC", false)

	_, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseSuccess, h.orchestrator.Status().Phase)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	h.seed(t, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	result, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Docs.Conflicts)
	require.Equal(t, "A\nB-local\nC", h.readFile(t, "notes/a.md"))

	doc, found, err := h.docs.GetDocument(ctx, testVaultID, "notes/a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "A\nB-local\nC", doc.Content, "UseLocal force-pushes the local copy to the server")
}

// Scenario 2 (spec §8): conflict resolved by taking the remote version.
func TestSyncConflictResolvedViaRemote(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.UseRemote}}
	h := newHarness(t, sc, false)
	ctx := context.Background()

	h.seed(t, "notes/a", "", "A\nB\nC", false)

	_, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	h.seed(t, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	result, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Docs.Conflicts)
	require.Equal(t, "A\nB-remote\nC", h.readFile(t, "notes/a.md"))
}

// Scenario 3 (spec §8): attachment upload, then a wiki-link embed
// referencing it resolves to the server's content URL.
func TestSyncUploadsAttachmentAndRewritesWikiLink(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel}, true)
	ctx := context.Background()

	h.writeFile(t, "assets/photo.png", "fake image bytes")
	h.writeFile(t, "notes/journal.md", "caught this today:\n\n![[photo.png]]\n")

	result, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Attach.Pushed)
	require.Equal(t, 1, result.Attach.Rewritten)

	rewritten := h.readFile(t, "notes/journal.md")
	require.Contains(t, rewritten, "](/api/attachments/")
	require.NotContains(t, rewritten, "![[photo.png]]")

	v, ok := h.sf.Vault(testVaultName)
	require.True(t, ok)
	require.Zero(t, v.LastAttachmentSeq, "cursor is only advanced once persisted via persistAttachmentCursor, not implicitly here")
}

// Scenario 4 (spec §8): a hard network failure surfaces as a counted
// error, not merely an error message.
func TestSyncNetworkFailureCountsAsError(t *testing.T) {
	h := newHarnessWithBaseURL(t, resolver.Fixed{Decision: resolver.Cancel}, false, "http://127.0.0.1:1")
	ctx := context.Background()

	result, err := h.orchestrator.Sync(ctx)
	require.Error(t, err)
	require.Equal(t, 1, result.Docs.Errors)

	status := h.orchestrator.Status()
	require.Equal(t, PhaseError, status.Phase)
	require.Equal(t, 1, status.Docs.Errors)
}

// Scenario 5 (spec §8): non-overlapping edits on both sides merge
// automatically without ever reaching the conflict resolver.
func TestSyncNonOverlappingEditsMergeAutomaticallyNeverPrompts(t *testing.T) {
	h := newHarness(t, resolver.Func(func(context.Context, resolver.Request) (resolver.Decision, error) {
		t.Fatal("resolver must not be consulted for an automatic merge")
		return resolver.Cancel, nil
	}), false)
	ctx := context.Background()

	h.seed(t, "notes/a", "", "A\nB\nC", false)
	_, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	h.seed(t, "notes/a", meta.Rev, "A\nB\nC2", false)

	h.writeFile(t, "notes/a.md", "A2\nB\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	result, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Docs.Conflicts)
	require.Equal(t, "A2\nB\nC2", h.readFile(t, "notes/a.md"))
}

// Scenario 6 (spec §8): a conflict escalated to a full sync invokes the
// host reset callback and clears local cursors/cache rather than leaving
// the vault in a half-merged state.
func TestSyncFullResetEscalationInvokesResetCallback(t *testing.T) {
	sc := &resolver.Scripted{Decisions: []resolver.Decision{resolver.FullReset}}
	h := newHarness(t, sc, false)
	ctx := context.Background()

	h.seed(t, "notes/a", "", "A\nB\nC", false)
	_, err := h.orchestrator.Sync(ctx)
	require.NoError(t, err)

	h.writeFile(t, "notes/a.md", "A\nB-local\nC")
	h.bumpMtimeAfterMeta(t, "notes/a.md")

	meta, ok := h.meta.GetDoc("notes/a.md")
	require.True(t, ok)
	h.seed(t, "notes/a", meta.Rev, "A\nB-remote\nC", false)

	_, err = h.orchestrator.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.resetCalls)
	require.Empty(t, h.meta.Docs(), "reset clears the metadata cache")

	v, ok := h.sf.Vault(testVaultName)
	require.True(t, ok)
	require.Zero(t, v.LastSeq)
	require.Zero(t, v.LastAttachmentSeq)
}

func TestSyncRejectsReentrantCall(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel}, false)

	h.orchestrator.inProgress.Store(true)
	defer h.orchestrator.inProgress.Store(false)

	_, err := h.orchestrator.Sync(context.Background())
	require.True(t, errors.Is(err, errAlreadySyncing))
}

func TestSyncRejectedWhilePaused(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel}, false)
	h.orchestrator.Pause()

	_, err := h.orchestrator.Sync(context.Background())
	require.Error(t, err)
}

func TestSyncEmptyVaultAgainstEmptyServerSucceeds(t *testing.T) {
	h := newHarness(t, resolver.Fixed{Decision: resolver.Cancel}, false)

	result, err := h.orchestrator.Sync(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Docs.Pulled)
	require.Zero(t, result.Docs.Pushed)
	require.Equal(t, PhaseSuccess, h.orchestrator.Status().Phase)
}
