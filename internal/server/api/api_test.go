package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/notesync/notesync/internal/server/attachstore"
	"github.com/notesync/notesync/internal/server/docstore"
	"github.com/notesync/notesync/internal/server/storedb"
	"github.com/notesync/notesync/internal/wire"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := storedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()

	docs, err := docstore.Open(ctx, db, nil)
	require.NoError(t, err)

	attachments, err := attachstore.Open(ctx, db, t.TempDir(), nil)
	require.NoError(t, err)

	s := New(docs, attachments, testAPIKey, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return srv
}

func doReq(t *testing.T, srv *httptest.Server, method, path string, body io.Reader, auth bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, body)
	require.NoError(t, err)

	if auth {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpointIsPublic(t *testing.T) {
	srv := newTestServer(t)

	resp := doReq(t, srv, http.MethodGet, "/", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out wire.HealthResponse
	decodeBody(t, resp, &out)
	require.Equal(t, "ok", out.Status)
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp := doReq(t, srv, http.MethodGet, "/api/status?vault_id=v1", nil, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusReflectsDocumentAndAttachmentCursors(t *testing.T) {
	srv := newTestServer(t)

	putResp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1",
		bytes.NewBufferString(`{"content":"hello"}`), true)
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	resp := doReq(t, srv, http.MethodGet, "/api/status?vault_id=v1", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out wire.StatusResponse
	decodeBody(t, resp, &out)
	require.True(t, out.OK)
	require.Equal(t, int64(1), out.LastSeq)
	require.Equal(t, int64(0), out.LastAttachmentSeq)
}

func TestPutDocThenGetDocRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	putResp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1",
		bytes.NewBufferString(`{"content":"hello world"}`), true)
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	var put wire.DocResponse
	decodeBody(t, putResp, &put)
	require.NotEmpty(t, put.Rev)

	getResp := doReq(t, srv, http.MethodGet, "/api/docs/notes/a?vault_id=v1", nil, true)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got wire.DocResponse
	decodeBody(t, getResp, &got)
	require.Equal(t, "hello world", got.Content)
	require.Equal(t, put.Rev, got.Rev)
}

func TestGetDocMissingReturns404(t *testing.T) {
	srv := newTestServer(t)

	resp := doReq(t, srv, http.MethodGet, "/api/docs/notes/missing?vault_id=v1", nil, true)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutDocRevisionMismatchReturns409(t *testing.T) {
	srv := newTestServer(t)

	putResp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1",
		bytes.NewBufferString(`{"content":"v1"}`), true)
	var put wire.DocResponse
	decodeBody(t, putResp, &put)

	resp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1",
		bytes.NewBufferString(`{"_rev":"1-bogus","content":"v2"}`), true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var conflict wire.ConflictErrorResponse
	decodeBody(t, resp, &conflict)
	require.Equal(t, put.Rev, conflict.CurrentRev)
}

func TestDeleteDocRequiresRevQueryParameter(t *testing.T) {
	srv := newTestServer(t)

	doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1", bytes.NewBufferString(`{"content":"hi"}`), true)

	resp := doReq(t, srv, http.MethodDelete, "/api/docs/notes/a?vault_id=v1", nil, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDocThenChangesFeedShowsTombstone(t *testing.T) {
	srv := newTestServer(t)

	putResp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1", bytes.NewBufferString(`{"content":"hi"}`), true)
	var put wire.DocResponse
	decodeBody(t, putResp, &put)

	delResp := doReq(t, srv, http.MethodDelete, fmt.Sprintf("/api/docs/notes/a?vault_id=v1&rev=%s", put.Rev), nil, true)
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	changesResp := doReq(t, srv, http.MethodGet, "/api/changes?vault_id=v1&since=0", nil, true)
	var changes wire.ChangesResponse
	decodeBody(t, changesResp, &changes)

	require.Len(t, changes.Results, 2)
	require.True(t, changes.Results[1].Deleted)
}

func TestBulkDocsOneResultPerInputInOrder(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal([]wire.BulkDocRequestItem{
		{ID: "a", Content: strPtr("A")},
		{ID: "b", Content: strPtr("B")},
		{ID: "c", Content: strPtr("C")},
	})
	require.NoError(t, err)

	resp := doReq(t, srv, http.MethodPost, "/api/docs/bulk_docs?vault_id=v1", bytes.NewReader(body), true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []wire.BulkDocResultItem
	decodeBody(t, resp, &out)

	require.Len(t, out, 3)
	for i, id := range []string{"a", "b", "c"} {
		require.Equal(t, id, out[i].ID)
		require.True(t, out[i].OK)
	}
}

func TestBulkDocsConflictWithoutBaseRequiresFullSync(t *testing.T) {
	srv := newTestServer(t)

	doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1", bytes.NewBufferString(`{"content":"server content"}`), true)

	body, err := json.Marshal([]wire.BulkDocRequestItem{
		{ID: "notes/a", Rev: "9-doesnotexist", Content: strPtr("client content")},
	})
	require.NoError(t, err)

	resp := doReq(t, srv, http.MethodPost, "/api/docs/bulk_docs?vault_id=v1", bytes.NewReader(body), true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []wire.BulkDocResultItem
	decodeBody(t, resp, &out)

	require.Len(t, out, 1)
	require.Equal(t, "conflict", out[0].Error)
	require.True(t, out[0].RequiresFullSync)
}

func TestBulkDocsServerSideMergeOnNonOverlappingEdits(t *testing.T) {
	srv := newTestServer(t)

	putResp := doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1", bytes.NewBufferString(`{"content":"A\nB\nC"}`), true)
	var put wire.DocResponse
	decodeBody(t, putResp, &put)

	// A third party updates the document server-side first, so the next
	// bulk push's _rev no longer matches.
	doReq(t, srv, http.MethodPut, fmt.Sprintf("/api/docs/notes/a?vault_id=v1"),
		bytes.NewBufferString(fmt.Sprintf(`{"_rev":%q,"content":"A\nB\nC2"}`, put.Rev)), true)

	base := "A\nB\nC"
	body, err := json.Marshal([]wire.BulkDocRequestItem{
		{ID: "notes/a", Rev: put.Rev, Content: strPtr("A2\nB\nC"), BaseContent: &base},
	})
	require.NoError(t, err)

	resp := doReq(t, srv, http.MethodPost, "/api/docs/bulk_docs?vault_id=v1", bytes.NewReader(body), true)
	var out []wire.BulkDocResultItem
	decodeBody(t, resp, &out)

	require.Len(t, out, 1)
	require.True(t, out[0].OK)
	require.True(t, out[0].Merged)

	getResp := doReq(t, srv, http.MethodGet, "/api/docs/notes/a?vault_id=v1", nil, true)
	var got wire.DocResponse
	decodeBody(t, getResp, &got)
	require.Equal(t, "A2\nB\nC2", got.Content)
}

func TestPutAttachmentThenGetContentIsPublic(t *testing.T) {
	srv := newTestServer(t)

	content := []byte("fake png bytes")
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/attachments/assets/photo.png?vault_id=v1", bytes.NewReader(content))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "image/png")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var put wire.AttachmentPutResponse
	decodeBody(t, resp, &put)
	require.True(t, put.OK)
	require.NotEmpty(t, put.ID)

	contentResp := doReq(t, srv, http.MethodGet, "/api/attachments/"+put.ID+"/content?vault_id=v1", nil, false)
	require.Equal(t, http.StatusOK, contentResp.StatusCode)

	got, err := io.ReadAll(contentResp.Body)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestPutAttachmentHashMismatchReturns409(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/attachments/assets/photo.png?vault_id=v1", bytes.NewReader([]byte("bytes")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("X-Content-Hash", "0000000000000000000000000000000000000000000000000000000000000000")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteAttachmentThenChangesFeedShowsTombstone(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/attachments/assets/a.png?vault_id=v1", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	var put wire.AttachmentPutResponse
	decodeBody(t, resp, &put)

	delResp := doReq(t, srv, http.MethodDelete, "/api/attachments/"+put.ID+"?vault_id=v1", nil, true)
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	changesResp := doReq(t, srv, http.MethodGet, "/api/attachments/changes?vault_id=v1&since=0", nil, true)
	var changes wire.AttachmentChangesResponse
	decodeBody(t, changesResp, &changes)

	require.Len(t, changes.Results, 2)
	require.True(t, changes.Results[1].Deleted)
}

func TestAdminStatsReportsPerVaultCursors(t *testing.T) {
	srv := newTestServer(t)

	doReq(t, srv, http.MethodPut, "/api/docs/notes/a?vault_id=v1", bytes.NewBufferString(`{"content":"hi"}`), true)
	doReq(t, srv, http.MethodPut, "/api/docs/notes/b?vault_id=v2", bytes.NewBufferString(`{"content":"hi"}`), true)

	resp := doReq(t, srv, http.MethodGet, "/api/admin/stats", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out wire.AdminStatsResponse
	decodeBody(t, resp, &out)

	require.Contains(t, out.Vaults, "v1")
	require.Contains(t, out.Vaults, "v2")
	require.Equal(t, int64(1), out.Vaults["v1"].LastSeq)
}

func TestAdminCleanupValidatesMaxAgeDays(t *testing.T) {
	srv := newTestServer(t)

	resp := doReq(t, srv, http.MethodPost, "/api/admin/cleanup?max_age_days=0", nil, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ok := doReq(t, srv, http.MethodPost, "/api/admin/cleanup?max_age_days=90", nil, true)
	require.Equal(t, http.StatusOK, ok.StatusCode)

	var out wire.AdminCleanupResponse
	decodeBody(t, ok, &out)
	require.Equal(t, int64(0), out.RevisionsRemoved)
}

func strPtr(s string) *string { return &s }
