package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededSession(t *testing.T) (*session.Store, *session.Session) {
	t.Helper()
	store := newStore(t, okShared, writerTeam())
	sess, err := store.Create(t.Context())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(sess.WorkDir(), reportName), []byte("# AI agents\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sess.WorkDir(), "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sess.WorkDir(), "notes", "outline.txt"), []byte("1. intro\n"), 0o644))
	return store, sess
}

func downloadURL(sessionID, path string) string {
	v := url.Values{}
	v.Set("session_id", sessionID)
	v.Set("file_path", path)
	return "/download?" + v.Encode()
}

func TestFileHandler_List(t *testing.T) {
	store, sess := seededSession(t)
	w := doRequest(newMux(store), httptest.NewRequest(http.MethodGet, "/files?session_id="+sess.ID(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.FileListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, sess.ID(), resp.Data.SessionID)
	assert.Equal(t, []string{"notes/outline.txt", reportName}, resp.Data.Files)
}

func TestFileHandler_ListAfterQuery(t *testing.T) {
	store := newStore(t, okShared, writerTeam("writer"))
	mux := newMux(store)

	w := doRequest(mux, httptest.NewRequest(http.MethodGet, queryURL(map[string]string{"query": "write"}), nil))
	id := w.Header().Get(HeaderSessionID)
	require.NotEmpty(t, id)

	w = doRequest(mux, httptest.NewRequest(http.MethodGet, "/files?session_id="+id, nil))
	var resp struct {
		Data api.FileListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{reportName}, resp.Data.Files)
}

func TestFileHandler_ListErrors(t *testing.T) {
	store, _ := seededSession(t)
	mux := newMux(store)

	w := doRequest(mux, httptest.NewRequest(http.MethodGet, "/files?session_id=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrSessionNotFound), decodeEnvelope(t, w).Error.Code)

	w = doRequest(mux, httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileHandler_Download(t *testing.T) {
	store, sess := seededSession(t)
	w := doRequest(newMux(store), httptest.NewRequest(http.MethodGet, downloadURL(sess.ID(), "notes/outline.txt"), nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1. intro\n", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=outline.txt`, w.Header().Get("Content-Disposition"))
}

func TestFileHandler_DownloadPathAlias(t *testing.T) {
	store, sess := seededSession(t)
	r := httptest.NewRequest(http.MethodGet, "/download?session_id="+sess.ID()+"&path="+reportName, nil)
	w := doRequest(newMux(store), r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# AI agents\n", w.Body.String())
}

func TestFileHandler_DownloadErrors(t *testing.T) {
	store, sess := seededSession(t)
	mux := newMux(store)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantErr  types.ErrorCode
	}{
		{"traversal", downloadURL(sess.ID(), "../../etc/passwd"), http.StatusForbidden, types.ErrPathForbidden},
		{"absolute outside", downloadURL(sess.ID(), outside), http.StatusForbidden, types.ErrPathForbidden},
		{"missing file", downloadURL(sess.ID(), "nothing.md"), http.StatusNotFound, types.ErrNotFound},
		{"directory", downloadURL(sess.ID(), "notes"), http.StatusBadRequest, types.ErrInvalidRequest},
		{"unknown session", downloadURL("nope", reportName), http.StatusNotFound, types.ErrSessionNotFound},
		{"no path", "/download?session_id=" + sess.ID(), http.StatusBadRequest, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(mux, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, string(tt.wantErr), decodeEnvelope(t, w).Error.Code)
		})
	}
}

func TestFileHandler_SymlinkEscapeForbidden(t *testing.T) {
	store, sess := seededSession(t)
	outsideDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outsideDir, "secret.txt"), []byte("secret"), 0o644))
	if err := os.Symlink(outsideDir, filepath.Join(sess.WorkDir(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	w := doRequest(newMux(store), httptest.NewRequest(http.MethodGet, downloadURL(sess.ID(), "link/secret.txt"), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
