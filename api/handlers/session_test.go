package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) api.SessionResponse {
	t.Helper()
	var resp struct {
		Success bool                `json:"success"`
		Data    api.SessionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestSessionHandler_Create(t *testing.T) {
	store := newStore(t, okShared, writerTeam())
	mux := newMux(store)

	w := doRequest(mux, httptest.NewRequest(http.MethodPost, "/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeSession(t, w)
	assert.True(t, got.Created)
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, got.SessionID, w.Header().Get(HeaderSessionID))
	assert.Equal(t, 1, store.Len())
}

func TestSessionHandler_GetOrCreate(t *testing.T) {
	store := newStore(t, okShared, writerTeam())
	mux := newMux(store)
	existing, err := store.Create(t.Context())
	require.NoError(t, err)

	t.Run("known id is reused", func(t *testing.T) {
		w := doRequest(mux, httptest.NewRequest(http.MethodGet, "/session?session_id="+existing.ID(), nil))
		got := decodeSession(t, w)
		assert.False(t, got.Created)
		assert.Equal(t, existing.ID(), got.SessionID)
	})

	t.Run("header id is reused", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/session", nil)
		r.Header.Set(HeaderSessionID, existing.ID())
		got := decodeSession(t, doRequest(mux, r))
		assert.Equal(t, existing.ID(), got.SessionID)
	})

	t.Run("unknown id creates", func(t *testing.T) {
		w := doRequest(mux, httptest.NewRequest(http.MethodGet, "/session?session_id=missing", nil))
		got := decodeSession(t, w)
		assert.True(t, got.Created)
		assert.NotEqual(t, "missing", got.SessionID)
		assert.Equal(t, got.SessionID, w.Header().Get(HeaderSessionID))
	})

	t.Run("no id creates", func(t *testing.T) {
		got := decodeSession(t, doRequest(mux, httptest.NewRequest(http.MethodGet, "/session", nil)))
		assert.True(t, got.Created)
	})

	assert.Equal(t, 3, store.Len())
}

func TestSessionHandler_Delete(t *testing.T) {
	store := newStore(t, okShared, writerTeam())
	mux := newMux(store)
	sess, err := store.Create(t.Context())
	require.NoError(t, err)

	w := doRequest(mux, httptest.NewRequest(http.MethodDelete, "/session?session_id="+sess.ID(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, store.Len())
	assert.NoDirExists(t, sess.WorkDir())

	w = doRequest(mux, httptest.NewRequest(http.MethodDelete, "/session?session_id="+sess.ID(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrSessionNotFound), decodeEnvelope(t, w).Error.Code)

	w = doRequest(mux, httptest.NewRequest(http.MethodDelete, "/session", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_MethodNotAllowed(t *testing.T) {
	mux := newMux(newStore(t, okShared, writerTeam()))
	w := doRequest(mux, httptest.NewRequest(http.MethodPut, "/session", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSessionHandler_ClosedStore(t *testing.T) {
	store := newStore(t, okShared, writerTeam())
	require.NoError(t, store.Close())

	w := doRequest(newMux(store), httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(types.ErrSessionClosed), decodeEnvelope(t, w).Error.Code)
}
