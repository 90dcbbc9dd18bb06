package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts ...state.Option) (*state.AppState, http.Handler) {
	t.Helper()
	s := state.NewAppState(opts...)
	hub := websocket.NewHub(s, websocket.DefaultConfig())
	t.Cleanup(hub.Close)
	return s, NewRouter(s, hub, []string{"https://play.example"})
}

func TestHealth(t *testing.T) {
	_, router := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStats(t *testing.T) {
	s, router := newRouter(t)
	sess := s.NewSession("127.0.0.1:1", "a")
	_, err := s.NewLobby(sess)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got["sessions"])
	assert.Equal(t, 1, got["lobbies"])
	assert.Equal(t, 0, got["connections"])
}

func TestLobbyLookup(t *testing.T) {
	s, router := newRouter(t, state.WithCodeGenerator(func() string { return "4821" }))
	sess := s.NewSession("127.0.0.1:1", "host")
	_, err := s.NewLobby(sess)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobbies/4821", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view lobby.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "4821", view.Code)
	require.Len(t, view.Players, 1)
	assert.Nil(t, view.Game)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobbies/0000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, ok := s.LeaveLobby(sess)
	require.True(t, ok)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobbies/4821", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "destroyed lobby")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobbies/abcd", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	_, router := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	_, router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://play.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://play.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketThroughRouter(t *testing.T) {
	s, router := newRouter(t)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"Connection","data":{"nickname":"a"}}`)))
	var reply struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "Session", reply.Type)
	assert.Equal(t, 1, s.Stats().Sessions)
}
