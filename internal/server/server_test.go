package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/pebbles/internal/auth"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/randutil"
	"github.com/lox/pebbles/internal/session"
	"github.com/lox/pebbles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *Server
	http     *httptest.Server
	sessions *session.Manager
	store    store.Store
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestEnv(t *testing.T, random uint32) *testEnv {
	t.Helper()
	logger := testLogger()
	st := store.NewMemoryStore()
	sessions := session.NewManager(st, logger,
		session.WithSourceFactory(func() randutil.Source { return randutil.Fixed(random) }))
	issuer, err := auth.NewIssuer([]byte("test-secret"), time.Hour, nil)
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", sessions, st, issuer, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	return &testEnv{server: srv, http: ts, sessions: sessions, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]ErrorData
	require.NoError(t, json.Unmarshal(body, &payload), string(body))
	return payload["error"].Code
}

func (e *testEnv) createGame(t *testing.T, body any) CreateGameResponse {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/api/games", "", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created CreateGameResponse
	require.NoError(t, json.Unmarshal(data, &created))
	return created
}

func (e *testEnv) act(t *testing.T, created CreateGameResponse, action game.Action) ActionResponse {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/api/games/"+created.SessionID+"/actions", created.Token, action)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var out ActionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestServerHealth(t *testing.T) {
	env := newTestEnv(t, 2)

	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestHTTP_PlayGameToWin(t *testing.T) {
	env := newTestEnv(t, 2)

	created := env.createGame(t, nil)
	assert.NotEmpty(t, created.Token)
	assert.Empty(t, created.Events)
	assert.Equal(t, uint32(15), created.State.PebblesRemaining)
	assert.Equal(t, game.User, created.State.FirstPlayer)

	out := env.act(t, created, game.Turn(4))
	assert.True(t, out.Acknowledged)
	assert.Equal(t, []game.Event{game.CounterTurn(game.User, 4), game.CounterTurn(game.Program, 3)}, out.Events)
	assert.Equal(t, uint32(8), out.State.PebblesRemaining)

	env.act(t, created, game.Turn(4))
	out = env.act(t, created, game.Turn(4))
	assert.Equal(t, []game.Event{game.CounterTurn(game.User, 4)}, out.Events)
	require.NotNil(t, out.State.Winner)
	assert.Equal(t, game.User, *out.State.Winner)

	out = env.act(t, created, game.Turn(4))
	assert.False(t, out.Acknowledged)
	assert.Equal(t, []game.Event{game.Won(game.User)}, out.Events)

	resp, data := env.do(t, http.MethodGet, "/api/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		Games []store.GameRecord `json:"games"`
	}
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history.Games, 1)
	assert.Equal(t, created.SessionID, history.Games[0].SessionID)
	assert.Equal(t, game.User, history.Games[0].Winner)

	resp, data = env.do(t, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.Games)
	assert.Equal(t, 1, stats.UserWins)
	assert.Equal(t, 1, stats.ByDifficulty[game.Easy].Games)
	assert.Equal(t, 1, stats.LiveSessions)
}

func TestHTTP_CreateWithOptions(t *testing.T) {
	env := newTestEnv(t, 3)

	created := env.createGame(t, map[string]any{"pebblesCount": 20, "maxPebblesPerTurn": 3, "difficulty": "hard"})
	assert.Equal(t, game.Hard, created.State.Difficulty)
	// 20 is a multiple of 4, so hard falls back to 3 % 3 + 1
	assert.Equal(t, []game.Event{game.CounterTurn(game.Program, 1)}, created.Events)
	assert.Equal(t, uint32(19), created.State.PebblesRemaining)
}

func TestHTTP_Errors(t *testing.T) {
	env := newTestEnv(t, 2)
	created := env.createGame(t, nil)
	other := env.createGame(t, nil)
	path := "/api/games/" + created.SessionID

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{name: "zero pebbles", method: http.MethodPost, path: "/api/games", body: map[string]any{"pebblesCount": 0}, status: http.StatusBadRequest, code: CodeInvalidConfig},
		{name: "bad difficulty", method: http.MethodPost, path: "/api/games", body: map[string]any{"difficulty": "nightmare"}, status: http.StatusBadRequest, code: CodeInvalidConfig},
		{name: "unknown field", method: http.MethodPost, path: "/api/games", body: map[string]any{"pebbles": 3}, status: http.StatusBadRequest, code: CodeInvalidMessage},
		{name: "missing token", method: http.MethodGet, path: path, status: http.StatusUnauthorized, code: CodeUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: path, token: "nope", status: http.StatusUnauthorized, code: CodeUnauthorized},
		{name: "token for other session", method: http.MethodGet, path: path, token: other.Token, status: http.StatusForbidden, code: CodeUnauthorized},
		{name: "unknown action", method: http.MethodPost, path: path + "/actions", token: created.Token, body: map[string]any{"type": "fly"}, status: http.StatusBadRequest, code: CodeUnknownAction},
		{name: "bad history limit", method: http.MethodGet, path: "/api/history?limit=-1", status: http.StatusBadRequest, code: CodeInvalidMessage},
		{name: "unknown route", method: http.MethodGet, path: "/nowhere", status: http.StatusNotFound, code: CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(data))
			assert.Equal(t, tt.code, errorCode(t, data))
		})
	}
}

func TestHTTP_GetRestartDelete(t *testing.T) {
	env := newTestEnv(t, 2)
	created := env.createGame(t, nil)
	path := "/api/games/" + created.SessionID

	env.act(t, created, game.GiveUp())
	out := env.act(t, created, game.Action{Type: game.ActionRestart})
	assert.False(t, out.State.IsOver())
	assert.Equal(t, uint32(15), out.State.PebblesRemaining)

	resp, data := env.do(t, http.MethodGet, path, created.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state GameStateData
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, created.SessionID, state.SessionID)

	resp, _ = env.do(t, http.MethodDelete, path, created.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, path, created.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, errorCode(t, data))
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType MessageType, data any, requestID string) {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	msg.RequestID = requestID
	require.NoError(t, conn.WriteJSON(msg))
}

func readWS(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestWebSocket_Game(t *testing.T) {
	env := newTestEnv(t, 2)
	conn := dialWS(t, env)

	sendWS(t, conn, MessageTypeTurn, TurnData{Count: 1}, "r0")
	msg := readWS(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)
	var errData ErrorData
	require.NoError(t, msg.Decode(&errData))
	assert.Equal(t, CodeNotInitialized, errData.Code)
	assert.Equal(t, "r0", msg.RequestID)

	sendWS(t, conn, MessageTypeInit, InitData{}, "r1")
	msg = readWS(t, conn)
	require.Equal(t, MessageTypeSession, msg.Type)
	var sess SessionData
	require.NoError(t, msg.Decode(&sess))
	assert.NotEmpty(t, sess.SessionID)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "r1", msg.RequestID)

	sendWS(t, conn, MessageTypeTurn, TurnData{Count: 4}, "r2")
	var events []game.Event
	for i := 0; i < 2; i++ {
		msg = readWS(t, conn)
		event, ok, err := EventFromMessage(msg)
		require.NoError(t, err)
		require.True(t, ok, "unexpected %s", msg.Type)
		assert.Equal(t, "r2", msg.RequestID)
		events = append(events, event)
	}
	assert.Equal(t, []game.Event{game.CounterTurn(game.User, 4), game.CounterTurn(game.Program, 3)}, events)
	msg = readWS(t, conn)
	assert.Equal(t, MessageTypeTurned, msg.Type)

	sendWS(t, conn, MessageTypeState, nil, "r3")
	msg = readWS(t, conn)
	require.Equal(t, MessageTypeGameState, msg.Type)
	var state GameStateData
	require.NoError(t, msg.Decode(&state))
	assert.Equal(t, sess.SessionID, state.SessionID)
	assert.Equal(t, uint32(8), state.State.PebblesRemaining)

	sendWS(t, conn, MessageTypeGiveUp, nil, "r4")
	msg = readWS(t, conn)
	event, ok, err := EventFromMessage(msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, game.Won(game.Program), event)

	// a turn after the end only repeats the winner, without an ack
	sendWS(t, conn, MessageTypeTurn, TurnData{Count: 1}, "r5")
	msg = readWS(t, conn)
	event, _, _ = EventFromMessage(msg)
	assert.Equal(t, game.Won(game.Program), event)
	sendWS(t, conn, MessageTypeState, nil, "r6")
	assert.Equal(t, MessageTypeGameState, readWS(t, conn).Type)

	sendWS(t, conn, "dance", nil, "r7")
	msg = readWS(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)
	require.NoError(t, msg.Decode(&errData))
	assert.Equal(t, CodeUnknownAction, errData.Code)

	// the game was recorded and the socket's session shows up over HTTP
	games, err := env.store.ListGames(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.True(t, games[0].Forfeited)

	resp, _ := env.do(t, http.MethodGet, "/api/games/"+sess.SessionID, sess.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return env.sessions.Len() == 0 && env.server.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ProgramOpensAfterSessionMessage(t *testing.T) {
	env := newTestEnv(t, 3)
	conn := dialWS(t, env)

	count := uint32(10)
	sendWS(t, conn, MessageTypeInit, InitData{PebblesCount: &count}, "")
	assert.Equal(t, MessageTypeSession, readWS(t, conn).Type)

	event, ok, err := EventFromMessage(readWS(t, conn))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, game.CounterTurn(game.Program, 4), event)
}

func TestWebSocket_InitReplacesSession(t *testing.T) {
	env := newTestEnv(t, 2)
	conn := dialWS(t, env)

	sendWS(t, conn, MessageTypeInit, nil, "")
	var first SessionData
	require.NoError(t, readWS(t, conn).Decode(&first))

	zero := uint32(0)
	sendWS(t, conn, MessageTypeInit, InitData{MaxPebblesPerTurn: &zero}, "")
	msg := readWS(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)

	sendWS(t, conn, MessageTypeInit, nil, "")
	var second SessionData
	require.NoError(t, readWS(t, conn).Decode(&second))
	assert.NotEqual(t, first.SessionID, second.SessionID)

	_, err := env.sessions.Get(first.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestWebSocket_InvalidPayload(t *testing.T) {
	env := newTestEnv(t, 2)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"turn","data":{"count":"four"}}`)))
	msg := readWS(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)
	var errData ErrorData
	require.NoError(t, msg.Decode(&errData))
	assert.Equal(t, CodeInvalidMessage, errData.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	logger := testLogger()
	st := store.NewMemoryStore()
	issuer, err := auth.NewIssuer([]byte("k"), 0, nil)
	require.NoError(t, err)
	srv := NewServer("127.0.0.1:0", session.NewManager(st, logger), st, issuer, logger)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.Eventually(t, func() bool {
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		return srv.httpServer != nil
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)
}
