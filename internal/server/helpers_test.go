package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/roster"
)

const testOrigin = "http://localhost:3000"

// startTestServer runs a relay behind httptest and returns it with its ws:// URL.
func startTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server, string) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := New(cfg)
	srv.Start()
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
	})

	return srv, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// connectWebSocket dials url with an allow-listed Origin header.
func connectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// closeWebSocket performs a clean close handshake from the client side.
func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	require.NoError(t, err)
	_ = conn.Close()
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := protocol.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func readUserList(t *testing.T, conn *websocket.Conn) []roster.ConnectedUser {
	t.Helper()
	env := readFrame(t, conn)
	require.Equal(t, protocol.EventUserList, env.Event)

	var users []roster.ConnectedUser
	require.NoError(t, json.Unmarshal(env.Data, &users))
	return users
}

func readChatMessage(t *testing.T, conn *websocket.Conn) json.RawMessage {
	t.Helper()
	env := readFrame(t, conn)
	require.Equal(t, protocol.EventChatMessage, env.Event)
	return env.Data
}

// registerUser registers conn and returns the first user list it receives.
func registerUser(t *testing.T, conn *websocket.Conn, username string) []roster.ConnectedUser {
	t.Helper()
	emit(t, conn, protocol.EventRegisterUser, username)
	return readUserList(t, conn)
}

func usernames(users []roster.ConnectedUser) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}
