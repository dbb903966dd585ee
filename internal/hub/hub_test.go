package hub_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/seabattle/internal/hub"
	"github.com/robalobadob/seabattle/internal/session"
	"github.com/robalobadob/seabattle/internal/store"
)

type msg = map[string]any

func newServer(t *testing.T, cfg hub.Config) (*hub.Hub, string) {
	t.Helper()
	if cfg.MaxKeyLen == 0 {
		cfg.MaxKeyLen = 8
	}
	m := session.NewManager(store.NewMemoryStore(),
		session.WithLogger(zerolog.Nop()),
		session.WithGCInterval(0),
	)
	h := hub.New(m, cfg, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		h.Stop()
		m.Stop()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(v))
}

func recv(t *testing.T, c *websocket.Conn) msg {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m msg
	require.NoError(t, c.ReadJSON(&m))
	return m
}

func expect(t *testing.T, c *websocket.Conn, typ string) msg {
	t.Helper()
	m := recv(t, c)
	require.Equal(t, typ, m["type"], "got %v", m)
	return m
}

func connectPair(t *testing.T, url, key string) (a, b *websocket.Conn) {
	t.Helper()
	a, b = dial(t, url), dial(t, url)

	send(t, a, msg{"type": "connect", "secret_id": key, "playerId": "alice"})
	assert.Equal(t, "player1", expect(t, a, "role_assigned")["role"])
	expect(t, a, "waiting")

	send(t, b, msg{"type": "connect", "secret_id": key, "playerId": "bob"})
	assert.Equal(t, "player2", expect(t, b, "role_assigned")["role"])
	expect(t, b, "connected")
	expect(t, a, "connected")
	return a, b
}

func TestHub_FullGame(t *testing.T) {
	_, url := newServer(t, hub.Config{})
	a, b := connectPair(t, url, "room")

	send(t, a, msg{"type": "battle_start", "secret_id": "room", "playerId": "alice", "role": "player1",
		"fleet": msg{"boat": []msg{{"x": 0, "y": 0}}}})
	assert.Equal(t, false, expect(t, a, "battle")["battle_ready"])

	send(t, b, msg{"type": "battle_start", "secret_id": "room", "playerId": "bob", "role": "player2",
		"fleet": msg{"boat": []msg{{"x": 5, "y": 5}}}})
	for _, c := range []*websocket.Conn{a, b} {
		m := expect(t, c, "battle")
		assert.Equal(t, true, m["battle_ready"])
		assert.Equal(t, "player1", m["turn"])
		assert.NotNil(t, m["initialFleet"])
	}

	send(t, b, msg{"type": "shoot", "secret_id": "room", "playerId": "bob", "role": "player2", "x": 0, "y": 0})
	assert.Equal(t, "not your turn", expect(t, b, "error")["message"])

	send(t, a, msg{"type": "shoot", "secret_id": "room", "playerId": "alice", "role": "player1", "x": 1, "y": 1})
	for _, c := range []*websocket.Conn{a, b} {
		m := expect(t, c, "shot_result")
		assert.Equal(t, false, m["isHit"])
		assert.Equal(t, "player2", m["turn"])
		assert.NotContains(t, m, "gameOver")
	}

	send(t, b, msg{"type": "shoot", "secret_id": "room", "playerId": "bob", "role": "player2", "x": 0, "y": 0})
	for _, c := range []*websocket.Conn{a, b} {
		m := expect(t, c, "shot_result")
		assert.Equal(t, true, m["isHit"])
		assert.Equal(t, true, m["gameOver"])
		assert.Equal(t, "player2", m["winner"])
		assert.Equal(t, "boat", m["sunk"].(msg)["ship"])
	}
}

func TestHub_ProtocolErrors(t *testing.T) {
	_, url := newServer(t, hub.Config{})

	tests := []struct {
		name  string
		frame any
		want  string
	}{
		{"missing key", msg{"type": "connect", "playerId": "x"}, "secret_id is required"},
		{"unknown type", msg{"type": "bogus", "secret_id": "room"}, "unknown message type"},
		{"key too long", msg{"type": "connect", "secret_id": "abcdefghi", "playerId": "x"}, "invalid secret_id"},
		{"missing player", msg{"type": "connect", "secret_id": "room"}, "missing field: playerId"},
		{"mistyped coordinate", msg{"type": "shoot", "secret_id": "room", "x": "1", "y": 1}, "invalid field: x"},
		{"shoot while unbound", msg{"type": "shoot", "secret_id": "room", "x": 1, "y": 1}, "not connected"},
		{"fleet while unbound", msg{"type": "battle_start", "secret_id": "room", "fleet": msg{}}, "not connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, url)
			send(t, c, tt.frame)
			assert.Equal(t, tt.want, expect(t, c, "error")["message"])
		})
	}
}

func TestHub_MalformedIsDropped(t *testing.T) {
	_, url := newServer(t, hub.Config{})
	c := dial(t, url)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, c, msg{"type": "bogus", "secret_id": "room"})
	assert.Equal(t, "unknown message type", expect(t, c, "error")["message"])
}

func TestHub_BindingRules(t *testing.T) {
	_, url := newServer(t, hub.Config{})
	a, _ := connectPair(t, url, "room")

	send(t, a, msg{"type": "connect", "secret_id": "room", "playerId": "alice"})
	assert.Equal(t, "already connected", expect(t, a, "error")["message"])

	send(t, a, msg{"type": "shoot", "secret_id": "room", "playerId": "bob", "x": 1, "y": 1})
	assert.Equal(t, "identity mismatch", expect(t, a, "error")["message"])

	send(t, a, msg{"type": "shoot", "secret_id": "other", "x": 1, "y": 1})
	assert.Equal(t, "not connected", expect(t, a, "error")["message"])

	third := dial(t, url)
	send(t, third, msg{"type": "connect", "secret_id": "room", "playerId": "carol"})
	assert.Equal(t, "session is full", expect(t, third, "error")["message"])
}

func TestHub_CloseSendsPauseAndReconnectResumes(t *testing.T) {
	_, url := newServer(t, hub.Config{})
	a, b := connectPair(t, url, "room")

	require.NoError(t, b.Close())
	expect(t, a, "pause")

	again := dial(t, url)
	send(t, again, msg{"type": "reconnect", "secret_id": "room", "playerId": "bob", "role": "player2"})
	assert.Equal(t, "player2", expect(t, again, "role_assigned")["role"])
	expect(t, again, "connected")
	expect(t, a, "connected")
}

func TestHub_ReconnectAfterSinkRebuildsBoard(t *testing.T) {
	_, url := newServer(t, hub.Config{})
	a, b := connectPair(t, url, "room")

	send(t, a, msg{"type": "battle_start", "secret_id": "room", "playerId": "alice", "role": "player1",
		"fleet": msg{"boat": []msg{{"x": 0, "y": 0}}}})
	expect(t, a, "battle")
	send(t, b, msg{"type": "battle_start", "secret_id": "room", "playerId": "bob", "role": "player2",
		"fleet": msg{"boat": []msg{{"x": 5, "y": 5}}, "ship": []msg{{"x": 7, "y": 7}}}})
	expect(t, a, "battle")
	expect(t, b, "battle")

	send(t, a, msg{"type": "shoot", "secret_id": "room", "playerId": "alice", "role": "player1", "x": 5, "y": 5})
	for _, c := range []*websocket.Conn{a, b} {
		m := expect(t, c, "shot_result")
		assert.Equal(t, "boat", m["sunk"].(msg)["ship"])
	}

	require.NoError(t, b.Close())
	expect(t, a, "pause")

	again := dial(t, url)
	send(t, again, msg{"type": "reconnect", "secret_id": "room", "playerId": "bob", "role": "player2"})
	expect(t, again, "role_assigned")
	expect(t, again, "resume")
	board := expect(t, again, "battle")

	fleet, ok := board["fleet"].(msg)
	require.True(t, ok, "fleet: %v", board["fleet"])
	for ship, cells := range fleet {
		_, isList := cells.([]any)
		assert.True(t, isList, "ship %q encoded as %v", ship, cells)
	}
	assert.Empty(t, fleet["boat"])
	assert.Len(t, fleet["ship"], 1)
	assert.Len(t, board["shots"], 1)
	assert.Equal(t, "player1", board["turn"])
}

func TestHub_Heartbeat(t *testing.T) {
	h, url := newServer(t, hub.Config{Heartbeat: 20 * time.Millisecond})

	// A reading client answers pings; a silent one never does.
	live := dial(t, url)
	go func() {
		for {
			if _, _, err := live.ReadMessage(); err != nil {
				return
			}
		}
	}()
	dial(t, url)

	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.Len())
}

func TestHub_RateLimit(t *testing.T) {
	_, url := newServer(t, hub.Config{MsgRate: 0.001, MsgBurst: 2})
	c := dial(t, url)

	send(t, c, msg{"type": "bogus", "secret_id": "room"})
	expect(t, c, "error")
	send(t, c, msg{"type": "bogus", "secret_id": "room"})
	expect(t, c, "error")

	send(t, c, msg{"type": "bogus", "secret_id": "room"})
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err, "third message should have been dropped")
}

func TestHub_StopClosesConnections(t *testing.T) {
	h, url := newServer(t, hub.Config{})
	c := dial(t, url)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	h.Stop()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	var ce *websocket.CloseError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	}
}

func TestHub_StopWaitsForDisconnects(t *testing.T) {
	var logs bytes.Buffer
	m := session.NewManager(store.NewMemoryStore(),
		session.WithLogger(zerolog.New(&logs)),
		session.WithGCInterval(0),
	)
	h := hub.New(m, hub.Config{MaxKeyLen: 8}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	connectPair(t, url, "room")

	h.Stop()
	assert.Equal(t, 2, strings.Count(logs.String(), `"message":"disconnected"`))
	m.Stop()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
