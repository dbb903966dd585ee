package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/robalobadob/seabattle/internal/game"
	"github.com/robalobadob/seabattle/internal/protocol"
	"github.com/robalobadob/seabattle/internal/session"
)

type connState int

const (
	stateUnbound connState = iota
	stateBound
	stateClosed
)

// Client is one websocket connection. It implements session.Conn.
//
// The binding fields (state, key, playerID, role) belong to the readPump
// goroutine.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	suspect atomic.Bool

	mu     sync.Mutex
	closed bool

	state    connState
	key      string
	playerID string
	role     game.Role
}

func (c *Client) ID() string { return c.id }

// Send queues msg. A client whose buffer is full is closed.
func (c *Client) Send(msg protocol.Message) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error().Err(err).Str("type", msg.MessageType()).Msg("encode message")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		c.hub.logger.Warn().Str("conn", c.id).Msg("send buffer full; closing")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close flushes queued messages and then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// terminate drops the transport immediately.
func (c *Client) terminate() {
	c.Close()
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer c.hub.readers.Done()
	defer func() {
		c.hub.unregister(c)
		c.terminate()
		if c.state == stateBound {
			if err := c.hub.manager.Disconnect(context.Background(), c, c.key, c.role); err != nil {
				c.hub.logger.Error().Err(err).Str("conn", c.id).Msg("disconnect")
			}
		}
		c.state = stateClosed
		c.hub.logger.Debug().Str("conn", c.id).Msg("connection closed")
	}()

	c.conn.SetPongHandler(func(string) error {
		c.suspect.Store(false)
		return nil
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug().Err(err).Str("conn", c.id).Msg("read")
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			c.hub.logger.Warn().Str("conn", c.id).Str("session", c.key).Msg("rate limited; message dropped")
			continue
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.logger.Debug().Err(err).Str("conn", c.id).Msg("write")
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// handle dispatches one inbound frame.
func (c *Client) handle(data []byte) {
	cmd, err := c.hub.decoder.Decode(data)
	if errors.Is(err, protocol.ErrMalformed) {
		c.hub.logger.Warn().Err(err).Str("conn", c.id).Msg("dropping malformed message")
		return
	}
	if err != nil {
		c.Send(protocol.NewError(err.Error()))
		return
	}

	c.hub.manager.Touch(cmd.SessionKey())
	c.hub.logger.Debug().Str("conn", c.id).Str("session", cmd.SessionKey()).Str("type", cmd.Kind()).Msg("message")

	if err := c.dispatch(context.Background(), cmd); err != nil {
		c.fail(cmd, err)
	}
}

func (c *Client) dispatch(ctx context.Context, cmd protocol.Command) error {
	m := c.hub.manager

	switch cmd := cmd.(type) {
	case protocol.Connect:
		if c.state != stateUnbound {
			return session.ErrAlreadyBound
		}
		role, err := m.Connect(ctx, c, cmd.Key, cmd.PlayerID)
		if err != nil {
			return err
		}
		c.bind(cmd.Key, cmd.PlayerID, role)

	case protocol.Reconnect:
		if c.state != stateUnbound {
			return session.ErrAlreadyBound
		}
		if err := m.Reconnect(ctx, c, cmd.Key, cmd.PlayerID, cmd.Role); err != nil {
			return err
		}
		c.bind(cmd.Key, cmd.PlayerID, cmd.Role)

	case protocol.BattleStart:
		if err := c.check(cmd.Key, cmd.PlayerID, cmd.Role); err != nil {
			return err
		}
		return m.SubmitFleet(ctx, c, c.key, c.role, cmd.Fleet)

	case protocol.Shoot:
		if err := c.check(cmd.Key, cmd.PlayerID, cmd.Role); err != nil {
			return err
		}
		return m.Shoot(ctx, c, c.key, c.role, cmd.X, cmd.Y)
	}
	return nil
}

func (c *Client) bind(key, playerID string, role game.Role) {
	c.state = stateBound
	c.key = key
	c.playerID = playerID
	c.role = role
}

// check verifies that a game command comes from this connection's binding.
func (c *Client) check(key, playerID string, role game.Role) error {
	if c.state != stateBound || key != c.key {
		return session.ErrNotConnected
	}
	if (playerID != "" && playerID != c.playerID) || (role != "" && role != c.role) {
		return session.ErrIdentityMismatch
	}
	return nil
}

func (c *Client) fail(cmd protocol.Command, err error) {
	msg, ok := session.Reason(err)
	ev := c.hub.logger.Info()
	if !ok {
		ev = c.hub.logger.Error()
	}
	ev.Err(err).Str("conn", c.id).Str("session", cmd.SessionKey()).Str("type", cmd.Kind()).Msg("request failed")
	c.Send(protocol.NewError(msg))
}
