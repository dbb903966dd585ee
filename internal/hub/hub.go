// internal/hub/hub.go
//
// Websocket front door.
// Responsibilities:
//   - Upgrade HTTP requests and run a read/write pump pair per connection.
//   - Track open connections for stats and shutdown.
//   - Heartbeat: every cycle each connection is marked suspect and pinged. A
//     pong clears the mark; a connection still suspect on the next cycle is
//     terminated.

package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/robalobadob/seabattle/internal/protocol"
	"github.com/robalobadob/seabattle/internal/session"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Config tunes the hub.
type Config struct {
	ClientOrigin    string // empty allows any origin
	Heartbeat       time.Duration
	MaxMessageBytes int64
	MaxKeyLen       int
	MsgRate         float64 // inbound messages per second per connection
	MsgBurst        int
}

type Hub struct {
	manager  *session.Manager
	decoder  protocol.Decoder
	upgrader websocket.Upgrader
	cfg      Config
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	readers  sync.WaitGroup // readPumps, whose exit unbinds the session seat
}

// New builds a hub feeding m and starts its heartbeat.
func New(m *session.Manager, cfg Config, logger zerolog.Logger) *Hub {
	h := &Hub{
		manager: m,
		decoder: protocol.Decoder{MaxKeyLen: cfg.MaxKeyLen},
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*Client]struct{}),
		stopCh:  make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	if cfg.Heartbeat > 0 {
		h.wg.Add(1)
		go h.heartbeatLoop()
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return h.cfg.ClientOrigin == "" || origin == "" || origin == h.cfg.ClientOrigin
}

// ServeWS upgrades the request and starts the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	limit := rate.Inf
	if h.cfg.MsgRate > 0 {
		limit = rate.Limit(h.cfg.MsgRate)
	}
	c := &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(limit, max(h.cfg.MsgBurst, 1)),
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.logger.Debug().Str("conn", c.id).Str("remote", r.RemoteAddr).Msg("connection opened")

	go c.writePump()
	go c.readPump()
}

// register tracks c and reserves its readPump slot. It fails once Stop has begun.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.readers.Add(1)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Len is the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.ping()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) ping() {
	for _, c := range h.snapshot() {
		if c.suspect.Swap(true) {
			h.logger.Info().Str("conn", c.id).Msg("no pong since last heartbeat; terminating")
			c.terminate()
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.logger.Debug().Err(err).Str("conn", c.id).Msg("ping failed")
			c.terminate()
		}
	}
}

// Stop halts the heartbeat, closes every connection and waits until each
// connection has been unbound from its session.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		close(h.stopCh)
	})
	h.wg.Wait()

	for _, c := range h.snapshot() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.terminate()
	}
	h.readers.Wait()
	h.logger.Info().Msg("hub stopped")
}
