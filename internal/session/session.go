// internal/session/session.go
//
// Session state and the registry that owns it.
// A Session is only read or written from inside its key's queue slot; the one
// exception is lastActive, which is atomic so inbound traffic can touch it
// without queueing.

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robalobadob/seabattle/internal/game"
	"github.com/robalobadob/seabattle/internal/protocol"
)

// Conn is a client connection as the manager sees it.
type Conn interface {
	ID() string
	// Send queues msg for delivery and reports whether it was accepted.
	Send(msg protocol.Message) bool
	// Alive reports whether the transport is still open.
	Alive() bool
	Close()
}

// Session is one two-player game.
type Session struct {
	Key string

	owners  map[game.Role]string
	conns   map[game.Role]Conn
	pending map[game.Role]game.Fleet
	battle  *game.Battle

	lastActive atomic.Int64
}

func newSession(key string, now time.Time) *Session {
	s := &Session{
		Key:     key,
		owners:  make(map[game.Role]string, 2),
		conns:   make(map[game.Role]Conn, 2),
		pending: make(map[game.Role]game.Fleet, 2),
	}
	s.touch(now)
	return s
}

func (s *Session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// LastActive is the time of the latest inbound traffic or disconnect.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *Session) live(r game.Role) bool {
	c, ok := s.conns[r]
	return ok && c.Alive()
}

// pruneDead forgets connections whose transport already closed.
func (s *Session) pruneDead() {
	for r, c := range s.conns {
		if !c.Alive() {
			delete(s.conns, r)
		}
	}
}

func (s *Session) bothBound() bool {
	return s.live(game.Player1) && s.live(game.Player2)
}

func (s *Session) idle() bool {
	return !s.live(game.Player1) && !s.live(game.Player2)
}

func (s *Session) broadcast(msg protocol.Message) {
	for _, r := range game.Roles {
		if c, ok := s.conns[r]; ok {
			c.Send(msg)
		}
	}
}

// Info is a read-only view of a session.
type Info struct {
	Key           string               `json:"key"`
	Owners        map[game.Role]string `json:"owners"`
	Live          []game.Role          `json:"live"`
	BattleStarted bool                 `json:"battleStarted"`
	Shots         int                  `json:"shots"`
	Turn          game.Role            `json:"turn,omitempty"`
	LastActive    time.Time            `json:"lastActive"`
}

func (s *Session) info() Info {
	in := Info{
		Key:        s.Key,
		Owners:     make(map[game.Role]string, len(s.owners)),
		Live:       []game.Role{},
		LastActive: s.LastActive(),
	}
	for r, id := range s.owners {
		in.Owners[r] = id
	}
	for _, r := range game.Roles {
		if s.live(r) {
			in.Live = append(in.Live, r)
		}
	}
	if s.battle != nil {
		in.BattleStarted = true
		in.Shots = len(s.battle.Shots())
		in.Turn = s.battle.Turn()
	}
	return in
}

// Registry maps session keys to sessions.
type Registry interface {
	// GetOrCreate returns the session for key, creating it if absent.
	// An existing entry is never replaced.
	GetOrCreate(key string) (s *Session, created bool)
	Get(key string) (*Session, bool)
	Delete(key string)
	// Range calls fn for each session until fn returns false.
	Range(fn func(*Session) bool)
	Len() int
}

type memoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry returns an in-memory Registry.
func NewRegistry(now func() time.Time) Registry {
	if now == nil {
		now = time.Now
	}
	return &memoryRegistry{sessions: make(map[string]*Session), now: now}
}

func (r *memoryRegistry) GetOrCreate(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s, false
	}
	s := newSession(key, r.now())
	r.sessions[key] = s
	return s, true
}

func (r *memoryRegistry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

func (r *memoryRegistry) Delete(key string) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
}

func (r *memoryRegistry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	for _, s := range list {
		if !fn(s) {
			return
		}
	}
}

func (r *memoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
