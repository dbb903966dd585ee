// internal/session/manager.go
//
// Session orchestration.
// Responsibilities:
//   - Bind connections to roles (connect / reconnect) and unbind them on close.
//   - Collect fleets and start the battle once both are in.
//   - Resolve shots, persist after each, tear the session down on game over.
//   - Evict idle sessions (see gc.go).
//
// Every operation runs inside the session key's Queue slot and re-reads the
// session from the registry there, so it always sees the latest state.

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/seabattle/internal/game"
	"github.com/robalobadob/seabattle/internal/history"
	"github.com/robalobadob/seabattle/internal/protocol"
	"github.com/robalobadob/seabattle/internal/store"
)

// Recorder receives finished matches.
type Recorder interface {
	Record(ctx context.Context, r history.Result) error
}

type Manager struct {
	reg     Registry
	queue   *Queue
	store   store.Store
	history Recorder
	logger  zerolog.Logger
	now     func() time.Time

	ttl        time.Duration
	gcInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithHistory(r Recorder) Option { return func(m *Manager) { m.history = r } }

// WithTTL sets how long a session with no live connection survives.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithGCInterval sets the sweep period. Zero disables the background loop.
func WithGCInterval(d time.Duration) Option { return func(m *Manager) { m.gcInterval = d } }

// NewManager builds a manager over st and starts its GC loop.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		queue:      NewQueue(),
		store:      st,
		logger:     log.With().Str("component", "session").Logger(),
		now:        time.Now,
		ttl:        10 * time.Minute,
		gcInterval: time.Minute,
		stopCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.reg = NewRegistry(m.now)

	if m.gcInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}
	return m
}

// Stop halts the GC loop and waits for queued operations to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.queue.Wait()
}

// Len is the number of resident sessions.
func (m *Manager) Len() int { return m.reg.Len() }

// Touch marks inbound traffic on key.
func (m *Manager) Touch(key string) {
	if s, ok := m.reg.Get(key); ok {
		s.touch(m.now())
	}
}

// Connect binds c to a role in key's session, creating the session if needed.
func (m *Manager) Connect(ctx context.Context, c Conn, key, playerID string) (game.Role, error) {
	var role game.Role
	err := m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, created := m.reg.GetOrCreate(key)
		if created {
			m.logger.Debug().Str("session", key).Msg("session created")
		}
		s.touch(m.now())
		s.pruneDead()

		r, err := assign(s, playerID)
		if err != nil {
			return err
		}
		if err := m.restore(ctx, s); err != nil {
			return err
		}
		s.owners[r] = playerID
		s.conns[r] = c
		role = r

		m.logger.Info().Str("session", key).Str("role", string(r)).Str("player", playerID).Str("conn", c.ID()).Msg("role assigned")
		m.announce(s, r)
		return nil
	})
	return role, err
}

// assign picks the role for playerID: its own seat if free, else the first
// seat nobody owns.
func assign(s *Session, playerID string) (game.Role, error) {
	for _, r := range game.Roles {
		if s.owners[r] == playerID {
			if s.live(r) {
				return "", ErrAlreadyConnected
			}
			return r, nil
		}
	}
	for _, r := range game.Roles {
		if s.owners[r] == "" && !s.live(r) {
			return r, nil
		}
	}
	return "", ErrSessionFull
}

// Reconnect rebinds c to role, which playerID must own. A seat with no
// recorded owner (lost to a restart or eviction) is adopted. Any previous
// connection on the seat is closed.
func (m *Manager) Reconnect(ctx context.Context, c Conn, key, playerID string, role game.Role) error {
	if !role.Valid() {
		return ErrBadReconnect
	}
	return m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, _ := m.reg.GetOrCreate(key)
		s.touch(m.now())
		s.pruneDead()

		if owner := s.owners[role]; owner != "" && owner != playerID {
			return ErrBadReconnect
		}
		if s.owners[role.Other()] == playerID {
			return ErrBadReconnect
		}
		if err := m.restore(ctx, s); err != nil {
			return err
		}
		if old, ok := s.conns[role]; ok && old != c {
			m.logger.Info().Str("session", key).Str("role", string(role)).Str("conn", old.ID()).Msg("replacing connection")
			old.Close()
		}
		s.owners[role] = playerID
		s.conns[role] = c

		m.logger.Info().Str("session", key).Str("role", string(role)).Str("player", playerID).Str("conn", c.ID()).Msg("reconnected")
		m.announce(s, role)
		return nil
	})
}

// announce sends the post-bind messages for role.
func (m *Manager) announce(s *Session, role game.Role) {
	s.conns[role].Send(protocol.NewRoleAssigned(role))
	if !s.bothBound() {
		s.conns[role].Send(protocol.Waiting())
		return
	}
	if s.battle == nil {
		s.broadcast(protocol.Connected())
		return
	}
	s.broadcast(protocol.Resume())
	m.sendBattle(s)
}

func (m *Manager) sendBattle(s *Session) {
	for _, r := range game.Roles {
		if c, ok := s.conns[r]; ok {
			c.Send(protocol.NewBattle(s.battle, r))
		}
	}
}

// restore loads the persisted battle when none is resident.
func (m *Manager) restore(ctx context.Context, s *Session) error {
	if s.battle != nil {
		return nil
	}
	rec, err := m.store.Load(ctx, s.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %q: %w", s.Key, err)
	}
	if !rec.Complete() {
		m.logger.Debug().Str("session", s.Key).Msg("ignoring incomplete record")
		return nil
	}
	b, err := game.FromRecord(rec)
	if err != nil {
		return fmt.Errorf("hydrate %q: %w", s.Key, err)
	}
	if err := b.Verify(); err != nil {
		m.logger.Warn().Err(err).Str("session", s.Key).Msg("stored shot log does not replay; keeping stored state")
	}
	s.battle = b
	clear(s.pending)
	m.logger.Info().Str("session", s.Key).Int("shots", len(b.Shots())).Msg("battle restored")
	return nil
}

// Disconnect unbinds c from role if it is still the connection on that seat,
// and pauses the opponent. Ownership is kept.
func (m *Manager) Disconnect(ctx context.Context, c Conn, key string, role game.Role) error {
	return m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, ok := m.reg.Get(key)
		if !ok || s.conns[role] != c {
			return nil
		}
		delete(s.conns, role)
		s.touch(m.now())
		m.logger.Info().Str("session", key).Str("role", string(role)).Str("conn", c.ID()).Msg("disconnected")

		if other, ok := s.conns[role.Other()]; ok && other.Alive() {
			other.Send(protocol.Pause())
		}
		return nil
	})
}

// bound returns key's session if c is the connection on role.
func (m *Manager) bound(key string, role game.Role, c Conn) (*Session, error) {
	s, ok := m.reg.Get(key)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.conns[role] != c {
		return nil, ErrNotConnected
	}
	return s, nil
}

// SubmitFleet records role's fleet. The second fleet starts the battle.
func (m *Manager) SubmitFleet(ctx context.Context, c Conn, key string, role game.Role, fleet game.Fleet) error {
	return m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, err := m.bound(key, role, c)
		if err != nil {
			return err
		}
		if s.battle != nil {
			m.logger.Debug().Str("session", key).Str("role", string(role)).Msg("battle already running; fleet ignored")
			return nil
		}
		if len(fleet) == 0 {
			return ErrEmptyFleet
		}
		s.pending[role] = fleet.Clone()

		if _, ok := s.pending[role.Other()]; !ok {
			c.Send(protocol.BattlePending())
			return nil
		}

		b, err := game.NewBattle(s.pending[game.Player1], s.pending[game.Player2])
		if err != nil {
			return gameError(err)
		}
		if err := m.store.Save(ctx, key, b.Record()); err != nil {
			return fmt.Errorf("save %q: %w", key, err)
		}
		s.battle = b
		clear(s.pending)

		m.logger.Info().Str("session", key).Str("turn", string(b.Turn())).Msg("battle started")
		m.sendBattle(s)
		return nil
	})
}

// Shoot resolves role's shot at (x, y) and broadcasts the result.
func (m *Manager) Shoot(ctx context.Context, c Conn, key string, role game.Role, x, y int) error {
	return m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, err := m.bound(key, role, c)
		if err != nil {
			return err
		}
		if s.battle == nil {
			return ErrNoBattle
		}

		next := s.battle.Clone()
		res, err := next.Fire(role, x, y)
		if err != nil {
			return gameError(err)
		}

		if res.GameOver {
			s.battle = next
			m.finish(ctx, s, res)
			s.broadcast(protocol.NewShotResult(res))
			return nil
		}

		if err := m.store.Save(ctx, key, next.Record()); err != nil {
			return fmt.Errorf("save %q: %w", key, err)
		}
		s.battle = next

		m.logger.Debug().Str("session", key).Str("by", string(role)).Int("x", x).Int("y", y).Bool("hit", res.IsHit).Msg("shot")
		s.broadcast(protocol.NewShotResult(res))
		return nil
	})
}

// finish tears down a session whose battle just ended.
func (m *Manager) finish(ctx context.Context, s *Session, res game.Result) {
	if err := m.store.Delete(ctx, s.Key); err != nil {
		m.logger.Error().Err(err).Str("session", s.Key).Msg("delete record")
	}
	m.reg.Delete(s.Key)

	m.logger.Info().Str("session", s.Key).Str("winner", string(res.Winner)).Msg("game over")

	if m.history == nil {
		return
	}
	err := m.history.Record(ctx, history.Result{
		Key:        s.Key,
		Winner:     res.Winner,
		WinnerID:   s.owners[res.Winner],
		LoserID:    s.owners[res.Winner.Other()],
		Shots:      len(s.battle.Shots()),
		FinishedAt: m.now(),
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("session", s.Key).Msg("record match result")
	}
}

// Abort force-ends a session: its connections are closed, its record deleted
// and the session dropped.
func (m *Manager) Abort(ctx context.Context, key string) error {
	return m.queue.Enqueue(ctx, key, func(ctx context.Context) error {
		s, ok := m.reg.Get(key)
		if !ok {
			return ErrSessionNotFound
		}
		for _, c := range s.conns {
			c.Close()
		}
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		m.reg.Delete(key)
		m.logger.Info().Str("session", key).Msg("session aborted")
		return nil
	})
}

// Sessions returns a view of every resident session.
func (m *Manager) Sessions(ctx context.Context) []Info {
	var keys []string
	m.reg.Range(func(s *Session) bool {
		keys = append(keys, s.Key)
		return true
	})

	sort.Strings(keys)

	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		err := m.queue.Enqueue(ctx, key, func(context.Context) error {
			if s, ok := m.reg.Get(key); ok {
				out = append(out, s.info())
			}
			return nil
		})
		if err != nil {
			m.logger.Error().Err(err).Str("session", key).Msg("describe session")
		}
	}
	return out
}
