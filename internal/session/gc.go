package session

import (
	"context"
	"time"
)

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(context.Background()); n > 0 {
				m.logger.Info().Int("evicted", n).Int("remaining", m.reg.Len()).Msg("gc sweep")
			}
		case <-m.stopCh:
			return
		}
	}
}

// Sweep evicts every session that has had no live connection for longer than
// the TTL and returns how many went. Persisted records are left alone so the
// game can still be resumed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()

	var candidates []string
	m.reg.Range(func(s *Session) bool {
		if now.Sub(s.LastActive()) > m.ttl {
			candidates = append(candidates, s.Key)
		}
		return true
	})

	evicted := 0
	for _, key := range candidates {
		err := m.queue.Enqueue(ctx, key, func(context.Context) error {
			s, ok := m.reg.Get(key)
			if !ok || !s.idle() || m.now().Sub(s.LastActive()) <= m.ttl {
				return nil
			}
			m.reg.Delete(key)
			evicted++
			m.logger.Debug().Str("session", key).Time("lastActive", s.LastActive()).Msg("session evicted")
			return nil
		})
		if err != nil {
			m.logger.Error().Err(err).Str("session", key).Msg("evict session")
		}
	}
	return evicted
}
