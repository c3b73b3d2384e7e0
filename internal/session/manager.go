package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/registry"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// Manager tracks live coordinators by room and sweeps terminated ones.
type Manager struct {
	backend       Backend
	dialer        transport.Dialer
	registry      registry.Registry
	costPerMinute int64

	mu       sync.Mutex
	sessions map[string]*Coordinator
}

type ManagerConfig struct {
	Backend       Backend
	Dialer        transport.Dialer
	Registry      registry.Registry
	CostPerMinute int64
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		backend:       cfg.Backend,
		dialer:        cfg.Dialer,
		registry:      cfg.Registry,
		costPerMinute: cfg.CostPerMinute,
		sessions:      make(map[string]*Coordinator),
	}
}

// Open returns the room's live coordinator, starting a new one if the room
// has none or its previous session already terminated. The second return
// reports whether a new session was started.
func (m *Manager) Open(ctx context.Context, roomID string, local, remote Identity) (*Coordinator, bool, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[roomID]; ok && existing.State() != StateTerminated {
		m.mu.Unlock()
		return existing, false, nil
	}
	c := New(Config{
		RoomID:        roomID,
		Local:         local,
		Remote:        remote,
		Backend:       m.backend,
		Dialer:        m.dialer,
		Registry:      m.registry,
		CostPerMinute: m.costPerMinute,
	})
	m.sessions[roomID] = c
	m.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		return c, true, err
	}
	return c, true, nil
}

func (m *Manager) Get(roomID string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[roomID]
	return c, ok
}

// StartJanitor sweeps terminated sessions and expires stale gift requests
// until ctx is cancelled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// terminatedRetention keeps finished sessions readable long enough for the
// verdict to be observed before the sweep removes them.
var terminatedRetention = 5 * time.Minute

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-terminatedRetention)
	m.mu.Lock()
	var gone []string
	live := make([]*Coordinator, 0, len(m.sessions))
	for room, c := range m.sessions {
		if at := c.TerminatedSince(); !at.IsZero() && at.Before(cutoff) {
			gone = append(gone, room)
			continue
		}
		live = append(live, c)
	}
	for _, room := range gone {
		delete(m.sessions, room)
	}
	m.mu.Unlock()

	for _, c := range live {
		c.Gifts().ExpireStale()
	}
	if len(gone) > 0 {
		log.Debug().Int("count", len(gone)).Msg("swept terminated sessions")
	}
}

// Shutdown closes every live session without producing verdicts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		sessions = append(sessions, c)
	}
	m.mu.Unlock()
	for _, c := range sessions {
		c.Close()
	}
}
