// Package session implements the single-viewer SessionManager: it issues
// opaque stream tokens, enforces that at most one viewer holds the stream
// at a time, and reaps idle holders.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cursormirror/cursormirrord/internal/clock"
)

// Config configures a Manager.
type Config struct {
	// IdleTimeout is how long a session may go untouched before reap evicts
	// it. Default 60s.
	IdleTimeout time.Duration
	// SingleViewerOnly enforces at most one live session at a time.
	SingleViewerOnly bool
	Clock            clock.Clock
}

type entry struct {
	token        string
	lastActivity time.Time
}

// Manager enforces the single-viewer policy described in the streaming
// core spec: one stream token in play at a time, idle-reaped after
// IdleTimeout.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*entry
}

// New creates a Manager. Zero-value Config.IdleTimeout defaults to 60s.
func New(cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*entry)}
}

// AcquireStream issues a new token and marks the stream in use. Acquisition
// is serialized by the Manager's lock, so concurrent callers never both
// succeed when SingleViewerOnly is set.
func (m *Manager) AcquireStream() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.SingleViewerOnly {
		now := m.cfg.Clock.Now()
		for tok, e := range m.sessions {
			if now.Sub(e.lastActivity) <= m.cfg.IdleTimeout {
				return "", ErrStreamInUse
			}
			delete(m.sessions, tok)
		}
	}

	token := uuid.NewString()
	m.sessions[token] = &entry{token: token, lastActivity: m.cfg.Clock.Now()}
	return token, nil
}

// Touch extends a token's last-activity timestamp to now.
func (m *Manager) Touch(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[token]
	if !ok {
		return ErrInvalidToken
	}
	now := m.cfg.Clock.Now()
	if now.Sub(e.lastActivity) > m.cfg.IdleTimeout {
		delete(m.sessions, token)
		return ErrInvalidToken
	}
	e.lastActivity = now
	return nil
}

// Validate reports whether token names a live, non-idle session, without
// extending it (unlike Touch).
func (m *Manager) Validate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[token]
	if !ok {
		return false
	}
	return m.cfg.Clock.Now().Sub(e.lastActivity) <= m.cfg.IdleTimeout
}

// Release clears a session. Idempotent.
func (m *Manager) Release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// Reap evicts every session whose last activity is older than IdleTimeout.
// Intended to be called from a janitor ticker at least once per second.
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Clock.Now()
	evicted := 0
	for tok, e := range m.sessions {
		if now.Sub(e.lastActivity) > m.cfg.IdleTimeout {
			delete(m.sessions, tok)
			evicted++
		}
	}
	return evicted
}

// ActiveCount reports the number of live sessions, for admin/health surfaces.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
