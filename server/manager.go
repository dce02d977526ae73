// Package server owns the live connection set: it upgrades websocket
// connections, mints session identities, routes inbound envelopes to
// their session's turn pipeline, and tears session state down on
// disconnect.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tinhbv101/voice-ai/audio"
	"github.com/tinhbv101/voice-ai/logger"
	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
	"github.com/tinhbv101/voice-ai/protocol"
)

// Default per-session inbound rate limit.
const (
	DefaultRateLimit = 50 // envelopes per second
	DefaultRateBurst = 100
)

// Manager is the concurrent registry of live sessions. All session
// lookup, registration, and teardown goes through it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	memoryCapacity int
	audioMaxBytes  int
	rateLimit      rate.Limit
	rateBurst      int
	writeWait      time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMemoryCapacity sets the per-session conversation memory capacity.
func WithMemoryCapacity(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.memoryCapacity = n
		}
	}
}

// WithAudioMaxBytes sets the per-session audio accumulator limit.
func WithAudioMaxBytes(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.audioMaxBytes = n
		}
	}
}

// WithRateLimit sets the per-session inbound envelope rate limit.
func WithRateLimit(perSecond float64, burst int) ManagerOption {
	return func(m *Manager) {
		if perSecond > 0 && burst > 0 {
			m.rateLimit = rate.Limit(perSecond)
			m.rateBurst = burst
		}
	}
}

// WithWriteWait sets the write deadline for outbound frames.
func WithWriteWait(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.writeWait = d
		}
	}
}

// NewManager creates an empty session registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:       make(map[string]*Session),
		memoryCapacity: memory.DefaultCapacity,
		audioMaxBytes:  audio.DefaultMaxBytes,
		rateLimit:      rate.Limit(DefaultRateLimit),
		rateBurst:      DefaultRateBurst,
		writeWait:      defaultWriteWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register mints a session identity for the connection, builds its state
// record, and adds it to the registry.
func (m *Manager) Register(conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:          uuid.NewString(),
		createdAt:   time.Now(),
		conn:        conn,
		writeWait:   m.writeWait,
		Memory:      memory.New(m.memoryCapacity),
		Accumulator: audio.NewAccumulator(m.audioMaxBytes),
		limiter:     rate.NewLimiter(m.rateLimit, m.rateBurst),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	prometheus.RecordSessionStart()
	logger.Info("session registered", "session_id", sess.id)
	return sess
}

// Unregister cancels the session's in-flight work, releases its state,
// and removes it from the registry. Unknown ids are a no-op.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	sess.close()
	prometheus.RecordSessionEnd()
	logger.Info("session unregistered", "session_id", id)
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Send delivers one envelope to one session. A missing session is a
// no-op, not an error: the client may have disconnected mid-turn.
func (m *Manager) Send(id string, env *protocol.Envelope) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return
	}
	if err := sess.Emit(env); err != nil {
		logger.Debug("unicast delivery failed", "session_id", id, "error", err)
	}
}

// Broadcast delivers one envelope to every live session.
func (m *Manager) Broadcast(env *protocol.Envelope) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	for _, sess := range sessions {
		if err := sess.Emit(env); err != nil {
			logger.Debug("broadcast delivery failed", "session_id", sess.id, "error", err)
		}
	}
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll unregisters every session. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, sess := range sessions {
		sess.close()
		prometheus.RecordSessionEnd()
		logger.Info("session unregistered", "session_id", id)
	}
}
