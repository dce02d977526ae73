package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tinhbv101/voice-ai/audio"
	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
	"github.com/tinhbv101/voice-ai/protocol"
)

// defaultWriteWait is the write deadline for each outbound frame.
const defaultWriteWait = 10 * time.Second

// Session is the per-connection state record: identity, the websocket,
// conversation memory, the audio accumulator, and turn bookkeeping. A
// Session is created on connect, owned by the Manager, and destroyed on
// disconnect. It is never shared across connections.
type Session struct {
	id        string
	createdAt time.Time

	conn      *websocket.Conn
	writeMu   sync.Mutex // serializes writes (gorilla/websocket requirement)
	writeWait time.Duration

	// Memory and Accumulator are exclusively owned by this session.
	Memory      *memory.Memory
	Accumulator *audio.Accumulator

	limiter *rate.Limiter

	mu         sync.Mutex
	turnActive bool
	cancelTurn context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
}

// SessionID returns the session's opaque identity.
func (s *Session) SessionID() string { return s.id }

// CreatedAt returns when the session connected.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Emit encodes and writes one envelope to the client.
func (s *Session) Emit(env *protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return err
	}

	prometheus.RecordEnvelope(string(env.Type), "outbound")
	return nil
}

// allow reports whether the inbound frame passes the per-session rate
// limit.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// beginTurn marks the session busy and returns a turn-scoped context.
// It fails when a turn is already in flight or the session is closing.
func (s *Session) beginTurn() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.turnActive {
		return nil, false
	}
	turnCtx, cancel := context.WithCancel(s.ctx)
	s.turnActive = true
	s.cancelTurn = cancel
	return turnCtx, true
}

// endTurn releases the busy flag after a turn finishes.
func (s *Session) endTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelTurn != nil {
		s.cancelTurn()
		s.cancelTurn = nil
	}
	s.turnActive = false
}

// TurnActive reports whether a turn is currently in flight.
func (s *Session) TurnActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}

// close cancels any in-flight turn, releases session state, and closes
// the connection. Safe to call more than once.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelTurn != nil {
		s.cancelTurn()
		s.cancelTurn = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.Memory.Clear()
	s.Accumulator.Reset()

	s.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	s.writeMu.Unlock()

	_ = s.conn.Close()
}
