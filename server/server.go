package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinhbv101/voice-ai/audio"
	"github.com/tinhbv101/voice-ai/logger"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
	"github.com/tinhbv101/voice-ai/pipeline"
	"github.com/tinhbv101/voice-ai/protocol"
	"github.com/tinhbv101/voice-ai/version"
)

// defaultReadHeaderTimeout prevents Slowloris attacks.
const defaultReadHeaderTimeout = 10 * time.Second

// Server exposes the voice session endpoint over HTTP: websocket upgrade
// at /ws, liveness at /health, and Prometheus metrics at /metrics.
type Server struct {
	addr         string
	manager      *Manager
	orchestrator *pipeline.Orchestrator
	exporter     *prometheus.Exporter
	maxFrameSize int
	upgrader     websocket.Upgrader
	httpSrv      *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address. Defaults to ":8000".
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithMaxFrameSize sets the maximum accepted frame size in bytes.
func WithMaxFrameSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxFrameSize = n
		}
	}
}

// NewServer creates a server over the given registry and turn pipeline.
func NewServer(manager *Manager, orchestrator *pipeline.Orchestrator, exporter *prometheus.Exporter, opts ...ServerOption) *Server {
	s := &Server{
		addr:         ":8000",
		manager:      manager,
		orchestrator: orchestrator,
		exporter:     exporter,
		maxFrameSize: protocol.DefaultMaxFrameSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin checking is deferred to the deployment's ingress.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the http.Handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.exporter != nil {
		mux.Handle("GET /metrics", s.exporter.Handler())
	}
	return mux
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	logger.Info("server listening", "addr", s.addr)
	return s.httpSrv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s.httpSrv.Serve(ln)
}

// Shutdown drains HTTP requests and closes all live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpSrv != nil {
		firstErr = s.httpSrv.Shutdown(ctx)
	}
	s.manager.CloseAll()
	return firstErr
}

// handleHealth serves a JSON liveness response with the live session
// count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"version":         version.GetVersion(),
		"active_sessions": s.manager.ActiveCount(),
	})
}

// handleWS upgrades the connection, registers a session, and runs its
// read loop until disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sess := s.manager.Register(conn)
	defer s.manager.Unregister(sess.SessionID())

	// Welcome status carries the assigned session identity so the client
	// can correlate later envelopes.
	if err := sess.Emit(protocol.NewStatus("connected", sess.SessionID())); err != nil {
		return
	}

	s.readLoop(sess, conn)
}

// readLoop processes inbound frames in arrival order until the
// connection drops.
func (s *Server) readLoop(sess *Session, conn *websocket.Conn) {
	// The websocket read limit sits above the protocol frame cap so that
	// moderately oversized frames reach Decode and get a recoverable
	// protocol_error answer; grossly oversized frames still drop the
	// connection as a resource backstop.
	conn.SetReadLimit(2 * int64(s.maxFrameSize))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("connection closed abruptly", "session_id", sess.SessionID(), "error", err)
			}
			return
		}

		if !sess.allow() {
			s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "rate limit exceeded", sess.SessionID()))
			continue
		}

		env, err := protocol.Decode(raw, s.maxFrameSize)
		if err != nil {
			logger.Debug("rejected malformed frame", "session_id", sess.SessionID(), "error", err)
			s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, err.Error(), sess.SessionID()))
			continue
		}

		// Envelopes naming a foreign session are dropped, not processed.
		if env.SessionID != "" && env.SessionID != sess.SessionID() {
			s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "unknown session", sess.SessionID()))
			continue
		}

		prometheus.RecordEnvelope(string(env.Type), "inbound")
		s.dispatch(sess, env)
	}
}

// dispatch routes one decoded envelope to its handler.
func (s *Server) dispatch(sess *Session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindPing:
		s.emit(sess, protocol.NewPong(sess.SessionID()))

	case protocol.KindStartRecording:
		sess.Accumulator.Start()
		s.emit(sess, protocol.NewStatus("recording_started", sess.SessionID()))

	case protocol.KindAudioChunk:
		s.handleAudioChunk(sess, env)

	case protocol.KindStopRecording:
		s.handleStopRecording(sess)

	case protocol.KindTextInput:
		s.handleTextInput(sess, env)

	default:
		// Decode already rejected unknown kinds; server-origin kinds from
		// a client end up here.
		s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "unexpected message kind", sess.SessionID()))
	}
}

// handleAudioChunk appends one audio fragment to the session's utterance
// buffer.
func (s *Server) handleAudioChunk(sess *Session, env *protocol.Envelope) {
	var chunk protocol.AudioChunk
	if err := json.Unmarshal(env.Data, &chunk); err != nil {
		s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "malformed audio chunk", sess.SessionID()))
		return
	}

	switch err := sess.Accumulator.Append(chunk.Audio); {
	case errors.Is(err, audio.ErrOverflow):
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, "audio buffer overflow, recording discarded", sess.SessionID()))
	case errors.Is(err, audio.ErrNotRecording):
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, "not recording", sess.SessionID()))
	case err != nil:
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, err.Error(), sess.SessionID()))
	}
}

// handleStopRecording finalizes the utterance and starts an audio turn.
func (s *Server) handleStopRecording(sess *Session) {
	utterance, err := sess.Accumulator.Finish()
	switch {
	case errors.Is(err, audio.ErrEmptyUtterance):
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, "empty utterance", sess.SessionID()))
		return
	case errors.Is(err, audio.ErrNotRecording):
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, "not recording", sess.SessionID()))
		return
	case err != nil:
		s.emit(sess, protocol.NewError(protocol.ErrKindAudio, err.Error(), sess.SessionID()))
		return
	}

	s.startTurn(sess, pipeline.TurnInput{Audio: utterance})
}

// handleTextInput starts a text turn.
func (s *Server) handleTextInput(sess *Session, env *protocol.Envelope) {
	var input protocol.TextInput
	if err := json.Unmarshal(env.Data, &input); err != nil {
		s.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "malformed text input", sess.SessionID()))
		return
	}

	s.startTurn(sess, pipeline.TurnInput{Text: input.Text})
}

// startTurn runs the pipeline for one turn in its own goroutine. Input
// arriving while a turn is in flight is rejected with a status envelope;
// it is never interleaved into the running turn.
func (s *Server) startTurn(sess *Session, input pipeline.TurnInput) {
	turnCtx, ok := sess.beginTurn()
	if !ok {
		s.emit(sess, protocol.NewStatus("busy", sess.SessionID()))
		return
	}

	go func() {
		defer sess.endTurn()
		if err := s.orchestrator.RunTurn(turnCtx, sess, sess.Memory, input); err != nil {
			logger.Debug("turn finished with error", "session_id", sess.SessionID(), "error", err)
		}
	}()
}

// emit sends one envelope, logging delivery failures at debug level.
func (s *Server) emit(sess *Session, env *protocol.Envelope) {
	if err := sess.Emit(env); err != nil {
		logger.Debug("envelope delivery failed", "session_id", sess.SessionID(), "kind", env.Type, "error", err)
	}
}
