// Package protocol defines the typed message envelope exchanged over the
// bidirectional WebSocket transport and its JSON codec.
//
// The package has no knowledge of sessions or pipeline behavior; it is a pure
// transform between raw frames and typed envelopes.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the envelope type.
type Kind string

// Client to server envelope kinds.
const (
	KindTextInput      Kind = "text_input"      // User text message
	KindAudioChunk     Kind = "audio_chunk"     // Audio data chunk
	KindStartRecording Kind = "start_recording" // Begin audio recording
	KindStopRecording  Kind = "stop_recording"  // End audio recording and process
	KindPing           Kind = "ping"
)

// Server to client envelope kinds.
const (
	KindTextResponse  Kind = "text_response"  // AI text response fragment (streaming)
	KindAudioResponse Kind = "audio_response" // Synthesized audio for one sentence
	KindTranscript    Kind = "transcript"     // STT transcript of the user's utterance
	KindStatus        Kind = "status"         // Status update
	KindError         Kind = "error"          // Error report
	KindPong          Kind = "pong"
)

// DefaultMaxFrameSize is the decode limit for a single raw frame (4 MB).
// Large enough for a base64 audio chunk, small enough to bound memory
// per malformed client frame.
const DefaultMaxFrameSize = 4 << 20

// Error kinds carried in error envelope payloads.
const (
	ErrKindProtocol      = "protocol_error"
	ErrKindTranscription = "transcription_error"
	ErrKindGeneration    = "generation_error"
	ErrKindSynthesis     = "synthesis_error"
	ErrKindAudio         = "audio_error"
	ErrKindInternal      = "internal_error"
)

// validKinds is the closed set of recognized envelope kinds.
var validKinds = map[Kind]bool{
	KindTextInput:      true,
	KindAudioChunk:     true,
	KindStartRecording: true,
	KindStopRecording:  true,
	KindPing:           true,
	KindTextResponse:   true,
	KindAudioResponse:  true,
	KindTranscript:     true,
	KindStatus:         true,
	KindError:          true,
	KindPong:           true,
}

// Envelope is the unit of communication in both directions.
// It is immutable once constructed.
type Envelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TextInput is the payload for KindTextInput.
type TextInput struct {
	Text string `json:"text"`
}

// AudioChunk is the payload for KindAudioChunk. Bytes are base64 in JSON.
type AudioChunk struct {
	Audio    []byte `json:"audio"`
	Encoding string `json:"encoding,omitempty"`
}

// TextResponse is the payload for KindTextResponse.
type TextResponse struct {
	Text string `json:"text"`
}

// AudioResponse is the payload for KindAudioResponse.
// SentenceIndex is the ordinal position of the sentence within the turn;
// audio envelopes are emitted in strictly increasing index order.
type AudioResponse struct {
	Audio         []byte `json:"audio"`
	SentenceIndex int    `json:"sentence_index"`
}

// Transcript is the payload for KindTranscript.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Status is the payload for KindStatus.
type Status struct {
	Message string `json:"message"`
}

// ErrorPayload is the payload for KindError.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProtocolError reports a malformed or unrecognized client frame.
// The connection survives a ProtocolError; the server answers with an
// error envelope and keeps reading.
type ProtocolError struct {
	// Reason is a human-readable description of the violation.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Cause)
	}
	return "protocol error: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// newProtocolError creates a ProtocolError with a formatted reason.
func newProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw frame into an Envelope.
//
// It fails with *ProtocolError when the frame exceeds maxFrameSize bytes,
// is not valid JSON, carries an unknown kind, or carries a payload that is
// structurally invalid for its kind. Pass 0 for maxFrameSize to use
// DefaultMaxFrameSize.
func Decode(raw []byte, maxFrameSize int) (*Envelope, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if len(raw) > maxFrameSize {
		return nil, newProtocolError("frame size %d exceeds limit %d", len(raw), maxFrameSize)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed JSON frame", Cause: err}
	}

	if !validKinds[env.Type] {
		return nil, newProtocolError("unknown envelope kind %q", env.Type)
	}

	if err := validatePayload(&env); err != nil {
		return nil, err
	}

	return &env, nil
}

// Encode serializes an Envelope to a raw frame.
// Encoding is total for well-formed envelopes constructed by this package.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// validatePayload checks per-kind structural payload requirements.
func validatePayload(env *Envelope) error {
	switch env.Type {
	case KindTextInput:
		var p TextInput
		if err := unmarshalPayload(env, &p); err != nil {
			return err
		}
		if p.Text == "" {
			return newProtocolError("text_input requires a non-empty text field")
		}

	case KindAudioChunk:
		var p AudioChunk
		if err := unmarshalPayload(env, &p); err != nil {
			return err
		}
		if len(p.Audio) == 0 {
			return newProtocolError("audio_chunk requires a non-empty audio field")
		}

	default:
		// Control kinds carry empty or freeform payloads.
	}
	return nil
}

// unmarshalPayload decodes the envelope data into dst with a typed error.
func unmarshalPayload(env *Envelope, dst any) error {
	if len(env.Data) == 0 {
		return newProtocolError("%s requires a payload", env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &ProtocolError{
			Reason: fmt.Sprintf("invalid %s payload", env.Type),
			Cause:  err,
		}
	}
	return nil
}

// newEnvelope builds an envelope with a marshaled payload and current timestamp.
// Payload types in this package always marshal, so the error path only guards
// against future payload types that do not.
func newEnvelope(kind Kind, payload any, sessionID string) *Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return &Envelope{
		Type:      kind,
		Data:      data,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// NewTextResponse creates a text_response envelope for one generation fragment.
func NewTextResponse(text, sessionID string) *Envelope {
	return newEnvelope(KindTextResponse, TextResponse{Text: text}, sessionID)
}

// NewAudioResponse creates an audio_response envelope for one synthesized sentence.
func NewAudioResponse(audio []byte, sentenceIndex int, sessionID string) *Envelope {
	return newEnvelope(KindAudioResponse, AudioResponse{
		Audio:         audio,
		SentenceIndex: sentenceIndex,
	}, sessionID)
}

// NewTranscript creates a transcript envelope.
func NewTranscript(text string, final bool, sessionID string) *Envelope {
	return newEnvelope(KindTranscript, Transcript{Text: text, Final: final}, sessionID)
}

// NewStatus creates a status envelope.
func NewStatus(message, sessionID string) *Envelope {
	return newEnvelope(KindStatus, Status{Message: message}, sessionID)
}

// NewError creates an error envelope with the given error kind.
func NewError(kind, message, sessionID string) *Envelope {
	return newEnvelope(KindError, ErrorPayload{Kind: kind, Message: message}, sessionID)
}

// NewPong creates a pong envelope answering a ping.
func NewPong(sessionID string) *Envelope {
	return newEnvelope(KindPong, struct{}{}, sessionID)
}
