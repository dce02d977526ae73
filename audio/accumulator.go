// Package audio provides per-session utterance accumulation for streamed
// audio input.
//
// An Accumulator reassembles a complete recorded utterance from
// arbitrarily-sized network chunks. It treats audio as an opaque byte
// sequence; format validation happens downstream at the transcription
// collaborator.
package audio

import (
	"errors"
	"sync"

	"github.com/tinhbv101/voice-ai/logger"
)

// DefaultMaxBytes is the default accumulation limit (1 MB), matching the
// longest utterance the transcription collaborator is expected to accept.
const DefaultMaxBytes = 1 << 20

// Accumulation errors.
var (
	// ErrOverflow is returned when an append pushes the buffer past its
	// configured limit. The buffer is discarded and the accumulator
	// returns to idle.
	ErrOverflow = errors.New("audio buffer overflow")

	// ErrNotRecording is returned when Append or Finish is called outside
	// a recording lifecycle.
	ErrNotRecording = errors.New("not recording")

	// ErrEmptyUtterance is returned by Finish when no audio was appended
	// between Start and Finish.
	ErrEmptyUtterance = errors.New("empty utterance")
)

// Accumulator buffers audio chunks for one session between a start and a
// stop signal. It is a two-state machine: Idle -> Recording -> Idle.
//
// An Accumulator is owned exclusively by one session. The mutex guards
// against the session's read loop racing a teardown, not cross-session use.
type Accumulator struct {
	maxBytes int

	mu        sync.Mutex
	recording bool
	buf       []byte
}

// NewAccumulator creates an Accumulator with the given size limit.
// Pass 0 to use DefaultMaxBytes.
func NewAccumulator(maxBytes int) *Accumulator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Accumulator{maxBytes: maxBytes}
}

// Start transitions Idle -> Recording and resets the buffer.
// Starting while already recording is a logged no-op.
func (a *Accumulator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recording {
		logger.Warn("accumulator already recording, ignoring start")
		return
	}
	a.recording = true
	a.buf = nil
}

// Append adds a chunk to the buffer. It is only valid while Recording.
//
// When the accumulated size would exceed the configured limit, Append
// returns ErrOverflow, discards the buffer, and transitions back to Idle.
// This protects memory against a slow or looping client.
func (a *Accumulator) Append(chunk []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.recording {
		return ErrNotRecording
	}

	if len(a.buf)+len(chunk) > a.maxBytes {
		logger.Warn("audio buffer overflow, discarding utterance",
			"buffered", len(a.buf), "chunk", len(chunk), "limit", a.maxBytes)
		a.buf = nil
		a.recording = false
		return ErrOverflow
	}

	a.buf = append(a.buf, chunk...)
	return nil
}

// Finish transitions Recording -> Idle and returns the accumulated bytes.
// It returns ErrNotRecording if no recording is in progress and
// ErrEmptyUtterance if zero bytes were appended.
func (a *Accumulator) Finish() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.recording {
		return nil, ErrNotRecording
	}
	a.recording = false

	utterance := a.buf
	a.buf = nil

	if len(utterance) == 0 {
		return nil, ErrEmptyUtterance
	}
	return utterance, nil
}

// Reset discards any buffered audio and returns the accumulator to Idle.
// Used on session teardown.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = false
	a.buf = nil
}

// Size returns the number of bytes buffered so far.
func (a *Accumulator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Recording reports whether a recording lifecycle is in progress.
func (a *Accumulator) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}
