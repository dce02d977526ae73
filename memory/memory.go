// Package memory provides fixed-capacity conversation history for one session.
//
// The memory is a pure state container with no I/O. It is owned exclusively
// by one session; the single-active-turn rule means at most one goroutine
// mutates it at a time, but a mutex keeps teardown races harmless.
package memory

import (
	"errors"
	"sync"

	"github.com/tinhbv101/voice-ai/llm"
)

// DefaultCapacity is the default number of retained entries.
const DefaultCapacity = 10

// Entry roles.
const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// Validation errors.
var (
	// ErrInvalidRole is returned for roles outside the user/assistant set.
	ErrInvalidRole = errors.New("invalid memory role")

	// ErrEmptyContent is returned when the entry text is empty.
	ErrEmptyContent = errors.New("memory content is empty")
)

// Memory holds an ordered log of past turns, at most capacity entries.
// When full, the oldest entry is evicted before appending (FIFO).
type Memory struct {
	capacity int

	mu      sync.Mutex
	entries []llm.Message
}

// New creates a Memory with the given capacity. Pass 0 for DefaultCapacity.
func New(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

// Append adds an entry, evicting the oldest when at capacity.
func (m *Memory) Append(role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return ErrInvalidRole
	}
	if content == "" {
		return ErrEmptyContent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, llm.Message{Role: role, Content: content})
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	return nil
}

// Context returns the ordered entries in the generation collaborator's
// history shape. The returned slice is a copy.
func (m *Memory) Context() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Message, len(m.entries))
	copy(out, m.entries)
	return out
}

// Clear empties the memory.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
