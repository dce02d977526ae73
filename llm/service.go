// Package llm provides the text generation collaborator interface and
// provider implementations.
//
// Generation output is streamed: providers yield a finite, ordered sequence
// of text fragments over a channel so the pipeline can begin sentence
// segmentation and speech synthesis before the full reply exists.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of conversation context passed to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streamed increment of generation output.
type Chunk struct {
	// Content is the accumulated content so far.
	Content string

	// Delta is the new content in this chunk.
	Delta string

	// FinishReason is nil until the stream is complete.
	// Values: "stop", "length", "error", "cancelled".
	FinishReason *string

	// Err is set if an error occurred during streaming. A chunk carrying
	// Err is the final chunk of the sequence.
	Err error
}

// Service generates a streamed reply from conversation context.
// Implementations are safe for concurrent use across sessions.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Stream produces a lazy, ordered, finite sequence of text fragments.
	// The returned channel is closed when generation completes, errors, or
	// ctx is canceled. The sequence is not restartable.
	Stream(ctx context.Context, system string, history []Message) (<-chan Chunk, error)
}

// Common errors for generation services.
var (
	// ErrEmptyContext is returned when no messages are provided.
	ErrEmptyContext = errors.New("generation context is empty")

	// ErrRateLimited is returned when the provider rate limits requests.
	ErrRateLimited = errors.New("rate limited by provider")
)

// GenerationError represents an error from a generation provider.
type GenerationError struct {
	// Provider is the generation provider name.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the request can be retried.
	Retryable bool
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(provider, code, message string, cause error, retryable bool) *GenerationError {
	return &GenerationError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s generation error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s generation error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// StringPtr returns a pointer to s, for FinishReason values.
func StringPtr(s string) *string {
	return &s
}
