package tts

import (
	"errors"
	"fmt"
)

// Common errors for TTS services.
var (
	// ErrEmptyText is returned when the synthesis text is empty.
	ErrEmptyText = errors.New("synthesis text is empty")

	// ErrInvalidVoice is returned when the requested voice does not exist.
	ErrInvalidVoice = errors.New("invalid voice")

	// ErrRateLimited is returned when the provider rate limits requests.
	ErrRateLimited = errors.New("rate limited by provider")
)

// SynthesisError represents an error during speech synthesis.
type SynthesisError struct {
	// Provider is the TTS provider name.
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

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(provider, code, message string, cause error, retryable bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s synthesis error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s synthesis error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
