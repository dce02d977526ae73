// Package stt provides the transcription collaborator interface and provider
// implementations.
package stt

import (
	"context"
)

const (
	// Default audio settings for raw PCM input.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// Common audio formats.
	FormatPCM = "pcm"
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Service transcribes audio to text.
// Implementations are safe for concurrent use across sessions.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Transcribe converts a complete utterance to text.
	// Returns the transcribed text or an error if transcription fails.
	Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error)
}

// TranscriptionConfig configures speech-to-text transcription.
type TranscriptionConfig struct {
	// Format is the audio format ("pcm", "wav", "mp3"). Default: "pcm".
	Format string

	// SampleRate is the audio sample rate in Hz. Default: 16000.
	SampleRate int

	// Channels is the number of audio channels. Default: 1.
	Channels int

	// BitDepth is the bits per sample for PCM audio. Default: 16.
	BitDepth int

	// Language is a hint for the transcription language (e.g., "en", "vi").
	// Optional - improves accuracy if provided.
	Language string

	// Model is the STT model to use (provider-specific).
	Model string
}

// DefaultTranscriptionConfig returns sensible defaults for transcription.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Format:     FormatPCM,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}
