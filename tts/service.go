// Package tts provides the speech synthesis collaborator interface, provider
// implementations, and the primary/secondary fallback wrapper used by the
// pipeline.
package tts

import (
	"context"
	"io"
)

// sampleRateDefault is the standard output sample rate.
const sampleRateDefault = 24000

// Service converts text to speech audio.
// This interface abstracts different TTS providers (OpenAI, ElevenLabs, etc.)
// so the pipeline can use any provider interchangeably.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Synthesize converts text to audio.
	// Returns a reader for streaming audio data.
	// The caller is responsible for closing the reader.
	Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error)

	// SupportedVoices returns available voices for this provider.
	SupportedVoices() []Voice
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the voice ID to use for synthesis.
	// Available voices vary by provider - use SupportedVoices() to list options.
	Voice string

	// Format is the output audio format.
	// Default is MP3 for most providers.
	Format AudioFormat

	// Speed is the speech rate multiplier (0.25-4.0, default 1.0).
	// Not all providers support speed adjustment.
	Speed float64

	// Model is the TTS model to use (provider-specific).
	Model string
}

// DefaultSynthesisConfig returns sensible defaults for synthesis.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Voice:  VoiceAlloy,
		Format: FormatMP3,
		Speed:  1.0,
	}
}

// Voice describes a TTS voice available from a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is a human-readable voice name.
	Name string

	// Language is the primary language code (e.g., "en", "vi").
	Language string

	// Gender is the voice gender ("male", "female", "neutral").
	Gender string

	// Description provides additional voice characteristics.
	Description string
}

// AudioFormat describes an audio output format.
type AudioFormat struct {
	// Name is the format identifier ("mp3", "opus", "pcm", "wav").
	Name string

	// MIMEType is the content type (e.g., "audio/mpeg").
	MIMEType string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int
}

// Common audio formats.
var (
	// FormatMP3 is MP3 format (most compatible).
	FormatMP3 = AudioFormat{
		Name:       "mp3",
		MIMEType:   "audio/mpeg",
		SampleRate: sampleRateDefault,
	}

	// FormatOpus is Opus format (best for streaming).
	FormatOpus = AudioFormat{
		Name:       "opus",
		MIMEType:   "audio/opus",
		SampleRate: sampleRateDefault,
	}

	// FormatWAV is WAV format (PCM with header).
	FormatWAV = AudioFormat{
		Name:       "wav",
		MIMEType:   "audio/wav",
		SampleRate: sampleRateDefault,
	}

	// FormatPCM16 is raw 16-bit PCM (for processing).
	FormatPCM16 = AudioFormat{
		Name:       "pcm",
		MIMEType:   "audio/pcm",
		SampleRate: sampleRateDefault,
	}
)

// String returns the format name.
func (f AudioFormat) String() string {
	return f.Name
}

// FormatByName resolves a format identifier to one of the common formats.
func FormatByName(name string) (AudioFormat, bool) {
	switch name {
	case FormatMP3.Name:
		return FormatMP3, true
	case FormatOpus.Name:
		return FormatOpus, true
	case FormatWAV.Name:
		return FormatWAV, true
	case FormatPCM16.Name:
		return FormatPCM16, true
	default:
		return AudioFormat{}, false
	}
}
