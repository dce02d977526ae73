package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/tinhbv101/voice-ai/logger"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
)

// Fallback wraps a primary synthesis service with a secondary one.
//
// Any primary failure (timeout, authentication, quota, malformed response)
// triggers exactly one attempt against the secondary. A fallback failure is
// surfaced as a *SynthesisError for the caller to handle; it never
// escalates into a turn crash.
type Fallback struct {
	primary   Service
	secondary Service
}

// NewFallback creates a fallback wrapper. Secondary may be nil, in which
// case primary failures are surfaced directly.
func NewFallback(primary, secondary Service) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Name returns the composite provider identifier.
func (f *Fallback) Name() string {
	if f.secondary == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

// SynthesizeBytes synthesizes text and reads the full audio payload.
//
// The audio is fully buffered here because the caller delivers it as one
// ordered envelope per sentence, not as a stream.
func (f *Fallback) SynthesizeBytes(
	ctx context.Context, text string, config SynthesisConfig,
) ([]byte, error) {
	audio, primaryErr := f.synthesizeAll(ctx, f.primary, text, config)
	if primaryErr == nil {
		return audio, nil
	}

	if f.secondary == nil {
		return nil, primaryErr
	}

	// Do not burn the fallback attempt on a canceled turn.
	if ctx.Err() != nil {
		return nil, primaryErr
	}

	logger.Warn("primary synthesis failed, trying secondary",
		"primary", f.primary.Name(),
		"secondary", f.secondary.Name(),
		"error", primaryErr)

	audio, secondaryErr := f.synthesizeAll(ctx, f.secondary, text, config)
	if secondaryErr == nil {
		prometheus.RecordSynthesisFallback("recovered")
		return audio, nil
	}

	prometheus.RecordSynthesisFallback("failed")
	return nil, NewSynthesisError(
		f.Name(),
		"",
		fmt.Sprintf("primary and secondary synthesis failed: %v", secondaryErr),
		primaryErr,
		false,
	)
}

// synthesizeAll runs one synthesis call and drains the audio reader.
func (f *Fallback) synthesizeAll(
	ctx context.Context, svc Service, text string, config SynthesisConfig,
) ([]byte, error) {
	reader, err := svc.Synthesize(ctx, text, config)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	audio, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewSynthesisError(svc.Name(), "", "failed to read audio stream", err, true)
	}
	if len(audio) == 0 {
		return nil, NewSynthesisError(svc.Name(), "", "provider returned empty audio", nil, true)
	}
	return audio, nil
}
