package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tinhbv101/voice-ai/llm"
	"github.com/tinhbv101/voice-ai/logger"
	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
	"github.com/tinhbv101/voice-ai/protocol"
	"github.com/tinhbv101/voice-ai/stt"
	"github.com/tinhbv101/voice-ai/tts"
)

// DefaultSynthesisConcurrency bounds concurrent synthesis calls per turn,
// protecting the synthesis providers from sentence bursts.
const DefaultSynthesisConcurrency = 3

// ErrTurnAborted indicates the turn stopped before completing, either from
// a collaborator failure or a canceled session.
var ErrTurnAborted = errors.New("turn aborted")

// Emitter delivers envelopes to the client that owns a turn. The server's
// session type implements it; tests use in-memory fakes.
type Emitter interface {
	// SessionID returns the owning session's identity.
	SessionID() string

	// Emit sends one envelope to the client. Emit failures mean the client
	// is gone; the pipeline logs and keeps going so cleanup still runs.
	Emit(env *protocol.Envelope) error
}

// Synthesizer is the synthesis contract the pipeline needs. *tts.Fallback
// satisfies it.
type Synthesizer interface {
	Name() string
	SynthesizeBytes(ctx context.Context, text string, config tts.SynthesisConfig) ([]byte, error)
}

// TurnInput is the resolved client input that starts a turn: direct text,
// or a complete utterance to transcribe first.
type TurnInput struct {
	// Text is the typed input. Ignored when Audio is set.
	Text string

	// Audio is the accumulated utterance bytes. When non-empty the turn
	// begins with transcription.
	Audio []byte
}

// Orchestrator runs conversation turns. One instance serves all sessions;
// all per-turn state lives on the stack of RunTurn.
type Orchestrator struct {
	transcriber stt.Service
	generator   llm.Service
	synthesizer Synthesizer

	systemPrompt  string
	transcription stt.TranscriptionConfig
	synthesis     tts.SynthesisConfig
	concurrency   int64
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSystemPrompt sets the persona prompt prepended to every generation
// call.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithTranscriptionConfig sets the transcription parameters.
func WithTranscriptionConfig(config stt.TranscriptionConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transcription = config
	}
}

// WithSynthesisConfig sets the synthesis parameters.
func WithSynthesisConfig(config tts.SynthesisConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesis = config
	}
}

// WithSynthesisConcurrency bounds concurrent synthesis calls per turn.
func WithSynthesisConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = int64(n)
		}
	}
}

// NewOrchestrator creates an orchestrator over the three collaborators.
func NewOrchestrator(
	transcriber stt.Service,
	generator llm.Service,
	synthesizer Synthesizer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		transcriber:   transcriber,
		generator:     generator,
		synthesizer:   synthesizer,
		transcription: stt.DefaultTranscriptionConfig(),
		synthesis:     tts.DefaultSynthesisConfig(),
		concurrency:   DefaultSynthesisConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// synthResult is the outcome of one sentence's synthesis.
type synthResult struct {
	unit  SentenceUnit
	audio []byte
	err   error
}

// RunTurn executes one full turn against the given session.
//
// Audio input is transcribed first; a transcription failure aborts the
// turn before any generation. Generation deltas are forwarded as
// text_response envelopes immediately, segmented into sentences, and each
// sentence is synthesized concurrently. Audio envelopes are delivered
// strictly in sentence order; a sentence whose synthesis fails after
// fallback is skipped without blocking later ones. On success the
// assistant reply is committed to memory and a turn-complete status is
// emitted.
func (o *Orchestrator) RunTurn(
	ctx context.Context,
	sess Emitter,
	mem *memory.Memory,
	input TurnInput,
) error {
	start := time.Now()
	inputKind := "text"
	if len(input.Audio) > 0 {
		inputKind = "audio"
	}

	text, err := o.resolveInput(ctx, sess, input)
	if err != nil {
		prometheus.RecordTurn(inputKind, prometheus.StatusError, time.Since(start).Seconds())
		return err
	}

	if err := mem.Append(memory.RoleUser, text); err != nil {
		o.emit(sess, protocol.NewError(protocol.ErrKindInternal, "failed to record input", sess.SessionID()))
		prometheus.RecordTurn(inputKind, prometheus.StatusError, time.Since(start).Seconds())
		return err
	}

	reply, err := o.generate(ctx, sess, mem.Context())
	if err != nil {
		prometheus.RecordTurn(inputKind, prometheus.StatusError, time.Since(start).Seconds())
		return err
	}

	if reply != "" {
		if err := mem.Append(memory.RoleAssistant, reply); err != nil {
			logger.WarnContext(ctx, "failed to record assistant reply",
				"session_id", sess.SessionID(), "error", err)
		}
	}

	o.emit(sess, protocol.NewStatus("turn_complete", sess.SessionID()))
	prometheus.RecordTurn(inputKind, prometheus.StatusSuccess, time.Since(start).Seconds())
	return nil
}

// resolveInput produces the turn's user text, transcribing audio input
// when present.
func (o *Orchestrator) resolveInput(ctx context.Context, sess Emitter, input TurnInput) (string, error) {
	if len(input.Audio) == 0 {
		text := strings.TrimSpace(input.Text)
		if text == "" {
			o.emit(sess, protocol.NewError(protocol.ErrKindProtocol, "empty text input", sess.SessionID()))
			return "", ErrTurnAborted
		}
		return text, nil
	}

	callStart := time.Now()
	text, err := o.transcriber.Transcribe(ctx, input.Audio, o.transcription)
	status := prometheus.StatusSuccess
	if err != nil {
		status = prometheus.StatusError
	}
	prometheus.RecordProviderRequest(o.transcriber.Name(), "transcribe", status, time.Since(callStart).Seconds())

	if err != nil {
		logger.ErrorContext(ctx, "transcription failed",
			"session_id", sess.SessionID(),
			"provider", o.transcriber.Name(),
			"error", err)
		o.emit(sess, protocol.NewError(protocol.ErrKindTranscription, "transcription failed", sess.SessionID()))
		return "", err
	}

	o.emit(sess, protocol.NewTranscript(text, true, sess.SessionID()))
	return text, nil
}

// generate streams the reply, emitting text deltas and ordered audio, and
// returns the full generated text.
func (o *Orchestrator) generate(ctx context.Context, sess Emitter, history []llm.Message) (string, error) {
	// Scope synthesis to this turn so a generation failure stops
	// outstanding synthesis calls too.
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	callStart := time.Now()
	chunks, err := o.generator.Stream(ctx, o.systemPrompt, history)
	if err != nil {
		prometheus.RecordProviderRequest(o.generator.Name(), "generate", prometheus.StatusError, time.Since(callStart).Seconds())
		logger.ErrorContext(ctx, "generation failed to start",
			"session_id", sess.SessionID(),
			"provider", o.generator.Name(),
			"error", err)
		o.emit(sess, protocol.NewError(protocol.ErrKindGeneration, "generation failed", sess.SessionID()))
		return "", err
	}

	// slots carries one result channel per sentence, in ordinal order. The
	// deliverer drains it sequentially, which is what enforces in-order
	// audio delivery regardless of synthesis completion order.
	slots := make(chan chan synthResult, 64)
	delivered := make(chan struct{})
	go o.deliverAudio(sess, slots, delivered)

	sem := semaphore.NewWeighted(o.concurrency)
	seg := NewSegmenter()
	var full strings.Builder
	var genErr error

	for chunk := range chunks {
		if chunk.Err != nil {
			genErr = chunk.Err
			break
		}
		if chunk.Delta == "" {
			continue
		}
		full.WriteString(chunk.Delta)
		o.emit(sess, protocol.NewTextResponse(chunk.Delta, sess.SessionID()))
		for _, unit := range seg.Feed(chunk.Delta) {
			o.dispatchSynthesis(turnCtx, sem, slots, unit)
		}
	}

	if genErr == nil {
		if unit := seg.Flush(); unit != nil {
			o.dispatchSynthesis(turnCtx, sem, slots, *unit)
		}
	}

	close(slots)

	genStatus := prometheus.StatusSuccess
	if genErr != nil {
		genStatus = prometheus.StatusError
		// Stop in-flight synthesis; already-delivered audio stays sent.
		cancel()
	}
	prometheus.RecordProviderRequest(o.generator.Name(), "generate", genStatus, time.Since(callStart).Seconds())

	<-delivered

	if genErr != nil {
		logger.ErrorContext(ctx, "generation failed mid-stream",
			"session_id", sess.SessionID(),
			"provider", o.generator.Name(),
			"error", genErr)
		o.emit(sess, protocol.NewError(protocol.ErrKindGeneration, "generation failed", sess.SessionID()))
		return full.String(), genErr
	}
	return full.String(), nil
}

// dispatchSynthesis starts one sentence's synthesis under the concurrency
// bound and queues its result slot for ordered delivery.
func (o *Orchestrator) dispatchSynthesis(
	ctx context.Context,
	sem *semaphore.Weighted,
	slots chan chan synthResult,
	unit SentenceUnit,
) {
	slot := make(chan synthResult, 1)
	slots <- slot

	go func() {
		if err := sem.Acquire(ctx, 1); err != nil {
			slot <- synthResult{unit: unit, err: err}
			return
		}
		defer sem.Release(1)

		callStart := time.Now()
		audio, err := o.synthesizer.SynthesizeBytes(ctx, unit.Text, o.synthesis)
		status := prometheus.StatusSuccess
		if err != nil {
			status = prometheus.StatusError
		}
		prometheus.RecordProviderRequest(o.synthesizer.Name(), "synthesize", status, time.Since(callStart).Seconds())

		slot <- synthResult{unit: unit, audio: audio, err: err}
	}()
}

// deliverAudio drains result slots in ordinal order and emits
// audio_response envelopes. Failed sentences are skipped, never waited on
// past their slot.
func (o *Orchestrator) deliverAudio(sess Emitter, slots chan chan synthResult, done chan struct{}) {
	defer close(done)
	for slot := range slots {
		res := <-slot
		if res.err != nil {
			logger.Warn("skipping sentence audio after synthesis failure",
				"session_id", sess.SessionID(),
				"sentence_index", res.unit.Index,
				"error", res.err)
			prometheus.RecordSentenceUnit("skipped")
			continue
		}
		o.emit(sess, protocol.NewAudioResponse(res.audio, res.unit.Index, sess.SessionID()))
		prometheus.RecordSentenceUnit("delivered")
	}
}

// emit sends one envelope, logging delivery failures at debug level. A
// failed emit means the client disconnected; the turn finishes its own
// cleanup regardless.
func (o *Orchestrator) emit(sess Emitter, env *protocol.Envelope) {
	if err := sess.Emit(env); err != nil {
		logger.Debug("envelope delivery failed",
			"session_id", sess.SessionID(),
			"kind", env.Type,
			"error", err)
	}
}
