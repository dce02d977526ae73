package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinhbv101/voice-ai/llm"
	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/protocol"
	"github.com/tinhbv101/voice-ai/stt"
	"github.com/tinhbv101/voice-ai/tts"
)

// fakeEmitter records every envelope a turn sends.
type fakeEmitter struct {
	mu   sync.Mutex
	envs []*protocol.Envelope
}

func (e *fakeEmitter) SessionID() string { return "sess-1" }

func (e *fakeEmitter) Emit(env *protocol.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envs = append(e.envs, env)
	return nil
}

func (e *fakeEmitter) byKind(kind protocol.Kind) []*protocol.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*protocol.Envelope
	for _, env := range e.envs {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeGenerator streams scripted deltas, optionally ending with an error.
type fakeGenerator struct {
	deltas []string
	err    error
	calls  int
}

func (f *fakeGenerator) Name() string { return "fake-llm" }

func (f *fakeGenerator) Stream(ctx context.Context, system string, history []llm.Message) (<-chan llm.Chunk, error) {
	f.calls++
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		var content string
		for _, d := range f.deltas {
			content += d
			ch <- llm.Chunk{Content: content, Delta: d}
		}
		if f.err != nil {
			ch <- llm.Chunk{Err: f.err}
			return
		}
		ch <- llm.Chunk{Content: content, FinishReason: llm.StringPtr("stop")}
	}()
	return ch, nil
}

// fakeSynthesizer answers with AUDIO:<text>, with optional per-text delay
// and failure injection.
type fakeSynthesizer struct {
	mu     sync.Mutex
	delays map[string]time.Duration
	fails  map[string]bool
	calls  []string
}

func (f *fakeSynthesizer) Name() string { return "fake-tts" }

func (f *fakeSynthesizer) SynthesizeBytes(ctx context.Context, text string, config tts.SynthesisConfig) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	delay := f.delays[text]
	fail := f.fails[text]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, tts.NewSynthesisError("fake-tts", "", "injected failure", nil, false)
	}
	return []byte("AUDIO:" + text), nil
}

func newTestOrchestrator(transcriber *fakeTranscriber, gen *fakeGenerator, syn *fakeSynthesizer) *Orchestrator {
	return NewOrchestrator(transcriber, gen, syn, WithSystemPrompt("You are a helpful assistant."))
}

func audioPayload(t *testing.T, env *protocol.Envelope) protocol.AudioResponse {
	t.Helper()
	var p protocol.AudioResponse
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestRunTurnTextInput(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"Hello", " there.", " Goodbye", " now."}}
	syn := &fakeSynthesizer{}
	sttSvc := &fakeTranscriber{}
	orch := newTestOrchestrator(sttSvc, gen, syn)

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	err := orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "Hi"})
	require.NoError(t, err)

	// Text deltas forwarded as they arrived.
	texts := sess.byKind(protocol.KindTextResponse)
	assert.Len(t, texts, 4)

	// Two sentences, audio in ordinal order.
	audios := sess.byKind(protocol.KindAudioResponse)
	require.Len(t, audios, 2)
	first := audioPayload(t, audios[0])
	second := audioPayload(t, audios[1])
	assert.Equal(t, 0, first.SentenceIndex)
	assert.Equal(t, []byte("AUDIO:Hello there."), first.Audio)
	assert.Equal(t, 1, second.SentenceIndex)
	assert.Equal(t, []byte("AUDIO:Goodbye now."), second.Audio)

	// Turn-complete status at the end.
	statuses := sess.byKind(protocol.KindStatus)
	require.NotEmpty(t, statuses)

	// Memory holds both sides of the exchange.
	history := mem.Context()
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "Hi", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello there. Goodbye now.", history[1].Content)

	// No transcription for text input.
	assert.Zero(t, sttSvc.calls)
	assert.Empty(t, sess.byKind(protocol.KindTranscript))
}

func TestRunTurnAudioDeliveredInOrderDespiteCompletionOrder(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"First.", " Second.", " Third."}}
	// The first sentence finishes last.
	syn := &fakeSynthesizer{delays: map[string]time.Duration{
		"First.": 80 * time.Millisecond,
	}}
	orch := newTestOrchestrator(&fakeTranscriber{}, gen, syn)

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	require.NoError(t, orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "go"}))

	audios := sess.byKind(protocol.KindAudioResponse)
	require.Len(t, audios, 3)
	for i, env := range audios {
		assert.Equal(t, i, audioPayload(t, env).SentenceIndex)
	}
}

func TestRunTurnAudioInput(t *testing.T) {
	sttSvc := &fakeTranscriber{text: "what time is it"}
	gen := &fakeGenerator{deltas: []string{"It is noon."}}
	syn := &fakeSynthesizer{}
	orch := newTestOrchestrator(sttSvc, gen, syn)

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	err := orch.RunTurn(context.Background(), sess, mem, TurnInput{Audio: []byte{0x01, 0x02}})
	require.NoError(t, err)

	assert.Equal(t, 1, sttSvc.calls)

	transcripts := sess.byKind(protocol.KindTranscript)
	require.Len(t, transcripts, 1)
	var tp protocol.Transcript
	require.NoError(t, json.Unmarshal(transcripts[0].Data, &tp))
	assert.Equal(t, "what time is it", tp.Text)
	assert.True(t, tp.Final)

	history := mem.Context()
	require.Len(t, history, 2)
	assert.Equal(t, "what time is it", history[0].Content)
}

func TestRunTurnTranscriptionFailureAbortsBeforeGeneration(t *testing.T) {
	sttSvc := &fakeTranscriber{err: errors.New("upstream 500")}
	gen := &fakeGenerator{deltas: []string{"never"}}
	orch := newTestOrchestrator(sttSvc, gen, &fakeSynthesizer{})

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	err := orch.RunTurn(context.Background(), sess, mem, TurnInput{Audio: []byte{0x01}})
	require.Error(t, err)

	assert.Zero(t, gen.calls, "generation must not start after a transcription failure")
	assert.Zero(t, mem.Len(), "no memory entry for a failed turn input")

	errs := sess.byKind(protocol.KindError)
	require.Len(t, errs, 1)
	var ep protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Data, &ep))
	assert.Equal(t, protocol.ErrKindTranscription, ep.Kind)

	assert.Empty(t, sess.byKind(protocol.KindAudioResponse))
	assert.Empty(t, sess.byKind(protocol.KindStatus))
}

func TestRunTurnFailedSentenceSkipped(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"Good one.", " Bad one.", " Last one."}}
	syn := &fakeSynthesizer{fails: map[string]bool{"Bad one.": true}}
	orch := newTestOrchestrator(&fakeTranscriber{}, gen, syn)

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	require.NoError(t, orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "go"}))

	audios := sess.byKind(protocol.KindAudioResponse)
	require.Len(t, audios, 2)
	assert.Equal(t, 0, audioPayload(t, audios[0]).SentenceIndex)
	assert.Equal(t, 2, audioPayload(t, audios[1]).SentenceIndex, "failed sentence is skipped, later audio still delivered")

	// The turn still completes.
	assert.NotEmpty(t, sess.byKind(protocol.KindStatus))
}

func TestRunTurnGenerationFailureMidStream(t *testing.T) {
	gen := &fakeGenerator{
		deltas: []string{"Partial answer."},
		err:    llm.NewGenerationError("fake-llm", "", "stream cut", nil, true),
	}
	orch := newTestOrchestrator(&fakeTranscriber{}, gen, &fakeSynthesizer{})

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	err := orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "go"})
	require.Error(t, err)

	errs := sess.byKind(protocol.KindError)
	require.Len(t, errs, 1)
	var ep protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Data, &ep))
	assert.Equal(t, protocol.ErrKindGeneration, ep.Kind)

	// The user entry committed before the failure is preserved.
	history := mem.Context()
	require.NotEmpty(t, history)
	assert.Equal(t, llm.RoleUser, history[0].Role)

	// Already-emitted text is not retracted.
	assert.NotEmpty(t, sess.byKind(protocol.KindTextResponse))
	assert.Empty(t, sess.byKind(protocol.KindStatus))
}

func TestRunTurnEmptyTextRejected(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"never"}}
	orch := newTestOrchestrator(&fakeTranscriber{}, gen, &fakeSynthesizer{})

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	err := orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "   "})
	require.ErrorIs(t, err, ErrTurnAborted)
	assert.Zero(t, gen.calls)
	assert.Zero(t, mem.Len())
}

func TestRunTurnTrailingPartialSynthesized(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"No terminator here"}}
	syn := &fakeSynthesizer{}
	orch := newTestOrchestrator(&fakeTranscriber{}, gen, syn)

	sess := &fakeEmitter{}
	mem := memory.New(memory.DefaultCapacity)

	require.NoError(t, orch.RunTurn(context.Background(), sess, mem, TurnInput{Text: "go"}))

	audios := sess.byKind(protocol.KindAudioResponse)
	require.Len(t, audios, 1)
	assert.Equal(t, []byte("AUDIO:No terminator here"), audioPayload(t, audios[0]).Audio)
}
