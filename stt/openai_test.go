package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAITranscribe_Success(t *testing.T) {
	var gotModel, gotLanguage, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(4<<20))
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename

		// PCM input must arrive wrapped as WAV.
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(data[:4]))

		fmt.Fprint(w, `{"text":"xin chào"}`)
	}))
	defer srv.Close()

	svc := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL))

	cfg := DefaultTranscriptionConfig()
	cfg.Language = "vi"
	text, err := svc.Transcribe(context.Background(), []byte{0x00, 0x01, 0x02, 0x03}, cfg)

	require.NoError(t, err)
	assert.Equal(t, "xin chào", text)
	assert.Equal(t, ModelWhisper1, gotModel)
	assert.Equal(t, "vi", gotLanguage)
	assert.Equal(t, "audio.wav", gotFilename)
}

func TestOpenAITranscribe_EmptyAudio(t *testing.T) {
	svc := NewOpenAI("test-key")

	_, err := svc.Transcribe(context.Background(), nil, DefaultTranscriptionConfig())
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestOpenAITranscribe_EmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"   "}`)
	}))
	defer srv.Close()

	svc := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL))

	_, err := svc.Transcribe(context.Background(), []byte{0x01}, DefaultTranscriptionConfig())
	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	assert.False(t, terr.Retryable)
}

func TestOpenAITranscribe_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	svc := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL))

	_, err := svc.Transcribe(context.Background(), []byte{0x01}, DefaultTranscriptionConfig())
	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Retryable)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAITranscribe_NonJSONErrorBodyRedacted(t *testing.T) {
	key := "sk-abcdefghijklmnopqrstuvwxyz0123456789"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "upstream rejected credential %s", key)
	}))
	defer srv.Close()

	svc := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL))

	_, err := svc.Transcribe(context.Background(), []byte{0x01}, DefaultTranscriptionConfig())
	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.NotContains(t, terr.Message, key)
	assert.Contains(t, terr.Message, "[REDACTED]")
}

func TestOpenAITranscribe_WAVPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(4<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.wav", header.Filename)
		fmt.Fprint(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	svc := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL))

	cfg := DefaultTranscriptionConfig()
	cfg.Format = FormatWAV
	_, err := svc.Transcribe(context.Background(), []byte("RIFFxxxx"), cfg)
	require.NoError(t, err)
}

func TestWrapPCMAsWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := WrapPCMAsWAV(pcm, 16000, 1, 16)

	require.Len(t, wav, wavHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, pcm, wav[wavHeaderSize:])

	// Sample rate little-endian at offset 24.
	gotRate := uint32(wav[24]) | uint32(wav[25])<<8 | uint32(wav[26])<<16 | uint32(wav[27])<<24
	assert.Equal(t, uint32(16000), gotRate)
}
