package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/protocol"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, protocol.DefaultMaxFrameSize, cfg.Server.MaxFrameSize)
	assert.Equal(t, memory.DefaultCapacity, cfg.Session.MemoryCapacity)
	assert.Equal(t, ProviderElevenLabs, cfg.Providers.TTS.Primary)
	assert.Equal(t, ProviderOpenAI, cfg.Providers.TTS.Secondary)
	assert.NotEmpty(t, cfg.Persona.SystemPrompt)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9001"
  max_frame_size: 1048576
session:
  memory_capacity: 20
  audio_max_bytes: 524288
persona:
  system_prompt: "You are a pirate."
providers:
  tts:
    primary: openai
    secondary: elevenlabs
    voice: nova
pipeline:
  synthesis_concurrency: 5
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Server.Addr)
	assert.Equal(t, 1048576, cfg.Server.MaxFrameSize)
	assert.Equal(t, 20, cfg.Session.MemoryCapacity)
	assert.Equal(t, 524288, cfg.Session.AudioMaxBytes)
	assert.Equal(t, "You are a pirate.", cfg.Persona.SystemPrompt)
	assert.Equal(t, "openai", cfg.Providers.TTS.Primary)
	assert.Equal(t, "nova", cfg.Providers.TTS.Voice)
	assert.Equal(t, 5, cfg.Pipeline.SynthesisConcurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":7000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, memory.DefaultCapacity, cfg.Session.MemoryCapacity)
	assert.Equal(t, ProviderOpenAI, cfg.Providers.LLM.Provider)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  tts:
    primary: acme-voice
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme-voice")
}

func TestLoadRejectsSamePrimaryAndSecondary(t *testing.T) {
	path := writeConfig(t, `
providers:
  tts:
    primary: openai
    secondary: openai
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestAPIKeysFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("ELEVENLABS_API_KEY", "el-test-456")

	cfg := Default()

	assert.Equal(t, "sk-test-123", cfg.Providers.LLM.APIKey)
	assert.Equal(t, "sk-test-123", cfg.Providers.STT.APIKey)
	assert.Equal(t, "sk-test-123", cfg.Providers.TTS.OpenAIAPIKey)
	assert.Equal(t, "el-test-456", cfg.Providers.TTS.ElevenLabsAPIKey)
}
