// Package config loads the server configuration from YAML with
// environment overrides for provider credentials.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinhbv101/voice-ai/audio"
	"github.com/tinhbv101/voice-ai/memory"
	"github.com/tinhbv101/voice-ai/pipeline"
	"github.com/tinhbv101/voice-ai/protocol"
	"github.com/tinhbv101/voice-ai/server"
)

// DefaultSystemPrompt is used when no persona is configured.
const DefaultSystemPrompt = "You are a helpful voice assistant. Keep replies short and conversational."

// Provider name constants for the closed provider set.
const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Persona   PersonaConfig   `yaml:"persona"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxFrameSize int    `yaml:"max_frame_size"`
}

// SessionConfig holds per-session resource limits.
type SessionConfig struct {
	MemoryCapacity int     `yaml:"memory_capacity"`
	AudioMaxBytes  int     `yaml:"audio_max_bytes"`
	RateLimit      float64 `yaml:"rate_limit"` // envelopes per second
	RateBurst      int     `yaml:"rate_burst"`
}

// PersonaConfig holds the assistant persona.
type PersonaConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// ProvidersConfig selects and configures the external collaborators.
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	LLM LLMConfig `yaml:"llm"`
	TTS TTSConfig `yaml:"tts"`
}

// STTConfig configures transcription.
type STTConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	APIKey   string `yaml:"-"` // env only, never from file
}

// LLMConfig configures text generation.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

// TTSConfig configures speech synthesis and its fallback.
type TTSConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
	Voice     string `yaml:"voice"`
	Format    string `yaml:"format"`
	Model     string `yaml:"model"`

	OpenAIAPIKey     string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

// PipelineConfig holds turn processing settings.
type PipelineConfig struct {
	SynthesisConcurrency int `yaml:"synthesis_concurrency"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied and
// credentials read from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML configuration file, applies defaults for unset
// fields, pulls credentials from the environment, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.MaxFrameSize <= 0 {
		c.Server.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.Session.MemoryCapacity <= 0 {
		c.Session.MemoryCapacity = memory.DefaultCapacity
	}
	if c.Session.AudioMaxBytes <= 0 {
		c.Session.AudioMaxBytes = audio.DefaultMaxBytes
	}
	if c.Session.RateLimit <= 0 {
		c.Session.RateLimit = server.DefaultRateLimit
	}
	if c.Session.RateBurst <= 0 {
		c.Session.RateBurst = server.DefaultRateBurst
	}
	if c.Persona.SystemPrompt == "" {
		c.Persona.SystemPrompt = DefaultSystemPrompt
	}
	if c.Providers.STT.Provider == "" {
		c.Providers.STT.Provider = ProviderOpenAI
	}
	if c.Providers.LLM.Provider == "" {
		c.Providers.LLM.Provider = ProviderOpenAI
	}
	if c.Providers.TTS.Primary == "" {
		c.Providers.TTS.Primary = ProviderElevenLabs
	}
	if c.Providers.TTS.Secondary == "" {
		c.Providers.TTS.Secondary = ProviderOpenAI
	}
	if c.Pipeline.SynthesisConcurrency <= 0 {
		c.Pipeline.SynthesisConcurrency = pipeline.DefaultSynthesisConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) applyEnv() {
	openaiKey := os.Getenv("OPENAI_API_KEY")
	c.Providers.STT.APIKey = openaiKey
	c.Providers.LLM.APIKey = openaiKey
	c.Providers.TTS.OpenAIAPIKey = openaiKey
	c.Providers.TTS.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
}

// Validate checks provider selections against the closed provider set.
func (c *Config) Validate() error {
	if c.Providers.STT.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown stt provider %q", c.Providers.STT.Provider)
	}
	if c.Providers.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown llm provider %q", c.Providers.LLM.Provider)
	}
	if !validTTSProvider(c.Providers.TTS.Primary) {
		return fmt.Errorf("unknown tts primary provider %q", c.Providers.TTS.Primary)
	}
	if !validTTSProvider(c.Providers.TTS.Secondary) {
		return fmt.Errorf("unknown tts secondary provider %q", c.Providers.TTS.Secondary)
	}
	if c.Providers.TTS.Primary == c.Providers.TTS.Secondary {
		return fmt.Errorf("tts primary and secondary must differ")
	}
	return nil
}

func validTTSProvider(name string) bool {
	return name == ProviderOpenAI || name == ProviderElevenLabs
}
