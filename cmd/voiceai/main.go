// Command voiceai runs the real-time voice session server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinhbv101/voice-ai/config"
	"github.com/tinhbv101/voice-ai/llm"
	"github.com/tinhbv101/voice-ai/logger"
	"github.com/tinhbv101/voice-ai/metrics/prometheus"
	"github.com/tinhbv101/voice-ai/pipeline"
	"github.com/tinhbv101/voice-ai/server"
	"github.com/tinhbv101/voice-ai/stt"
	"github.com/tinhbv101/voice-ai/tts"
	"github.com/tinhbv101/voice-ai/version"
)

// shutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if err := run(*configPath, *addr, *verbose); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if verbose {
		logger.SetVerbose(true)
	}
	logger.Info("starting voiceai server", version.GetBuildInfo()...)

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	manager := server.NewManager(
		server.WithMemoryCapacity(cfg.Session.MemoryCapacity),
		server.WithAudioMaxBytes(cfg.Session.AudioMaxBytes),
		server.WithRateLimit(cfg.Session.RateLimit, cfg.Session.RateBurst),
	)

	srv := server.NewServer(manager, orchestrator, prometheus.NewExporter(),
		server.WithAddr(cfg.Server.Addr),
		server.WithMaxFrameSize(cfg.Server.MaxFrameSize),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildOrchestrator wires the configured collaborators into the turn
// pipeline.
func buildOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, error) {
	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}
	synthesizer, err := buildSynthesizer(cfg)
	if err != nil {
		return nil, err
	}

	transcription := stt.DefaultTranscriptionConfig()
	if cfg.Providers.STT.Model != "" {
		transcription.Model = cfg.Providers.STT.Model
	}
	if cfg.Providers.STT.Language != "" {
		transcription.Language = cfg.Providers.STT.Language
	}

	synthesis := tts.DefaultSynthesisConfig()
	if cfg.Providers.TTS.Voice != "" {
		synthesis.Voice = cfg.Providers.TTS.Voice
	}
	if cfg.Providers.TTS.Format != "" {
		format, ok := tts.FormatByName(cfg.Providers.TTS.Format)
		if !ok {
			return nil, fmt.Errorf("unknown audio format %q", cfg.Providers.TTS.Format)
		}
		synthesis.Format = format
	}
	if cfg.Providers.TTS.Model != "" {
		synthesis.Model = cfg.Providers.TTS.Model
	}

	return pipeline.NewOrchestrator(transcriber, generator, synthesizer,
		pipeline.WithSystemPrompt(cfg.Persona.SystemPrompt),
		pipeline.WithTranscriptionConfig(transcription),
		pipeline.WithSynthesisConfig(synthesis),
		pipeline.WithSynthesisConcurrency(cfg.Pipeline.SynthesisConcurrency),
	), nil
}

func buildTranscriber(cfg *config.Config) (stt.Service, error) {
	switch cfg.Providers.STT.Provider {
	case config.ProviderOpenAI:
		var opts []stt.OpenAIOption
		if cfg.Providers.STT.Model != "" {
			opts = append(opts, stt.WithOpenAIModel(cfg.Providers.STT.Model))
		}
		return stt.NewOpenAI(cfg.Providers.STT.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Providers.STT.Provider)
	}
}

func buildGenerator(cfg *config.Config) (llm.Service, error) {
	switch cfg.Providers.LLM.Provider {
	case config.ProviderOpenAI:
		var opts []llm.OpenAIOption
		if cfg.Providers.LLM.Model != "" {
			opts = append(opts, llm.WithOpenAIModel(cfg.Providers.LLM.Model))
		}
		if cfg.Providers.LLM.Temperature > 0 {
			opts = append(opts, llm.WithOpenAITemperature(cfg.Providers.LLM.Temperature))
		}
		return llm.NewOpenAI(cfg.Providers.LLM.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Providers.LLM.Provider)
	}
}

func buildSynthesizer(cfg *config.Config) (*tts.Fallback, error) {
	primary, err := buildTTSService(cfg, cfg.Providers.TTS.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := buildTTSService(cfg, cfg.Providers.TTS.Secondary)
	if err != nil {
		return nil, err
	}
	return tts.NewFallback(primary, secondary), nil
}

func buildTTSService(cfg *config.Config, name string) (tts.Service, error) {
	switch name {
	case config.ProviderOpenAI:
		return tts.NewOpenAI(cfg.Providers.TTS.OpenAIAPIKey), nil
	case config.ProviderElevenLabs:
		return tts.NewElevenLabs(cfg.Providers.TTS.ElevenLabsAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", name)
	}
}
