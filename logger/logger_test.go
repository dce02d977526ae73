package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSetVerbose(t *testing.T) {
	defer SetLevel(slog.LevelInfo)

	SetVerbose(true)
	if !DefaultLogger.Enabled(nil, slog.LevelDebug) {
		t.Error("SetVerbose(true) should enable debug logging")
	}

	SetVerbose(false)
	if DefaultLogger.Enabled(nil, slog.LevelDebug) {
		t.Error("SetVerbose(false) should disable debug logging")
	}
}

func TestCollaboratorErrorRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	origOutput := logOutput
	logOutput = &buf
	SetLevel(slog.LevelError)
	defer func() {
		logOutput = origOutput
		SetLevel(slog.LevelInfo)
	}()

	key := "sk-abcdefghijklmnopqrstuvwxyz0123456789"
	err := errors.New("401 unauthorized: invalid key " + key)
	CollaboratorError("transcription", "openai", err, "bytes", 1024)

	out := buf.String()
	if strings.Contains(out, key) {
		t.Fatalf("log output leaked API key: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("log output not redacted: %s", out)
	}
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "openai key",
			input: "key is sk-abcdefghijklmnopqrstuvwxyz0123456789",
			want:  "key is sk-a...[REDACTED]",
		},
		{
			name:  "bearer token",
			input: "Authorization: Bearer abc123def",
			want:  "Authorization: Bearer [REDACTED]",
		},
		{
			name:  "no sensitive data",
			input: "plain log line",
			want:  "plain log line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactSensitiveData(tt.input); got != tt.want {
				t.Errorf("RedactSensitiveData() = %q, want %q", got, tt.want)
			}
		})
	}
}
