// Package api serves the diary's collaborator endpoints: punctuation,
// titles, transcription and parent PIN checks.
package api

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the secrets and upstream endpoints of the collaborator API.
// Everything is read from the process environment.
type Config struct {
	OpenAIKey        string        `env:"OPENAI_API_KEY"`
	PinHash          string        `env:"PARENT_PIN_HASH"`
	CompletionURL    string        `env:"DIARY_COMPLETION_URL" envDefault:"https://api.openai.com/v1/chat/completions"`
	TranscriptionURL string        `env:"DIARY_TRANSCRIPTION_URL" envDefault:"https://api.openai.com/v1/audio/transcriptions"`
	Model            string        `env:"DIARY_COMPLETION_MODEL" envDefault:"gpt-4.1-mini"`
	TranscribeModel  string        `env:"DIARY_TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	PinDelay         time.Duration `env:"DIARY_PIN_DELAY" envDefault:"200ms"`
	UpstreamTimeout  time.Duration `env:"DIARY_UPSTREAM_TIMEOUT" envDefault:"60s"`
}

// LoadConfig loads the API configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
