package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment with the STORYWEAVER_ prefix.
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	// Backend selects the chapter generator: openai, claude or relay.
	Backend string `envconfig:"BACKEND" default:"openai"`

	OpenAIAPIKey  string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `envconfig:"OPENAI_BASE_URL"`
	ChatModel     string  `envconfig:"CHAT_MODEL" default:"gpt-4"`
	Temperature   float32 `envconfig:"TEMPERATURE" default:"0.8"`
	MaxTokens     int     `envconfig:"MAX_TOKENS" default:"500"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	RelayURL        string `envconfig:"RELAY_URL"`

	// Illustrator selects the image backend: openai, horde or none.
	Illustrator string `envconfig:"ILLUSTRATOR" default:"openai"`
	ImageModel  string `envconfig:"IMAGE_MODEL" default:"dall-e-3"`
	HordeAPIKey string `envconfig:"HORDE_API_KEY" default:"0000000000"`

	StorePath  string        `envconfig:"STORE_PATH" default:"stories.db"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("storyweaver", &cfg); err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}

	switch cfg.Backend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return cfg, fmt.Errorf("STORYWEAVER_OPENAI_API_KEY is required for the openai backend")
		}
	case "claude":
		if cfg.AnthropicAPIKey == "" {
			return cfg, fmt.Errorf("STORYWEAVER_ANTHROPIC_API_KEY is required for the claude backend")
		}
	case "relay":
		if cfg.RelayURL == "" {
			return cfg, fmt.Errorf("STORYWEAVER_RELAY_URL is required for the relay backend")
		}
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	switch cfg.Illustrator {
	case "openai", "horde", "none":
	default:
		return cfg, fmt.Errorf("unknown illustrator %q", cfg.Illustrator)
	}

	return cfg, nil
}
