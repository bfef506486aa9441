package main

import (
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	storyweaver "github.com/opd-ai/storyweaver/src"
	"github.com/opd-ai/storyweaver/srv/ui"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := storyweaver.OpenSQLiteStore(cfg.StorePath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("opening story store")
	}
	defer store.Close()

	app := ui.NewStoryUI(ui.Deps{
		Generator:   buildGenerator(cfg),
		Illustrator: buildIllustrator(cfg),
		Store:       store,
		SessionTTL:  cfg.SessionTTL,
		Logger:      log,
	})

	log.Info().
		Str("addr", cfg.Addr).
		Str("backend", cfg.Backend).
		Str("illustrator", cfg.Illustrator).
		Msg("storyweaver listening")
	if err := http.ListenAndServe(cfg.Addr, app); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func buildGenerator(cfg Config) storyweaver.TextGenerator {
	switch cfg.Backend {
	case "claude":
		return storyweaver.NewClaudeClient(cfg.AnthropicAPIKey)
	case "relay":
		return storyweaver.NewRelayClient(cfg.RelayURL)
	default:
		return storyweaver.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL,
			storyweaver.WithChatModel(cfg.ChatModel),
			storyweaver.WithTemperature(cfg.Temperature),
			storyweaver.WithMaxTokens(cfg.MaxTokens),
		)
	}
}

func buildIllustrator(cfg Config) storyweaver.Illustrator {
	switch cfg.Illustrator {
	case "horde":
		return storyweaver.NewHordeIllustrator(cfg.HordeAPIKey)
	case "none":
		return nil
	default:
		return storyweaver.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL,
			storyweaver.WithImageModel(cfg.ImageModel),
		)
	}
}
