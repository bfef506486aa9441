// Package ui provides the web interface for the interactive story engine.
package ui

import (
	"encoding/json"
	"net/http"
	"strings"

	storyweaver "github.com/opd-ai/storyweaver/src"
)

// The /api endpoints mirror the upstream chat and image APIs for the static
// front end: the server keeps the API keys, the browser only ever talks
// here.

func (ui *StoryUI) handleGenerateStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []storyweaver.Message `json:"messages"`
		Prompt   string                `json:"prompt"`
		Context  string                `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Full message lists pass through untouched; bare prompts get wrapped
	// with the storytelling persona and any caller-supplied context.
	history := req.Messages
	if len(history) == 0 {
		if strings.TrimSpace(req.Prompt) == "" {
			jsonError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		history = []storyweaver.Message{
			{Role: storyweaver.RoleSystem, Content: storyweaver.RelayPersonaPrompt},
		}
		if ctx := strings.TrimSpace(req.Context); ctx != "" {
			history = append(history, storyweaver.Message{Role: storyweaver.RoleSystem, Content: ctx})
		}
		history = append(history, storyweaver.Message{Role: storyweaver.RoleUser, Content: req.Prompt})
	}

	text, err := ui.deps.Generator.GenerateStory(r.Context(), history)
	if err != nil {
		ui.log.Error().Err(err).Msg("relay story generation failed")
		jsonError(w, http.StatusBadGateway, "story generation failed")
		return
	}

	// Upstream-shaped payload so existing front-end extraction keeps working.
	writeJSON(w, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
	})
}

// handleGenerateImage always answers 200 with an imageUrl; failures degrade
// to an inline placeholder so the front end never shows a broken image.
func (ui *StoryUI) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Prompt = ""
	}

	imageURL := storyweaver.PlaceholderImage("Image not available")
	if ui.deps.Illustrator != nil {
		prompt := storyweaver.SanitizeImagePrompt(req.Prompt)
		if ref, err := ui.deps.Illustrator.GenerateImage(r.Context(), prompt); err != nil {
			ui.log.Warn().Err(err).Msg("relay image generation failed")
		} else if ref != "" {
			imageURL = ref
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": imageURL})
}
