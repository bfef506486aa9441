package storyweaver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/opd-ai/horde"
)

// HordeIllustrator renders chapter illustrations on the AI Horde network
// and returns them as inline data URLs. Satisfies Illustrator.
type HordeIllustrator struct {
	client *horde.Client
	model  string
}

func NewHordeIllustrator(apiKey string) *HordeIllustrator {
	return &HordeIllustrator{
		client: horde.NewClient(apiKey),
		model:  horde.DefaultModel,
	}
}

// GenerateImage submits the prompt, waits for the horde to finish and
// downloads the result. The horde client has no context plumbing, so the
// context is only checked between steps.
func (h *HordeIllustrator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	req := horde.GenerationRequest{
		Prompt: prompt,
		Params: horde.Params{
			Steps:     horde.DefaultSteps,
			Width:     horde.DefaultWidth,
			Height:    horde.DefaultHeight,
			ModelName: h.model,
		},
	}

	resp, err := h.client.RequestGeneration(req)
	if err != nil {
		return "", fmt.Errorf("requesting generation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	status, err := h.client.WaitForCompletion(resp.ID)
	if err != nil {
		return "", fmt.Errorf("waiting for completion: %w", err)
	}
	if len(status.Generation) == 0 {
		return "", errors.New("no generations returned")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := h.client.DownloadImage(status.Generation[0].Image)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	return "data:image/webp;base64," + base64.StdEncoding.EncodeToString(data), nil
}
