package storyweaver

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultTemperature = 0.8
	defaultMaxTokens   = 500
)

// OpenAIClient talks to an OpenAI-compatible API for both chapter text and
// illustrations. It satisfies TextGenerator and Illustrator.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	imageModel  string
	temperature float32
	maxTokens   int
}

// OpenAIOption tweaks the client's model parameters.
type OpenAIOption func(*OpenAIClient)

// WithChatModel overrides the chat completion model.
func WithChatModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithImageModel overrides the image generation model.
func WithImageModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.imageModel = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(c *OpenAIClient) { c.temperature = t }
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// NewOpenAIClient builds a client. An empty baseURL keeps the official
// endpoint; a non-empty one points at a compatible proxy.
func NewOpenAIClient(apiKey, baseURL string, opts ...OpenAIOption) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	c := &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       openai.GPT4,
		imageModel:  openai.CreateImageModelDallE3,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateStory sends the full history in order and returns the raw
// completion text.
func (c *OpenAIClient) GenerateStory(ctx context.Context, history []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage returns a hosted URL for an illustration of the prompt.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", errors.New("no image in response")
	}
	if resp.Data[0].URL != "" {
		return resp.Data[0].URL, nil
	}
	// Some compatible endpoints only return inline payloads.
	if resp.Data[0].B64JSON != "" {
		return "data:image/png;base64," + resp.Data[0].B64JSON, nil
	}
	return "", errors.New("image response carries neither url nor payload")
}
