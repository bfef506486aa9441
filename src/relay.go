package storyweaver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const maxRelayBody = 1 << 20

// RelayClient generates chapters by posting an OpenAI-shaped payload to a
// self-hosted relay endpoint. The relay's response shape is not under our
// control, so extraction is deliberately tolerant. Satisfies TextGenerator.
type RelayClient struct {
	endpoint    string
	httpc       *http.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewRelayClient(endpoint string) *RelayClient {
	return &RelayClient{
		endpoint:    endpoint,
		httpc:       &http.Client{Timeout: 90 * time.Second},
		model:       openai.GPT4,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
}

type relayRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

func (c *RelayClient) GenerateStory(ctx context.Context, history []Message) (string, error) {
	body, err := json.Marshal(relayRequest{
		Model:       c.model,
		Messages:    history,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling relay: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return "", fmt.Errorf("reading relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned %d: %s", resp.StatusCode, snippet(data))
	}

	text, err := ExtractStoryText(data)
	if err != nil {
		return "", fmt.Errorf("relay response: %w", err)
	}
	return text, nil
}

// ExtractStoryText pulls story text out of a relay response without
// assuming one fixed shape. It accepts OpenAI-style choices, the common
// single-field wrappers (content, message, story, text), a bare JSON
// string, and finally a non-JSON plain-text body.
func ExtractStoryText(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", errors.New("empty response body")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			if t := strings.TrimSpace(s); t != "" {
				return t, nil
			}
		}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		if s := strings.TrimSpace(string(trimmed)); s != "" {
			return s, nil
		}
		return "", errors.New("unparseable response body")
	}

	if raw, ok := obj["choices"]; ok {
		var choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &choices); err == nil && len(choices) > 0 {
			if s := strings.TrimSpace(choices[0].Message.Content); s != "" {
				return s, nil
			}
			if s := strings.TrimSpace(choices[0].Text); s != "" {
				return s, nil
			}
		}
	}

	for _, key := range []string{"content", "message", "story", "text"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if t := strings.TrimSpace(s); t != "" {
				return t, nil
			}
		}
	}

	return "", errors.New("no story text found in response")
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
