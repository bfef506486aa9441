package storyweaver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeMaxRetries = 3

// ClaudeClient generates chapters through the Anthropic Messages API. It
// satisfies TextGenerator.
type ClaudeClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewClaudeClient(apiKey string) *ClaudeClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &ClaudeClient{
		client:    client,
		model:     anthropic.ModelClaude3_5SonnetLatest,
		maxTokens: 4096,
	}
}

// GenerateStory maps the conversation history onto the Messages API shape:
// the leading system message becomes the system header, later system
// directives ride along as user turns, and consecutive same-role turns are
// merged so the sequence alternates.
func (c *ClaudeClient) GenerateStory(ctx context.Context, history []Message) (string, error) {
	systemPrompt, turns := splitForClaude(history)

	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(t.Content),
			))
		} else {
			params = append(params, anthropic.NewUserMessage(
				anthropic.NewTextBlock(t.Content),
			))
		}
	}
	if len(params) == 0 {
		return "", errors.New("empty history")
	}

	var message *anthropic.Message
	var err error
	for attempt := 0; attempt < claudeMaxRetries; attempt++ {
		message, err = c.client.Messages.New(
			ctx,
			anthropic.MessageNewParams{
				Model:     anthropic.F(c.model),
				MaxTokens: anthropic.F(c.maxTokens),
				System: anthropic.F([]anthropic.TextBlockParam{
					anthropic.NewTextBlock(systemPrompt),
				}),
				Messages: anthropic.F(params),
			},
		)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}
	if len(message.Content) == 0 {
		return "", errors.New("empty response from claude")
	}
	return message.Content[0].Text, nil
}

func splitForClaude(history []Message) (string, []Message) {
	var sys []string
	var turns []Message
	for _, m := range history {
		role := m.Role
		if role == RoleSystem {
			if len(sys) == 0 && len(turns) == 0 {
				sys = append(sys, m.Content)
				continue
			}
			role = RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + m.Content
			continue
		}
		turns = append(turns, Message{Role: role, Content: m.Content})
	}
	return strings.Join(sys, "\n\n"), turns
}
