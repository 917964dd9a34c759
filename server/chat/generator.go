package chat

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	enginerrors "github.com/convoflow/convoflow/internal/errors"
	"github.com/convoflow/convoflow/store"
)

// HistoryMessage is one entry of the ordered chat history handed to the
// answer generator.
type HistoryMessage struct {
	Role store.Role
	Text string
}

// Generator produces a finished answer for an ordered chat history. It may
// suspend until ctx is done and may fail; no token-level streaming is required
// of it. Implementations map roles to their own vocabulary.
type Generator interface {
	Generate(ctx context.Context, history []HistoryMessage) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, history []HistoryMessage) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, history []HistoryMessage) (string, error) {
	return f(ctx, history)
}

// OpenAIGenerator produces answers through an OpenAI-compatible chat
// completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator against the given endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, history []HistoryMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    mapRole(m.Role),
			Content: m.Text,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return "", enginerrors.GeneratorFailed("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", enginerrors.GeneratorFailed("chat completion returned no choices", nil)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// mapRole translates store roles into the OpenAI chat vocabulary.
func mapRole(role store.Role) string {
	switch role {
	case store.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case store.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
