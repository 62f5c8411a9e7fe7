// Package answer turns retrieved context into a generated answer with a
// chat model.
package answer

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// DefaultSystemPrompt keeps the model inside the retrieved context.
const DefaultSystemPrompt = `You are an expert on the documentation provided in context and are helping the user understand it.
Respond clearly and concisely, using only the information provided in context.
If you don't know something, say you're not sure.`

// NoContextAnswer is returned without calling the model when retrieval
// found nothing.
const NoContextAnswer = "No relevant information found."

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// Generator produces a completion for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// OpenAIConfig configures the OpenAI chat generator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty uses api.openai.com
	Model       string
	Temperature float32
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	temp   float32
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a chat generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, derrors.New(derrors.ErrCodeConfigInvalid, "OPENAI_API_KEY is not set", nil).
			WithSuggestion("Export OPENAI_API_KEY or add it to .env")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		temp:   cfg.Temperature,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temp,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", derrors.NetworkError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", derrors.New(derrors.ErrCodeInternal, "chat completion returned no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Prompt builds the messages for a question over rendered context.
func Prompt(systemPrompt, question, contextText string) []Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
	}
}

// Ask answers question from contextText. Empty context short-circuits to
// NoContextAnswer.
func Ask(ctx context.Context, g Generator, systemPrompt, question, contextText string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return NoContextAnswer, nil
	}
	return g.Generate(ctx, Prompt(systemPrompt, question, contextText))
}
