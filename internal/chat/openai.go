package chat

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter uses any OpenAI-compatible chat completion API.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
	source    string
}

// NewOpenAICompleter creates a completer. An empty baseURL targets OpenAI.
func NewOpenAICompleter(baseURL, apiKey, model string, maxTokens int) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model, maxTokens: maxTokens, source: ProviderOpenAI}
}

// newGroqCompleter targets Groq's OpenAI-compatible endpoint.
func newGroqCompleter(cfg Config) *OpenAICompleter {
	url, model := cfg.URL, cfg.Model
	if url == "" {
		url = groqBaseURL
	}
	if model == "" {
		model = defaultGroqModel
	}
	c := NewOpenAICompleter(url, cfg.APIKey, model, cfg.MaxTokens)
	c.source = ProviderGroq
	return c
}

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", o.source, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty response", o.source)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAICompleter) Source() string { return o.source }
