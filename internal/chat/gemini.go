package chat

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/rcliao/memvault/internal/apperr"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiCompleter uses the Google Gemini API.
type GeminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiCompleter creates a completer. An empty apiKey falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiCompleter(ctx context.Context, baseURL, apiKey, model string, maxTokens int) (*GeminiCompleter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, apperr.E(apperr.KindAuthentication, "chat.Gemini", "missing GEMINI_API_KEY or GOOGLE_API_KEY", nil)
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiCompleter{client: client, model: model, maxTokens: maxTokens}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if g.maxTokens > 0 {
		m.SetMaxOutputTokens(int32(g.maxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (g *GeminiCompleter) Source() string { return ProviderGemini }

// Close releases the client connection.
func (g *GeminiCompleter) Close() error { return g.client.Close() }
