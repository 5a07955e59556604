package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/model"
)

// OllamaCompleter generates with the currently active local model.
type OllamaCompleter struct {
	client *ollama.Client
	model  func() string
}

// NewOllamaCompleter creates a completer for the Ollama server at host. An
// empty host falls back to OLLAMA_HOST, then localhost.
func NewOllamaCompleter(host string, active func() string) (*OllamaCompleter, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	// No client timeout: deadlines come from the caller's context.
	return &OllamaCompleter{client: ollama.NewClient(u, &http.Client{}), model: active}, nil
}

func (o *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	name := o.model()
	if name == "" {
		return "", apperr.E(apperr.KindNotFound, "chat.Complete", "no local model selected", nil)
	}

	var text strings.Builder
	req := &ollama.GenerateRequest{Model: name, Prompt: prompt}
	err := o.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(text.String()), nil
}

func (o *OllamaCompleter) Source() string { return model.LocalLLMSource(o.model()) }
