// Package chat adapts chat-completion providers to a single Completer
// interface.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
)

// Completer turns a prompt into a response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Source is the provider tag stored with remembered exchanges.
	Source() string
}

// Providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "llama-3.1-8b-instant"
)

// Config selects and configures a completer.
type Config struct {
	Provider  string
	Model     string
	URL       string
	APIKey    string
	MaxTokens int
}

// New creates a completer. For Ollama the model is read through active on
// every call so switching models takes effect immediately; active may be nil
// to pin cfg.Model.
func New(cfg Config, active func() string) (Completer, error) {
	switch cfg.Provider {
	case "", ProviderOllama:
		if active == nil {
			m := cfg.Model
			active = func() string { return m }
		}
		return NewOllamaCompleter(cfg.URL, active)
	case ProviderOpenAI:
		return NewOpenAICompleter(cfg.URL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case ProviderGroq:
		return newGroqCompleter(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicCompleter(cfg.URL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case ProviderGemini:
		return NewGeminiCompleter(context.Background(), cfg.URL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown chat provider %q (use ollama, openai, groq, anthropic or gemini)", cfg.Provider)
	}
}

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout bounds every call to c. A call that runs past d fails with an
// apperr.KindTimeout error. d <= 0 returns c unchanged.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return &timeoutCompleter{inner: c, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.inner.Complete(ctx, prompt)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.E(apperr.KindTimeout, "chat.Complete", fmt.Sprintf("no response within %s", t.timeout), r.err)
		}
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.E(apperr.KindTimeout, "chat.Complete", fmt.Sprintf("no response within %s", t.timeout), ctx.Err())
		}
		return "", ctx.Err()
	}
}

func (t *timeoutCompleter) Source() string { return t.inner.Source() }

// Func adapts a function to Completer.
type Func struct {
	Name string
	Fn   func(ctx context.Context, prompt string) (string, error)
}

func (f Func) Complete(ctx context.Context, prompt string) (string, error) { return f.Fn(ctx, prompt) }

func (f Func) Source() string { return f.Name }
