// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Providers.
const (
	ProviderAuto   = "auto"
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// autoCheckTimeout bounds the test embedding made by the auto provider.
const autoCheckTimeout = 3 * time.Second

// Config selects and configures an embedder.
type Config struct {
	Provider string
	Model    string
	URL      string // base URL override
	APIKey   string
	Dims     int
	// CacheSize is the number of vectors kept in memory; 0 disables the cache.
	CacheSize int64
}

// New creates an embedder from cfg. An empty provider means the offline
// hashing embedder, which only matches entries that share words with the
// query. The auto provider uses Ollama when a test embedding succeeds and
// falls back to hashing otherwise.
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "", ProviderHash:
		e = NewHashEmbedder(cfg.Dims)
	case ProviderAuto:
		e = autoEmbedder(cfg)
	case ProviderOllama:
		e, err = NewOllamaEmbedder(cfg.URL, cfg.Model)
	case ProviderOpenAI:
		e = NewOpenAIEmbedder(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (use auto, hash, ollama or openai)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}

func autoEmbedder(cfg Config) Embedder {
	o, err := NewOllamaEmbedder(cfg.URL, cfg.Model)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), autoCheckTimeout)
		defer cancel()
		var v Vector
		if v, err = o.Embed(ctx, "ping"); err == nil {
			o.dims = len(v)
			return o
		}
	}
	slog.Warn("ollama embeddings unavailable, using keyword hashing; retrieval matches shared words only", "error", err)
	return NewHashEmbedder(cfg.Dims)
}
