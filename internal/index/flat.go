package index

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/model"
)

type flatItem struct {
	hit Hit
	vec embedding.Vector
}

// FlatIndex scores every vector on each query.
type FlatIndex struct {
	embedder embedding.Embedder
	logger   *slog.Logger

	mu    sync.RWMutex
	items []flatItem
	seen  int
}

// NewFlatIndex creates an empty brute-force index.
func NewFlatIndex(e embedding.Embedder, logger *slog.Logger) *FlatIndex {
	return &FlatIndex{embedder: e, logger: loggerOr(logger)}
}

func (x *FlatIndex) Build(ctx context.Context, entries []model.Entry) error {
	vecs, err := embedAll(ctx, x.embedder, entries, x.logger)
	if err != nil {
		return err
	}
	items := make([]flatItem, 0, len(entries))
	for i, e := range entries {
		if vecs[i] != nil {
			items = append(items, newFlatItem(i, e, vecs[i]))
		}
	}

	x.mu.Lock()
	x.items = items
	x.seen = len(entries)
	x.mu.Unlock()
	return nil
}

func (x *FlatIndex) Add(ctx context.Context, e model.Entry) error {
	x.mu.Lock()
	seq := x.seen
	x.seen++
	x.mu.Unlock()

	vec, ok := embedEntry(ctx, x.embedder, seq, e, x.logger)
	if !ok {
		return nil
	}
	x.mu.Lock()
	x.items = append(x.items, newFlatItem(seq, e, vec))
	x.mu.Unlock()
	return nil
}

func newFlatItem(seq int, e model.Entry, vec embedding.Vector) flatItem {
	return flatItem{
		hit: Hit{Content: e.Content, Source: e.Source, Timestamp: e.Timestamp, Seq: seq},
		vec: vec,
	}
}

func (x *FlatIndex) Query(ctx context.Context, text string, topK int, threshold *float64) ([]Hit, error) {
	x.mu.RLock()
	items := x.items
	x.mu.RUnlock()
	if len(items) == 0 {
		return nil, nil
	}

	q, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperr.E(apperr.KindRuntimeUnavailable, "index.Query", "embed query", err)
	}
	if isZero(q) {
		return nil, nil
	}

	hits := make([]Hit, len(items))
	for i, it := range items {
		h := it.hit
		h.Score = embedding.CosineSimilarity(q, it.vec)
		hits[i] = h
	}
	return rank(hits, topK, threshold), nil
}

func (x *FlatIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

func (x *FlatIndex) Seen() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.seen
}
