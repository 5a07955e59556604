package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/model"
)

const collectionName = "memories"

// ChromemIndex keeps vectors in an in-memory chromem-go collection. The
// collection selects candidates; scores are recomputed from the stored
// vectors so they match FlatIndex exactly.
type ChromemIndex struct {
	embedder embedding.Embedder
	logger   *slog.Logger

	mu   sync.RWMutex
	col  *chromem.Collection
	meta map[string]chromemItem
	seen int
}

type chromemItem struct {
	hit Hit
	vec embedding.Vector
}

// NewChromemIndex creates an empty chromem-backed index.
func NewChromemIndex(e embedding.Embedder, logger *slog.Logger) *ChromemIndex {
	return &ChromemIndex{embedder: e, logger: loggerOr(logger), meta: map[string]chromemItem{}}
}

func newCollection() (*chromem.Collection, error) {
	// Embeddings are always supplied, so no embedding func is needed.
	col, err := chromem.NewDB().CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return col, nil
}

func (x *ChromemIndex) Build(ctx context.Context, entries []model.Entry) error {
	col, err := newCollection()
	if err != nil {
		return err
	}
	vecs, err := embedAll(ctx, x.embedder, entries, x.logger)
	if err != nil {
		return err
	}
	meta := make(map[string]chromemItem, len(entries))
	for i, e := range entries {
		if vecs[i] == nil {
			continue
		}
		if err := insert(ctx, col, meta, i, e, vecs[i]); err != nil {
			return err
		}
	}

	x.mu.Lock()
	x.col = col
	x.meta = meta
	x.seen = len(entries)
	x.mu.Unlock()
	return nil
}

func (x *ChromemIndex) Add(ctx context.Context, e model.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.col == nil {
		col, err := newCollection()
		if err != nil {
			return err
		}
		x.col = col
	}
	seq := x.seen
	x.seen++
	vec, ok := embedEntry(ctx, x.embedder, seq, e, x.logger)
	if !ok {
		return nil
	}
	return insert(ctx, x.col, x.meta, seq, e, vec)
}

func insert(ctx context.Context, col *chromem.Collection, meta map[string]chromemItem, seq int, e model.Entry, vec embedding.Vector) error {
	id := strconv.Itoa(seq)
	// chromem normalizes embeddings in place.
	kept := append(embedding.Vector(nil), vec...)
	doc := chromem.Document{
		ID:        id,
		Content:   e.Content,
		Embedding: vec,
		Metadata:  map[string]string{"source": e.Source},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	meta[id] = chromemItem{
		hit: Hit{Content: e.Content, Source: e.Source, Timestamp: e.Timestamp, Seq: seq},
		vec: kept,
	}
	return nil
}

func (x *ChromemIndex) Query(ctx context.Context, text string, topK int, threshold *float64) ([]Hit, error) {
	x.mu.RLock()
	col := x.col
	x.mu.RUnlock()
	if col == nil || col.Count() == 0 {
		return nil, nil
	}

	q, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperr.E(apperr.KindRuntimeUnavailable, "index.Query", "embed query", err)
	}
	if isZero(q) {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size. Every document is
	// fetched so ties are broken by store order rather than chromem's order.
	results, err := col.QueryEmbedding(ctx, q, col.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	x.mu.RLock()
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		it, ok := x.meta[r.ID]
		if !ok {
			continue
		}
		h := it.hit
		h.Score = embedding.CosineSimilarity(q, it.vec)
		hits = append(hits, h)
	}
	x.mu.RUnlock()
	return rank(hits, topK, threshold), nil
}

func (x *ChromemIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.col == nil {
		return 0
	}
	return x.col.Count()
}

func (x *ChromemIndex) Seen() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.seen
}
