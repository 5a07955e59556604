// Package index keeps an in-memory embedding index over memory entries and
// answers top-k similarity queries. The index is derived from the store and
// never persisted.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/model"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// buildWorkers bounds concurrent embedding calls during Build.
const buildWorkers = 4

// Backends.
const (
	BackendFlat    = "flat"
	BackendChromem = "chromem"
)

// Hit is one ranked memory.
type Hit struct {
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	// Seq is the entry's position in the store; it breaks score ties.
	Seq int `json:"seq"`
}

// Index ranks stored entries against a query.
type Index interface {
	// Build replaces the index with entries. Entries that cannot be embedded
	// are skipped and logged.
	Build(ctx context.Context, entries []model.Entry) error
	// Add indexes one more entry, as if Build had been called with it appended.
	Add(ctx context.Context, entry model.Entry) error
	// Query returns at most topK hits ordered by descending score. A nil
	// threshold keeps every hit; otherwise hits scoring below it are dropped.
	Query(ctx context.Context, text string, topK int, threshold *float64) ([]Hit, error)
	// Len is the number of indexed vectors.
	Len() int
	// Seen is the number of entries passed to Build and Add, indexed or not.
	Seen() int
}

// New creates an index for backend.
func New(backend string, e embedding.Embedder, logger *slog.Logger) (Index, error) {
	switch backend {
	case "", BackendFlat:
		return NewFlatIndex(e, logger), nil
	case BackendChromem:
		return NewChromemIndex(e, logger), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q (use flat or chromem)", backend)
	}
}

// rank orders hits by score (ties keep store order), applies the threshold
// and truncates to topK.
func rank(hits []Hit, topK int, threshold *float64) []Hit {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Seq < hits[j].Seq
	})
	if threshold != nil {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= *threshold {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	if len(hits) == 0 {
		return nil
	}
	return hits
}

func isZero(v embedding.Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// embedEntry returns the vector for e, or false when e has no content, the
// embedder failed or the vector is all zeros.
func embedEntry(ctx context.Context, emb embedding.Embedder, seq int, e model.Entry, logger *slog.Logger) (embedding.Vector, bool) {
	if !e.HasContent() {
		return nil, false
	}
	vec, err := emb.Embed(ctx, e.Content)
	if err != nil {
		logger.Warn("skipping entry that could not be embedded", "seq", seq, "source", e.Source, "error", err)
		return nil, false
	}
	if isZero(vec) {
		logger.Debug("skipping entry with empty embedding", "seq", seq)
		return nil, false
	}
	return vec, true
}

// embedAll embeds entries concurrently. The result is indexed like entries;
// a nil vector marks a skipped entry.
func embedAll(ctx context.Context, emb embedding.Embedder, entries []model.Entry, logger *slog.Logger) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(buildWorkers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if vec, ok := embedEntry(gctx, emb, i, e, logger); ok {
				out[i] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
