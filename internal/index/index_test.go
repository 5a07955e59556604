package index

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/model"
)

// keywordEmbedder maps words onto three concepts: fruit, vehicle, other.
type keywordEmbedder struct {
	calls atomic.Int32
	fail  map[string]bool
}

var concepts = map[string]int{
	"apple": 0, "fruit": 0, "pie": 0, "banana": 0,
	"car": 1, "engine": 1, "repair": 1,
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	k.calls.Add(1)
	if k.fail[text] {
		return nil, errors.New("embedder offline")
	}
	v := make(embedding.Vector, 3)
	for _, tok := range embedding.Tokenize(text) {
		if c, ok := concepts[tok]; ok {
			v[c]++
		} else {
			v[2]++
		}
	}
	return v, nil
}

func (k *keywordEmbedder) Dims() int { return 3 }

func entries(contents ...string) []model.Entry {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Entry, len(contents))
	for i, c := range contents {
		out[i] = model.Entry{Timestamp: base.Add(time.Duration(i) * time.Minute), Source: "test", Content: c}
	}
	return out
}

func ptr(f float64) *float64 { return &f }

type backend struct {
	name string
	new  func(embedding.Embedder) Index
}

var backends = []backend{
	{"flat", func(e embedding.Embedder) Index { return NewFlatIndex(e, nil) }},
	{"chromem", func(e embedding.Embedder) Index { return NewChromemIndex(e, nil) }},
}

func TestQuery_RanksRelevantEntries(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			x := b.new(&keywordEmbedder{})
			require.NoError(t, x.Build(ctx, entries("apple pie recipe", "car engine repair", "apple varieties")))

			hits, err := x.Query(ctx, "fruit", 2, nil)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "apple pie recipe", hits[0].Content)
			assert.Equal(t, "apple varieties", hits[1].Content)
			assert.Greater(t, hits[0].Score, hits[1].Score)
		})
	}
}

func TestQuery_Threshold(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			x := b.new(&keywordEmbedder{})
			require.NoError(t, x.Build(ctx, entries("apple pie recipe", "car engine repair", "apple varieties")))

			hits, err := x.Query(ctx, "fruit", 5, ptr(1.01))
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = x.Query(ctx, "fruit", 5, ptr(0.8))
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "apple pie recipe", hits[0].Content)

			// Without a threshold zero scores are still returned.
			hits, err = x.Query(ctx, "fruit", 5, nil)
			require.NoError(t, err)
			assert.Len(t, hits, 3)
		})
	}
}

func TestQuery_EmptyIndexSkipsEmbedder(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			emb := &keywordEmbedder{}
			x := b.new(emb)
			require.NoError(t, x.Build(context.Background(), nil))

			hits, err := x.Query(context.Background(), "anything", 5, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)
			assert.Zero(t, emb.calls.Load())
		})
	}
}

func TestQuery_TiesKeepStoreOrder(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			x := b.new(&keywordEmbedder{})
			require.NoError(t, x.Build(ctx, entries("banana", "car", "apple", "fruit")))

			for i := 0; i < 3; i++ {
				hits, err := x.Query(ctx, "apple", 3, nil)
				require.NoError(t, err)
				require.Len(t, hits, 3)
				assert.Equal(t, []int{0, 2, 3}, []int{hits[0].Seq, hits[1].Seq, hits[2].Seq})
			}
		})
	}
}

func TestQuery_DefaultTopK(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			x := b.new(&keywordEmbedder{})
			require.NoError(t, x.Build(ctx, entries("apple 1", "apple 2", "apple 3", "apple 4", "apple 5", "apple 6", "apple 7")))

			hits, err := x.Query(ctx, "apple", 0, nil)
			require.NoError(t, err)
			assert.Len(t, hits, DefaultTopK)
		})
	}
}

func TestBuild_SkipsFailedAndBlankEntries(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			emb := &keywordEmbedder{fail: map[string]bool{"apple broken": true}}
			x := b.new(emb)
			require.NoError(t, x.Build(ctx, entries("apple pie", "apple broken", "   ", "apple varieties")))

			assert.Equal(t, 2, x.Len())
			assert.Equal(t, 4, x.Seen())

			hits, err := x.Query(ctx, "apple", 5, nil)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, 3, hits[1].Seq)
		})
	}
}

func TestAdd_MatchesBuild(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			all := entries("apple pie recipe", "car engine repair", "apple varieties")

			built := b.new(&keywordEmbedder{})
			require.NoError(t, built.Build(ctx, all))

			incr := b.new(&keywordEmbedder{})
			require.NoError(t, incr.Build(ctx, all[:1]))
			for _, e := range all[1:] {
				require.NoError(t, incr.Add(ctx, e))
			}

			want, _ := built.Query(ctx, "fruit", 3, nil)
			got, _ := incr.Query(ctx, "fruit", 3, nil)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Seq, got[i].Seq)
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
			}
		})
	}
}

func TestQuery_EmbedFailureIsRuntimeUnavailable(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			x := b.new(&keywordEmbedder{fail: map[string]bool{"query": true}})
			require.NoError(t, x.Build(ctx, entries("apple")))

			_, err := x.Query(ctx, "query", 5, nil)
			assert.True(t, errors.Is(err, apperr.ErrRuntimeUnavailable))
		})
	}
}

func TestNew(t *testing.T) {
	x, err := New("", &keywordEmbedder{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FlatIndex{}, x)

	x, err = New(BackendChromem, &keywordEmbedder{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromemIndex{}, x)

	_, err = New("faiss", &keywordEmbedder{}, nil)
	assert.Error(t, err)
}

func TestQuery_BackendsAgreeOnScores(t *testing.T) {
	ctx := context.Background()
	docs := entries("apple pie recipe", "car engine repair", "apple varieties", "banana bread with fruit", "weekend plans")

	flat := NewFlatIndex(&keywordEmbedder{}, nil)
	require.NoError(t, flat.Build(ctx, docs))
	want, err := flat.Query(ctx, "fruit salad", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	chr := NewChromemIndex(&keywordEmbedder{}, nil)
	require.NoError(t, chr.Build(ctx, docs))
	got, err := chr.Query(ctx, "fruit salad", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A threshold equal to a flat score keeps that hit in both backends.
	cut := want[1].Score
	wantCut, err := flat.Query(ctx, "fruit salad", 5, &cut)
	require.NoError(t, err)
	gotCut, err := chr.Query(ctx, "fruit salad", 5, &cut)
	require.NoError(t, err)
	assert.Equal(t, wantCut, gotCut)
	assert.Contains(t, gotCut, want[1])
}
