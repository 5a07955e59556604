package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memvault/internal/index"
)

type stubSearcher struct {
	hits  []index.Hit
	err   error
	calls int
	gotK  int
}

func (s *stubSearcher) Query(_ context.Context, _ string, topK int, threshold *float64) ([]index.Hit, error) {
	s.calls++
	s.gotK = topK
	if s.err != nil {
		return nil, s.err
	}
	var out []index.Hit
	for _, h := range s.hits {
		if threshold == nil || h.Score >= *threshold {
			out = append(out, h)
		}
	}
	return out, nil
}

func hits(contents ...string) []index.Hit {
	out := make([]index.Hit, len(contents))
	for i, c := range contents {
		out[i] = index.Hit{Content: c, Score: 0.9 - float64(i)*0.1, Seq: i}
	}
	return out
}

func TestBuildContext_Template(t *testing.T) {
	p := &Planner{Index: &stubSearcher{hits: hits("apple pie recipe", "apple varieties")}}

	got := p.BuildContext(context.Background(), "tell me about fruit", true, nil)
	want := "The assistant has the following prior context:\n" +
		"- apple pie recipe\n" +
		"- apple varieties\n" +
		"\nNow answer:\n" +
		"tell me about fruit"
	assert.Equal(t, want, got)
}

func TestBuildContext_Passthrough(t *testing.T) {
	tests := []struct {
		name      string
		searcher  *stubSearcher
		useMemory bool
		threshold *float64
	}{
		{"memory off", &stubSearcher{hits: hits("x")}, false, nil},
		{"no results", &stubSearcher{}, true, nil},
		{"above every score", &stubSearcher{hits: hits("apple")}, true, func() *float64 { f := 0.99; return &f }()},
		{"index error", &stubSearcher{err: errors.New("embedder down")}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Planner{Index: tt.searcher}
			got := p.BuildContext(context.Background(), "q?", tt.useMemory, tt.threshold)
			assert.Equal(t, "q?", got)
			if !tt.useMemory {
				assert.Zero(t, tt.searcher.calls)
			}
		})
	}
}

func TestPlan_TopKPassedThrough(t *testing.T) {
	s := &stubSearcher{hits: hits("a")}
	p := &Planner{Index: s, TopK: 3}
	p.Plan(context.Background(), "q", true, nil)
	assert.Equal(t, 3, s.gotK)
}

func TestPlan_Budget(t *testing.T) {
	long := strings.Repeat("x", 300)

	t.Run("fits", func(t *testing.T) {
		p := &Planner{Index: &stubSearcher{hits: hits("aaaa", "bbbb")}, Budget: 8}
		plan := p.Plan(context.Background(), "q", true, nil)
		require.Len(t, plan.Memories, 2)
		assert.False(t, plan.Excerpt)
	})

	t.Run("excerpt when room remains", func(t *testing.T) {
		p := &Planner{Index: &stubSearcher{hits: hits("short", long)}, Budget: 205}
		plan := p.Plan(context.Background(), "q", true, nil)
		require.Len(t, plan.Memories, 2)
		assert.True(t, plan.Excerpt)
		assert.Equal(t, strings.Repeat("x", 200)+"...", plan.Memories[1].Content)
	})

	t.Run("stop when little room remains", func(t *testing.T) {
		p := &Planner{Index: &stubSearcher{hits: hits(strings.Repeat("a", 150), long)}, Budget: 200}
		plan := p.Plan(context.Background(), "q", true, nil)
		require.Len(t, plan.Memories, 1)
		assert.False(t, plan.Excerpt)
	})

	t.Run("top hit always kept", func(t *testing.T) {
		p := &Planner{Index: &stubSearcher{hits: hits(long)}, Budget: 50}
		plan := p.Plan(context.Background(), "q", true, nil)
		require.Len(t, plan.Memories, 1)
		assert.Equal(t, strings.Repeat("x", 50)+"...", plan.Memories[0].Content)
		assert.Contains(t, plan.Prompt, "Now answer:\nq")
	})
}
