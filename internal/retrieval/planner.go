// Package retrieval turns a user query into a model prompt augmented with
// relevant memories.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/memvault/internal/index"
)

const (
	contextHeader = "The assistant has the following prior context:\n"
	answerHeader  = "\nNow answer:\n"

	// minExcerpt is the smallest remaining budget worth excerpting into.
	minExcerpt = 100
)

// Searcher is the part of index.Index the planner needs.
type Searcher interface {
	Query(ctx context.Context, text string, topK int, threshold *float64) ([]index.Hit, error)
}

// Planner builds augmented prompts.
type Planner struct {
	Index Searcher
	// TopK is the number of memories requested; <= 0 uses index.DefaultTopK.
	TopK int
	// Budget caps the characters of memory text; <= 0 is unlimited.
	Budget int
	Logger *slog.Logger
}

// Plan is the outcome of retrieval for one query.
type Plan struct {
	Query    string      `json:"query"`
	Prompt   string      `json:"prompt"`
	Memories []index.Hit `json:"memories"`
	Excerpt  bool        `json:"excerpt,omitempty"`
}

// BuildContext returns the prompt to send for query. Without memory, or when
// nothing relevant is found, the query is returned unchanged.
func (p *Planner) BuildContext(ctx context.Context, query string, useMemory bool, threshold *float64) string {
	return p.Plan(ctx, query, useMemory, threshold).Prompt
}

// Plan is BuildContext with the selected memories attached. Retrieval errors
// are logged and treated as no results.
func (p *Planner) Plan(ctx context.Context, query string, useMemory bool, threshold *float64) *Plan {
	plan := &Plan{Query: query, Prompt: query}
	if !useMemory || p.Index == nil {
		return plan
	}

	hits, err := p.Index.Query(ctx, query, p.TopK, threshold)
	if err != nil {
		p.logger().Warn("memory retrieval failed, answering without context", "error", err)
		return plan
	}
	if len(hits) == 0 {
		return plan
	}

	plan.Memories, plan.Excerpt = pack(hits, p.Budget)
	plan.Prompt = render(plan.Memories, query)
	return plan
}

// pack keeps hits in rank order while they fit in budget. The first hit that
// does not fit is excerpted if at least minExcerpt characters remain. The top
// hit is always kept.
func pack(hits []index.Hit, budget int) ([]index.Hit, bool) {
	if budget <= 0 {
		return hits, false
	}

	var out []index.Hit
	used := 0
	for i, h := range hits {
		n := utf8.RuneCountInString(h.Content)
		if used+n <= budget {
			out = append(out, h)
			used += n
			continue
		}
		remaining := budget - used
		if remaining >= minExcerpt || i == 0 {
			h.Content = excerpt(h.Content, remaining)
			out = append(out, h)
			return out, true
		}
		break
	}
	return out, false
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func render(hits []index.Hit, query string) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	for _, h := range hits {
		b.WriteString("- ")
		b.WriteString(h.Content)
		b.WriteByte('\n')
	}
	b.WriteString(answerHeader)
	b.WriteString(query)
	return b.String()
}

func (p *Planner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
