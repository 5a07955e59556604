// Package session wires the store, index, planner and chat completer for
// one run of memvault. A turn is retrieve, complete, persist, refresh.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/memvault/internal/chat"
	"github.com/rcliao/memvault/internal/feedback"
	"github.com/rcliao/memvault/internal/index"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/retrieval"
	"github.com/rcliao/memvault/internal/store"
)

// Deps are the collaborators of a session. Completer and Journal may be nil
// for sessions that only read or ingest.
type Deps struct {
	Store     store.Store
	Index     index.Index
	Completer chat.Completer
	Journal   *feedback.Journal
	TopK      int
	Budget    int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// AskOptions control retrieval for one turn.
type AskOptions struct {
	UseMemory bool
	Threshold *float64
}

// Turn is one completed exchange.
type Turn struct {
	ID       string      `json:"id"`
	Query    string      `json:"query"`
	Prompt   string      `json:"prompt"`
	Response string      `json:"response"`
	Source   string      `json:"source"`
	Memories []index.Hit `json:"memories,omitempty"`
	At       time.Time   `json:"at"`
}

// Session serialises turns against one store.
type Session struct {
	id      string
	deps    Deps
	planner *retrieval.Planner
	logger  *slog.Logger

	mu sync.Mutex
}

// New creates a session. Call Open before the first turn.
func New(d Deps) *Session {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session", id)
	return &Session{
		id:      id,
		deps:    d,
		planner: &retrieval.Planner{Index: d.Index, TopK: d.TopK, Budget: d.Budget, Logger: logger},
		logger:  logger,
	}
}

// ID is the random identifier of this run.
func (s *Session) ID() string { return s.id }

// Store returns the underlying store.
func (s *Session) Store() store.Store { return s.deps.Store }

// Close releases the completer when it holds a connection. The store is
// owned by the caller.
func (s *Session) Close() error {
	if c, ok := s.deps.Completer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open loads the store and builds the index.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.deps.Store.LoadAll(ctx)
	if err != nil {
		return err
	}
	if err := s.deps.Index.Build(ctx, entries); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	s.logger.Debug("memory loaded", "entries", len(entries), "indexed", s.deps.Index.Len())
	return nil
}

// Plan returns the augmented prompt for query without calling a model.
func (s *Session) Plan(ctx context.Context, query string, opts AskOptions) *retrieval.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planner.Plan(ctx, query, opts.UseMemory, opts.Threshold)
}

// Search queries the index directly.
func (s *Session) Search(ctx context.Context, query string, topK int, threshold *float64) ([]index.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Index.Query(ctx, query, topK, threshold)
}

// Ask runs one turn. The exchange is stored only once a complete response
// has been received; a failed or cancelled completion stores nothing.
func (s *Session) Ask(ctx context.Context, query string, opts AskOptions) (*Turn, error) {
	if s.deps.Completer == nil {
		return nil, fmt.Errorf("no chat provider configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	plan := s.planner.Plan(ctx, query, opts.UseMemory, opts.Threshold)

	completer := chat.WithTimeout(s.deps.Completer, s.deps.Timeout)
	source := completer.Source()
	response, err := completer.Complete(ctx, plan.Prompt)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		ID:       uuid.NewString(),
		Query:    query,
		Prompt:   plan.Prompt,
		Response: response,
		Source:   source,
		Memories: plan.Memories,
		At:       time.Now().UTC(),
	}
	entry := model.Entry{Timestamp: turn.At, Source: source, Content: query + "\n" + response}
	if err := s.appendAndRefresh(ctx, entry); err != nil {
		return turn, fmt.Errorf("save exchange: %w", err)
	}
	return turn, nil
}

// Remember stores text as a manual memory.
func (s *Session) Remember(ctx context.Context, source, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to remember")
	}
	if source == "" {
		source = model.SourceManual
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAndRefresh(ctx, model.NewEntry(source, text))
}

// Ingest stores entries in one atomic append.
func (s *Session) Ingest(ctx context.Context, entries []model.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendAndRefresh(ctx, entries...); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// RecordFeedback writes a rating of turn to the journal.
func (s *Session) RecordFeedback(turn *Turn, positive bool) error {
	if s.deps.Journal == nil {
		return nil
	}
	name := strings.TrimPrefix(turn.Source, model.SourceLocalLLMPrefix)
	rec, err := s.deps.Journal.Record(name, turn.Query, turn.Response, positive)
	if err != nil {
		return err
	}
	s.logger.Info("feedback recorded", "id", rec.ID, "positive", positive)
	return nil
}

// appendAndRefresh persists entries, then brings the index up to date with
// what is on disk. Callers hold s.mu.
func (s *Session) appendAndRefresh(ctx context.Context, entries ...model.Entry) error {
	if err := s.deps.Store.Append(ctx, entries...); err != nil {
		return err
	}
	return s.refresh(ctx)
}

// refresh reloads the store. Exactly one new entry is added incrementally;
// anything else (another process appended too) triggers a full rebuild.
func (s *Session) refresh(ctx context.Context) error {
	all, err := s.deps.Store.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(all) == s.deps.Index.Seen()+1 {
		return s.deps.Index.Add(ctx, all[len(all)-1])
	}
	return s.deps.Index.Build(ctx, all)
}
