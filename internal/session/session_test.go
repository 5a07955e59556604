package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/chat"
	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/feedback"
	"github.com/rcliao/memvault/internal/index"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/store"
)

type recorder struct {
	prompts []string
	reply   string
	err     error
}

func (r *recorder) completer() chat.Completer {
	return chat.Func{Name: "local_llm:tinyllama", Fn: func(ctx context.Context, prompt string) (string, error) {
		r.prompts = append(r.prompts, prompt)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return r.reply, r.err
	}}
}

func newTestSession(t *testing.T, c chat.Completer) (*Session, store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(dir, "memory.json"), nil, nil)
	require.NoError(t, err)
	journal := filepath.Join(dir, "feedback.log")
	s := New(Deps{
		Store:     st,
		Index:     index.NewFlatIndex(embedding.NewHashEmbedder(0), nil),
		Completer: c,
		Journal:   feedback.NewJournal(journal),
		Timeout:   time.Second,
	})
	require.NoError(t, s.Open(context.Background()))
	return s, st, journal
}

func TestAskStoresExchange(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{reply: "Apples are a fruit."}
	s, st, _ := newTestSession(t, rec.completer())

	turn, err := s.Ask(ctx, "what is an apple?", AskOptions{UseMemory: true})
	require.NoError(t, err)
	assert.Equal(t, "Apples are a fruit.", turn.Response)
	assert.Equal(t, "what is an apple?", rec.prompts[0], "empty memory must not change the prompt")

	entries, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "what is an apple?\nApples are a fruit.", entries[0].Content)
	assert.Equal(t, "local_llm:tinyllama", entries[0].Source)

	// The next turn sees the first one as context.
	_, err = s.Ask(ctx, "tell me about apple varieties", AskOptions{UseMemory: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.prompts[1], "The assistant has the following prior context:\n- what is an apple?"))
	assert.True(t, strings.HasSuffix(rec.prompts[1], "Now answer:\ntell me about apple varieties"))

	// Memory off leaves the prompt alone.
	_, err = s.Ask(ctx, "apple?", AskOptions{UseMemory: false})
	require.NoError(t, err)
	assert.Equal(t, "apple?", rec.prompts[2])
}

func TestAskFailureStoresNothing(t *testing.T) {
	rec := &recorder{err: errors.New("model crashed")}
	s, st, _ := newTestSession(t, rec.completer())

	_, err := s.Ask(context.Background(), "hello", AskOptions{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.err = nil
	_, err = s.Ask(ctx, "hello", AskOptions{})
	require.Error(t, err)

	entries, _ := st.LoadAll(context.Background())
	assert.Empty(t, entries)
}

func TestAskTimeoutStoresNothing(t *testing.T) {
	slow := chat.Func{Name: "slow", Fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s, st, _ := newTestSession(t, slow)
	s.deps.Timeout = 20 * time.Millisecond

	_, err := s.Ask(context.Background(), "hello", AskOptions{})
	assert.True(t, errors.Is(err, apperr.ErrTimeout))
	entries, _ := st.LoadAll(context.Background())
	assert.Empty(t, entries)
}

func TestRememberAndSearch(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, nil)

	require.NoError(t, s.Remember(ctx, "", "apple pie recipe"))
	require.NoError(t, s.Remember(ctx, "", "car engine repair"))
	assert.Error(t, s.Remember(ctx, "", "   "))

	hits, err := s.Search(ctx, "apple", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "apple pie recipe", hits[0].Content)
	assert.Equal(t, model.SourceManual, hits[0].Source)

	plan := s.Plan(ctx, "apple", AskOptions{UseMemory: true, Threshold: func() *float64 { f := 0.1; return &f }()})
	require.Len(t, plan.Memories, 1)
}

func TestRefreshRebuildsAfterExternalAppend(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSession(t, nil)
	require.NoError(t, s.Remember(ctx, "", "first memory"))

	// Another process appends to the same file.
	other, err := store.NewFileStore(st.Path(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, other.Append(ctx, model.NewEntry("other", "second memory"), model.NewEntry("other", "third memory")))

	require.NoError(t, s.Remember(ctx, "", "fourth memory"))
	assert.Equal(t, 4, s.deps.Index.Len())
	assert.Equal(t, 4, s.deps.Index.Seen())
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSession(t, nil)

	n, err := s.Ingest(ctx, []model.Entry{model.NewEntry("file:a.txt", "alpha text"), model.NewEntry("file:a.txt", "beta text")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	entries, _ := st.LoadAll(ctx)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, s.deps.Index.Len())
}

func TestRecordFeedback(t *testing.T) {
	rec := &recorder{reply: "Paris"}
	s, _, journal := newTestSession(t, rec.completer())

	turn, err := s.Ask(context.Background(), "capital of France?", AskOptions{})
	require.NoError(t, err)
	require.NoError(t, s.RecordFeedback(turn, true))

	b, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Contains(t, string(b), "model=tinyllama feedback=positive\nQuery: capital of France?\nResponse: Paris\n")
	assert.NotEmpty(t, s.ID())
}

type closingCompleter struct {
	chat.Func
	closed int
}

func (c *closingCompleter) Close() error {
	c.closed++
	return nil
}

func TestCloseReleasesCompleter(t *testing.T) {
	rec := &recorder{reply: "ok"}
	c := &closingCompleter{Func: rec.completer().(chat.Func)}
	s, _, _ := newTestSession(t, c)

	_, err := s.Ask(context.Background(), "hello", AskOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, c.closed)

	// Sessions without a closable completer close cleanly.
	plain, _, _ := newTestSession(t, rec.completer())
	assert.NoError(t, plain.Close())
	readOnly, _, _ := newTestSession(t, nil)
	assert.NoError(t, readOnly.Close())
}
