package feedback

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memvault/internal/model"
)

func TestFormat(t *testing.T) {
	got := Format(model.FeedbackRecord{
		ID:        "01J0000000000000000000000",
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Model:     "llama3:latest",
		Query:     "what is an apple?",
		Response:  "a fruit",
		Positive:  true,
	})
	want := "[2025-01-02T03:04:05Z] id=01J0000000000000000000000 model=llama3:latest feedback=positive\n" +
		"Query: what is an apple?\n" +
		"Response: a fruit\n\n"
	assert.Equal(t, want, got)
}

func TestRecordAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feedback.log")
	j := NewJournal(path)

	r1, err := j.Record("llama3", "q1", "r1", true)
	require.NoError(t, err)
	r2, err := j.Record("llama3", "q2", "r2", false)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Equal(t, 2, strings.Count(text, "\n\n"))
	assert.Less(t, strings.Index(text, "feedback=positive"), strings.Index(text, "feedback=negative"))
	assert.Contains(t, text, "Query: q2\nResponse: r2\n")
}
