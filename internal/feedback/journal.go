// Package feedback appends user ratings of assistant answers to a plain-text
// journal. The journal is write-only; nothing in memvault reads it back.
package feedback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/memvault/internal/model"
)

// Journal is an append-only feedback log file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal returns a journal writing to path. The file is created on the
// first Record.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string { return j.path }

// Record appends one block and returns the stored record with its ID and
// timestamp filled in.
func (j *Journal) Record(modelName, query, response string, positive bool) (model.FeedbackRecord, error) {
	now := time.Now().UTC()
	rec := model.FeedbackRecord{
		ID:        ulid.Make().String(),
		Timestamp: now,
		Model:     modelName,
		Query:     query,
		Response:  response,
		Positive:  positive,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return rec, fmt.Errorf("create feedback dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return rec, fmt.Errorf("open feedback log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(Format(rec)); err != nil {
		return rec, fmt.Errorf("write feedback: %w", err)
	}
	return rec, f.Sync()
}

// Format renders one journal block.
func Format(r model.FeedbackRecord) string {
	verdict := "negative"
	if r.Positive {
		verdict = "positive"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] id=%s model=%s feedback=%s\n", r.Timestamp.UTC().Format(time.RFC3339), r.ID, r.Model, verdict)
	fmt.Fprintf(&b, "Query: %s\n", r.Query)
	fmt.Fprintf(&b, "Response: %s\n\n", r.Response)
	return b.String()
}
