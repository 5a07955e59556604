package store

import (
	"context"
	"testing"

	"github.com/rcliao/memvault/internal/model"
)

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t, nil)
	es := entriesN(3)
	es[2].Source = model.SourceManual
	s.Append(ctx, es...)

	st, err := GetStats(ctx, s, false)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", st.Entries)
	}
	if len(st.Sources) != 2 || st.Sources[0].Source != "ollama" || st.Sources[0].Count != 2 {
		t.Errorf("unexpected sources %+v", st.Sources)
	}
	if st.SizeBytes == 0 {
		t.Error("expected non-zero size")
	}
	if !st.Oldest.Equal(es[0].Timestamp) || !st.Newest.Equal(es[2].Timestamp) {
		t.Errorf("oldest/newest wrong: %v %v", st.Oldest, st.Newest)
	}
}
