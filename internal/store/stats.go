package store

import (
	"context"
	"os"
	"sort"
	"time"
)

// SourceCount is the number of entries for one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Stats holds store statistics.
type Stats struct {
	Path      string        `json:"path"`
	SizeBytes int64         `json:"size_bytes"`
	Entries   int           `json:"entries"`
	Encrypted bool          `json:"encrypted"`
	Sources   []SourceCount `json:"sources"`
	Oldest    *time.Time    `json:"oldest,omitempty"`
	Newest    *time.Time    `json:"newest,omitempty"`
}

// GetStats summarises s. encrypted reports the mode the store was opened in.
func GetStats(ctx context.Context, s Store, encrypted bool) (*Stats, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{Path: s.Path(), Entries: len(entries), Encrypted: encrypted}
	if info, err := os.Stat(s.Path()); err == nil {
		st.SizeBytes = info.Size()
	}

	counts := make(map[string]int)
	for i := range entries {
		e := entries[i]
		counts[e.Source]++
		if st.Oldest == nil || e.Timestamp.Before(*st.Oldest) {
			ts := e.Timestamp
			st.Oldest = &ts
		}
		if st.Newest == nil || e.Timestamp.After(*st.Newest) {
			ts := e.Timestamp
			st.Newest = &ts
		}
	}
	for src, n := range counts {
		st.Sources = append(st.Sources, SourceCount{Source: src, Count: n})
	}
	sort.Slice(st.Sources, func(i, j int) bool {
		if st.Sources[i].Count != st.Sources[j].Count {
			return st.Sources[i].Count > st.Sources[j].Count
		}
		return st.Sources[i].Source < st.Sources[j].Source
	})
	return st, nil
}
