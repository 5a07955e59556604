package store

import (
	"context"
	"time"

	"github.com/rcliao/memvault/internal/model"
)

// ExportData is the portable plaintext dump of a store.
type ExportData struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Entries    []model.Entry `json:"entries"`
}

// Export returns every entry decrypted, in append order.
func Export(ctx context.Context, s Store) (*ExportData, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return &ExportData{
		Version:    SchemaVersion,
		ExportedAt: time.Now().UTC(),
		Entries:    entries,
	}, nil
}

// Import merges an export into s and reports how many entries were new.
func Import(ctx context.Context, s Store, data *ExportData) (int, error) {
	have, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return MergeEntries(ctx, s, have, data.Entries)
}
