package store

import (
	"context"
	"fmt"

	"github.com/rcliao/memvault/internal/model"
)

// Merge appends every entry of src that dst does not already hold. Entries
// are compared on their decrypted content, so both stores may use different
// vaults. Existing dst entries keep their order; unseen src entries follow in
// src order as a single atomic append. Merging the same src twice adds nothing.
func Merge(ctx context.Context, dst, src Store) (int, error) {
	have, err := dst.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load destination: %w", err)
	}
	incoming, err := src.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load source: %w", err)
	}
	return MergeEntries(ctx, dst, have, incoming)
}

// MergeEntries appends the entries of incoming whose key is not in have.
func MergeEntries(ctx context.Context, dst Store, have, incoming []model.Entry) (int, error) {
	seen := make(map[string]struct{}, len(have)+len(incoming))
	for _, e := range have {
		seen[e.Key()] = struct{}{}
	}

	var add []model.Entry
	for _, e := range incoming {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		add = append(add, e)
	}
	if len(add) == 0 {
		return 0, nil
	}
	if err := dst.Append(ctx, add...); err != nil {
		return 0, fmt.Errorf("append merged entries: %w", err)
	}
	return len(add), nil
}
