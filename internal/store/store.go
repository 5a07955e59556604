// Package store provides the append-only memory store interface with JSON
// file and SQLite implementations.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/vault"
)

// SchemaVersion is the canonical on-disk schema.
const SchemaVersion = 2

// Drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Store defines the memory storage interface.
type Store interface {
	// Append adds entries in order. Either all of them are persisted or none.
	Append(ctx context.Context, entries ...model.Entry) error

	// LoadAll returns every entry in append order with content decrypted.
	LoadAll(ctx context.Context) ([]model.Entry, error)

	// Path returns the backing file.
	Path() string

	// Close closes the store.
	Close() error
}

// Rewriter is implemented by stores that can atomically replace their whole
// content. It is used for re-encryption only; entries are never edited.
type Rewriter interface {
	Rewrite(ctx context.Context, entries []model.Entry) error
}

// Options configures a store.
type Options struct {
	Driver string
	Path   string
	// Vault enables encrypted mode. Nil means plaintext.
	Vault  *vault.Vault
	Logger *slog.Logger
}

// Open opens a store for the configured driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverJSON:
		return NewFileStore(opts.Path, opts.Vault, opts.Logger)
	case DriverSQLite:
		return NewSQLiteStore(opts.Path, opts.Vault, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q (use json or sqlite)", opts.Driver)
	}
}

// sealEntry prepares an entry for persistence.
func sealEntry(e model.Entry, v *vault.Vault) (model.Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Encrypted = false
	if v == nil {
		return e, nil
	}
	tok, err := v.EncryptString(e.Content)
	if err != nil {
		return e, fmt.Errorf("encrypt entry: %w", err)
	}
	e.Content = tok
	e.Encrypted = true
	return e, nil
}

// openEntry reverses sealEntry. Encrypted content without a vault is an
// authentication failure.
func openEntry(e model.Entry, v *vault.Vault) (model.Entry, error) {
	if !e.Encrypted {
		return e, nil
	}
	if v == nil {
		return e, apperr.E(apperr.KindAuthentication, "store.LoadAll", "store is encrypted; a passphrase is required", nil)
	}
	plain, err := v.DecryptString(e.Content)
	if err != nil {
		return e, err
	}
	e.Content = plain
	return e, nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
