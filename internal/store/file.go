package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/fsutil"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/vault"
)

const filePerm = 0o600

// fileDoc is the version 2 on-disk layout.
type fileDoc struct {
	Version   int           `json:"version"`
	Encrypted bool          `json:"encrypted"`
	Entries   []model.Entry `json:"entries"`
}

// FileStore implements Store as a single JSON document that is replaced
// atomically on every append.
type FileStore struct {
	path   string
	vault  *vault.Vault
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore opens (or prepares) a JSON store at path. The file is created
// on first append.
func NewFileStore(path string, v *vault.Vault, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{path: path, vault: v, logger: loggerOr(logger)}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Close() error { return nil }

// read loads the document from disk. Disk is always the source of truth, so
// nothing is cached between calls.
func (s *FileStore) read() (fileDoc, error) {
	empty := fileDoc{Version: SchemaVersion, Encrypted: s.vault != nil}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read store: %w", err)
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return empty, nil
	}
	if trimmed[0] == '[' {
		return empty, apperr.Ef(apperr.KindSchemaUpgrade, "store.read",
			"%s uses the version 1 schema; run `memvault migrate` to upgrade it", s.path)
	}

	var doc fileDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		if s.vault != nil {
			return empty, apperr.E(apperr.KindAuthentication, "store.read", "encrypted store could not be read", err)
		}
		return empty, apperr.E(apperr.KindStoreCorruption, "store.read", s.path, err)
	}
	if doc.Version > SchemaVersion {
		return empty, apperr.Ef(apperr.KindSchemaUpgrade, "store.read",
			"%s was written with schema version %d; this build reads up to %d", s.path, doc.Version, SchemaVersion)
	}
	if doc.Version < SchemaVersion {
		return empty, apperr.Ef(apperr.KindSchemaUpgrade, "store.read",
			"%s has schema version %d; run `memvault migrate`", s.path, doc.Version)
	}
	if doc.Encrypted && s.vault == nil {
		return empty, apperr.E(apperr.KindAuthentication, "store.read", "store is encrypted; a passphrase is required", nil)
	}
	return doc, nil
}

// LoadAll returns entries in append order. An unparsable plaintext file is
// logged and treated as empty.
func (s *FileStore) LoadAll(ctx context.Context) ([]model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		if errors.Is(err, apperr.ErrStoreCorruption) {
			s.logger.Warn("memory store unreadable, starting with empty memory", "path", s.path, "error", err)
			return nil, nil
		}
		return nil, err
	}

	out := make([]model.Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plain, err := openEntry(e, s.vault)
		if err != nil {
			return nil, err
		}
		out = append(out, plain)
	}
	return out, nil
}

// Append re-reads the file, appends entries and atomically replaces it.
func (s *FileStore) Append(ctx context.Context, entries ...model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		if !errors.Is(err, apperr.ErrStoreCorruption) {
			return err
		}
		if err := s.quarantine(); err != nil {
			return err
		}
	}

	if err := s.verifyKey(doc); err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		sealed, err := sealEntry(e, s.vault)
		if err != nil {
			return err
		}
		doc.Entries = append(doc.Entries, sealed)
	}
	if s.vault != nil {
		doc.Encrypted = true
	}
	return s.write(doc)
}

// verifyKey opens the newest encrypted entry so a wrong key never appends
// entries that the rest of the file cannot be read with.
func (s *FileStore) verifyKey(doc fileDoc) error {
	if s.vault == nil {
		return nil
	}
	for i := len(doc.Entries) - 1; i >= 0; i-- {
		if doc.Entries[i].Encrypted {
			_, err := openEntry(doc.Entries[i], s.vault)
			return err
		}
	}
	return nil
}

// Rewrite replaces the whole store with entries, sealed with the current
// vault. Used when enabling encryption or changing the passphrase.
func (s *FileStore) Rewrite(ctx context.Context, entries []model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.quarantineUnparsable(); err != nil {
		return err
	}
	doc := fileDoc{Version: SchemaVersion, Encrypted: s.vault != nil, Entries: make([]model.Entry, 0, len(entries))}
	for _, e := range entries {
		sealed, err := sealEntry(e, s.vault)
		if err != nil {
			return err
		}
		doc.Entries = append(doc.Entries, sealed)
	}
	return s.write(doc)
}

func (s *FileStore) write(doc fileDoc) error {
	doc.Version = SchemaVersion
	if doc.Entries == nil {
		doc.Entries = []model.Entry{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, b, filePerm); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

// quarantineUnparsable moves the file aside when it is not valid JSON. It
// checks syntax only, so it works whether or not the file is encrypted.
func (s *FileStore) quarantineUnparsable() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || json.Valid(b) {
		return nil
	}
	return s.quarantine()
}

// quarantine moves an unparsable file aside before it would be replaced.
func (s *FileStore) quarantine() error {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dst); err != nil {
		return fmt.Errorf("move unreadable store aside: %w", err)
	}
	s.logger.Warn("moved unreadable memory store aside", "path", s.path, "backup", dst)
	return nil
}
