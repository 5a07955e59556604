package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/vault"
)

// SQLiteStore implements Store using SQLite. Rows are only ever inserted.
type SQLiteStore struct {
	path   string
	db     *sql.DB
	vault  *vault.Vault
	logger *slog.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, v *vault.Vault, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		path:    dbPath,
		db:      db,
		vault:   v,
		logger:  loggerOr(logger),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.checkMode(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// newID stamps row ids with the insertion time. Entry timestamps may predate
// the Unix epoch, which ULIDs cannot encode.
func (s *SQLiteStore) newID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Now(), s.entropy)
	if err != nil {
		return "", fmt.Errorf("new id: %w", err)
	}
	return id.String(), nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		timestamp  TEXT NOT NULL,
		source     TEXT NOT NULL,
		content    TEXT NOT NULL,
		encrypted  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion))
	return err
}

// checkMode refuses to open an encrypted database without a vault.
func (s *SQLiteStore) checkMode() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE encrypted = 1`).Scan(&n); err != nil {
		return fmt.Errorf("check encryption: %w", err)
	}
	if n > 0 && s.vault == nil {
		return apperr.E(apperr.KindAuthentication, "store.Open", "store is encrypted; a passphrase is required", nil)
	}
	return nil
}

func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts all entries in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, entries ...model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.verifyKey(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insert(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// verifyKey opens the newest encrypted row so a wrong key cannot append.
func (s *SQLiteStore) verifyKey(ctx context.Context) error {
	if s.vault == nil {
		return nil
	}
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM entries WHERE encrypted = 1 ORDER BY seq DESC LIMIT 1`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify key: %w", err)
	}
	_, err = openEntry(model.Entry{Content: content, Encrypted: true}, s.vault)
	return err
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, entries []model.Entry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries (id, timestamp, source, content, encrypted) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		sealed, err := sealEntry(e, s.vault)
		if err != nil {
			return err
		}
		enc := 0
		if sealed.Encrypted {
			enc = 1
		}
		id, err := s.newID()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id,
			sealed.Timestamp.Format(time.RFC3339Nano), sealed.Source, sealed.Content, enc); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return nil
}

// LoadAll returns every row in insertion order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, source, content, encrypted FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var (
			ts  string
			e   model.Entry
			enc int
		)
		if err := rows.Scan(&ts, &e.Source, &e.Content, &enc); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, apperr.E(apperr.KindStoreCorruption, "store.LoadAll", "bad timestamp "+ts, err)
		}
		e.Encrypted = enc == 1
		plain, err := openEntry(e, s.vault)
		if err != nil {
			return nil, err
		}
		out = append(out, plain)
	}
	return out, rows.Err()
}

// Rewrite replaces all rows in one transaction.
func (s *SQLiteStore) Rewrite(ctx context.Context, entries []model.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := s.insert(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
