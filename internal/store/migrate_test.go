package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMigrateV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	legacy := `[
  {"timestamp": "2024-05-01T10:00:00.123456", "source": "ollama", "prompt": "what is an apple", "response": "a fruit"},
  {"source": "manual_input", "content": "I like green apples"},
  {"question": "capital of France?", "answer": "Paris"},
  {"source": "empty"}
]`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := Migrate(path)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Converted != 3 || res.Skipped != 1 {
		t.Errorf("converted=%d skipped=%d", res.Converted, res.Skipped)
	}
	if _, err := os.Stat(path + ".v1.bak"); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	s, _ := NewFileStore(path, nil, nil)
	got, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load migrated: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Content != "what is an apple\na fruit" {
		t.Errorf("unexpected content %q", got[0].Content)
	}
	if got[0].Timestamp.Year() != 2024 {
		t.Errorf("timestamp not preserved: %v", got[0].Timestamp)
	}
	if got[1].Timestamp.IsZero() {
		t.Error("missing timestamp should fall back to file mtime")
	}
	if got[2].Source != "legacy" {
		t.Errorf("expected legacy source, got %q", got[2].Source)
	}

	// Running again on a version 2 file is a no-op.
	res, err = Migrate(path)
	if err != nil || res.Converted != 0 {
		t.Errorf("second migrate: %+v %v", res, err)
	}
}

func TestMigrateMissing(t *testing.T) {
	if _, err := Migrate(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing store")
	}
}
