package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/fsutil"
	"github.com/rcliao/memvault/internal/model"
)

// legacyRecord covers the version 1 record shapes: exchanges with a prompt
// and response, ingested facts with content, and question/answer pairs.
type legacyRecord struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Content   string `json:"content"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

// legacyTimeLayouts are tried in order when parsing version 1 timestamps,
// which were written without a zone.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// MigrateResult summarises a schema upgrade.
type MigrateResult struct {
	Converted int    `json:"converted"`
	Skipped   int    `json:"skipped"`
	Backup    string `json:"backup,omitempty"`
}

// Migrate upgrades a version 1 JSON array at path to the version 2 document
// in place. The original is kept as <path>.v1.bak. A file that is already at
// version 2 is left alone.
func Migrate(path string) (*MigrateResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.E(apperr.KindNotFound, "store.Migrate", "no store at "+path, nil)
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return &MigrateResult{}, nil
	}

	var records []legacyRecord
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, apperr.E(apperr.KindStoreCorruption, "store.Migrate", "unreadable version 1 store", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	fallback := info.ModTime().UTC()

	res := &MigrateResult{}
	entries := make([]model.Entry, 0, len(records))
	for _, r := range records {
		e, ok := convertLegacy(r, fallback)
		if !ok {
			res.Skipped++
			continue
		}
		entries = append(entries, e)
		res.Converted++
	}

	res.Backup = path + ".v1.bak"
	if err := fsutil.WriteFileAtomic(res.Backup, b, filePerm); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	out, err := json.MarshalIndent(fileDoc{Version: SchemaVersion, Entries: entries}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(path, out, filePerm); err != nil {
		return nil, fmt.Errorf("write store: %w", err)
	}
	return res, nil
}

func convertLegacy(r legacyRecord, fallback time.Time) (model.Entry, bool) {
	var content string
	switch {
	case r.Content != "":
		content = r.Content
	case r.Prompt != "" || r.Response != "":
		content = r.Prompt + "\n" + r.Response
	case r.Question != "" || r.Answer != "":
		content = r.Question + "\n" + r.Answer
	}
	if strings.TrimSpace(content) == "" {
		return model.Entry{}, false
	}

	ts := fallback
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			ts = t.UTC()
			break
		}
	}
	src := r.Source
	if src == "" {
		src = "legacy"
	}
	return model.Entry{Timestamp: ts, Source: src, Content: content}, true
}
