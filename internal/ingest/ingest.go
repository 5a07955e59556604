// Package ingest turns text files into memory entries.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/model"
)

// Supported reports whether path has an extension that can be ingested.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// Source is the source tag for entries read from path.
func Source(path string) string {
	return model.SourceFilePrefix + filepath.Base(path)
}

// Text chunks text into entries tagged with source.
func Text(source, text string, opts Options) []model.Entry {
	now := time.Now().UTC()
	var out []model.Entry
	for _, c := range Split(text, opts) {
		out = append(out, model.Entry{Timestamp: now, Source: source, Content: c.Text})
	}
	return out
}

// File reads one text file into entries.
func File(path string, opts Options) ([]model.Entry, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.E(apperr.KindNotFound, "ingest.File", "file not found: "+path, nil)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Text(Source(path), string(b), opts), nil
}

// Dir reads every supported file directly inside dir, in name order.
// Unsupported files are skipped with a log line.
func Dir(dir string, opts Options, logger *slog.Logger) ([]model.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.E(apperr.KindNotFound, "ingest.Dir", "directory not found: "+dir, nil)
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	var out []model.Entry
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		path := filepath.Join(dir, it.Name())
		if !Supported(path) {
			logger.Info("skipping unsupported file", "file", it.Name())
			continue
		}
		entries, err := File(path, opts)
		if err != nil {
			return nil, err
		}
		logger.Debug("read file", "file", it.Name(), "entries", len(entries))
		out = append(out, entries...)
	}
	return out, nil
}

// Path dispatches to File or Dir.
func Path(path string, opts Options, logger *slog.Logger) ([]model.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.E(apperr.KindNotFound, "ingest.Path", "not found: "+path, nil)
		}
		return nil, err
	}
	if info.IsDir() {
		return Dir(path, opts, logger)
	}
	return File(path, opts)
}
