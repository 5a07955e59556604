// Package model defines the core memory data types.
package model

import (
	"strings"
	"time"
)

// Well-known entry sources.
const (
	SourceManual         = "manual_input"
	SourceFilePrefix     = "file:"
	SourceLocalLLMPrefix = "local_llm:"
)

// Entry is one persisted exchange or ingested fact. Entries are never
// mutated or deleted once appended.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Encrypted bool      `json:"encrypted"`
}

// NewEntry stamps an entry with the current UTC time.
func NewEntry(source, content string) Entry {
	return Entry{Timestamp: time.Now().UTC(), Source: source, Content: content}
}

// Key is the structural identity used for deduplication:
// timestamp, source and content. Encrypted is not part of it.
func (e Entry) Key() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano) + "\x00" + e.Source + "\x00" + e.Content
}

// HasContent reports whether the entry carries indexable text.
func (e Entry) HasContent() bool {
	return strings.TrimSpace(e.Content) != ""
}

// LocalLLMSource builds the source tag for answers from a local model.
func LocalLLMSource(model string) string {
	return SourceLocalLLMPrefix + model
}

// ModelDescriptor describes a locally runnable model.
type ModelDescriptor struct {
	Name          string `json:"name"`
	Installed     bool   `json:"installed"`
	LocalVersion  string `json:"local_version,omitempty"`
	RemoteVersion string `json:"remote_version,omitempty"` // empty means unknown
}

// FeedbackRecord is one user rating of an assistant turn.
type FeedbackRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Positive  bool      `json:"positive"`
}
