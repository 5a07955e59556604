package ingest

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSplit_ShortContent(t *testing.T) {
	text := "This is a short memory."
	result := Split(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0].Text != text || result[0].StartLine != 1 {
		t.Errorf("unexpected chunk %+v", result[0])
	}
}

func TestSplit_DropsTinyFragments(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"ok", 0},
		{"0123456789", 0},  // exactly ten is not enough
		{"0123456789a", 1}, // eleven is
	}
	for _, tt := range tests {
		if got := Split(tt.text, DefaultOptions()); len(got) != tt.want {
			t.Errorf("Split(%q) = %d chunks, want %d", tt.text, len(got), tt.want)
		}
	}
}

func TestSplit_SplitsOnHeadings(t *testing.T) {
	section := strings.Repeat("Some content filling space. ", 12)
	text := "# Section One\n\n" + section + "\n\n# Section Two\n\n" + section + "\n\n# Section Three\n\n" + section

	result := Split(text, DefaultOptions())
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	if !strings.Contains(result[0].Text, "Section One") {
		t.Errorf("first chunk should contain 'Section One', got %q", result[0].Text)
	}
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	opts := Options{TargetSize: 200, MaxSize: 300, MinChars: 10}
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a line of text that is about fifty characters long.")
	}
	result := Split(strings.Join(lines, "\n"), opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	for i, c := range result {
		if size(c.Text) > opts.MaxSize {
			t.Errorf("chunk %d has %d runes", i, size(c.Text))
		}
	}
}

func TestSplit_MergesSmallBlocks(t *testing.T) {
	text := "# A\n\nShort section.\n\n# B\n\nAlso short."
	if got := Split(text, DefaultOptions()); len(got) != 1 {
		t.Errorf("expected 1 merged chunk, got %d", len(got))
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	// 300 runes, 900 bytes: under MaxSize by runes.
	text := strings.Repeat("苹", 300)
	if got := Split(text, DefaultOptions()); len(got) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(got))
	}
}
