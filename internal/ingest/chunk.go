package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
	// DefaultMinChars drops fragments too short to be worth remembering.
	DefaultMinChars = 10
)

// Options configures how text is cut into entries.
type Options struct {
	TargetSize int
	MaxSize    int
	// MinChars is exclusive: a chunk must be longer than this.
	MinChars int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
		MinChars:   DefaultMinChars,
	}
}

// Chunk is a piece of a document and the lines it came from.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// Split cuts text into chunks on headings and blank lines, merging small
// sections up to TargetSize and breaking oversized ones on line boundaries.
// Text no longer than MaxSize stays whole. Sizes count runes.
func Split(text string, opts Options) []Chunk {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []Chunk
	if size(text) <= opts.MaxSize {
		chunks = []Chunk{{Text: text, StartLine: 1, EndLine: strings.Count(text, "\n") + 1}}
	} else {
		chunks = merge(sections(text), opts)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if size(c.Text) > opts.MinChars {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func size(s string) int { return utf8.RuneCountInString(s) }

// sections splits on heading lines and runs of blank lines.
func sections(text string) []Chunk {
	lines := strings.Split(text, "\n")
	var (
		out     []Chunk
		current []string
		start   = 1
	)

	flush := func(end int) {
		if len(current) == 0 {
			return
		}
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			out = append(out, Chunk{Text: t, StartLine: start, EndLine: end})
		}
		current = nil
		start = end + 1
	}

	prevBlank := false
	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush(n - 1)
		}
		if trimmed == "" {
			if prevBlank && len(current) > 0 {
				flush(n - 1)
			}
			prevBlank = true
			current = append(current, line)
			continue
		}
		prevBlank = false
		current = append(current, line)
	}
	flush(len(lines))
	return out
}

// merge combines small sections up to TargetSize and hard-splits any result
// above MaxSize.
func merge(secs []Chunk, opts Options) []Chunk {
	var (
		out   []Chunk
		accum Chunk
	)

	emit := func() {
		t := strings.TrimSpace(accum.Text)
		if t == "" {
			return
		}
		if size(t) > opts.MaxSize {
			out = append(out, splitLines(t, accum.StartLine, opts.TargetSize)...)
		} else {
			out = append(out, Chunk{Text: t, StartLine: accum.StartLine, EndLine: accum.StartLine + strings.Count(t, "\n")})
		}
		accum = Chunk{}
	}

	for _, s := range secs {
		if accum.Text == "" {
			accum = s
			continue
		}
		if combined := accum.Text + "\n\n" + s.Text; size(combined) <= opts.TargetSize {
			accum.Text = combined
			accum.EndLine = s.EndLine
			continue
		}
		emit()
		accum = s
	}
	emit()
	return out
}

// splitLines breaks text into pieces of about target runes on line boundaries.
func splitLines(text string, startLine, target int) []Chunk {
	lines := strings.Split(text, "\n")
	var (
		out     []Chunk
		current []string
		from    = startLine
		n       int
	)

	flush := func(end int) {
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			out = append(out, Chunk{Text: t, StartLine: from, EndLine: end})
		}
	}

	for i, line := range lines {
		l := size(line)
		if n+l > target && len(current) > 0 {
			flush(startLine + i - 1)
			current = nil
			from = startLine + i
			n = 0
		}
		current = append(current, line)
		n += l + 1
	}
	if len(current) > 0 {
		flush(startLine + len(lines) - 1)
	}
	return out
}
