package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rcliao/memvault/internal/apperr"
)

// CLIRuntime drives the ollama executable.
type CLIRuntime struct {
	// Bin is the executable name or path; empty means "ollama".
	Bin string
}

func (r *CLIRuntime) bin() string {
	if r.Bin == "" {
		return "ollama"
	}
	return r.Bin
}

// List parses `ollama list`. The first line is a header; the first two
// columns of each row are the name and the abbreviated digest.
func (r *CLIRuntime) List(ctx context.Context) ([]Installed, error) {
	out, err := r.run(ctx, "lifecycle.List", nil, "list")
	if err != nil {
		return nil, err
	}

	var models []Installed
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		in := Installed{Name: fields[0]}
		if len(fields) > 1 {
			in.Digest = fields[1]
		}
		models = append(models, in)
	}
	return models, sc.Err()
}

// Pull runs `ollama pull name`, forwarding each output line to progress.
func (r *CLIRuntime) Pull(ctx context.Context, name string, progress func(string)) error {
	_, err := r.run(ctx, "lifecycle.Pull", progress, "pull", name)
	return err
}

func (r *CLIRuntime) run(ctx context.Context, op string, progress func(string), args ...string) ([]byte, error) {
	path, err := exec.LookPath(r.bin())
	if err != nil {
		return nil, apperr.E(apperr.KindRuntimeMissing, op,
			fmt.Sprintf("%s executable not found; install Ollama from https://ollama.com/download", r.bin()), err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if progress != nil {
		lw := &lineWriter{fn: progress}
		cmd.Stdout = io.MultiWriter(&stdout, lw)
		cmd.Stderr = io.MultiWriter(&stderr, lw)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.E(apperr.KindTimeout, op, "ollama "+strings.Join(args, " "), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return nil, apperr.Ef(apperr.KindOperationFailed, op, "ollama %s: %s", strings.Join(args, " "), msg)
		}
		return nil, apperr.E(apperr.KindRuntimeUnavailable, op, "ollama "+strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

// lineWriter calls fn for every non-empty line, treating carriage returns
// from progress bars as line breaks.
type lineWriter struct {
	fn  func(string)
	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.buf[:i])); line != "" {
			w.fn(line)
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
