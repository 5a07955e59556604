package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"

	"github.com/rcliao/memvault/internal/apperr"
)

// APIRuntime talks to a running Ollama server over its HTTP API.
type APIRuntime struct {
	client *ollama.Client
}

// NewAPIRuntime creates a runtime for the server at host.
func NewAPIRuntime(host string, httpClient *http.Client) (*APIRuntime, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIRuntime{client: ollama.NewClient(u, httpClient)}, nil
}

func (r *APIRuntime) List(ctx context.Context) ([]Installed, error) {
	resp, err := r.client.List(ctx)
	if err != nil {
		return nil, apiError("lifecycle.List", err)
	}
	out := make([]Installed, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, Installed{
			Name:       m.Name,
			Digest:     m.Digest,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return out, nil
}

func (r *APIRuntime) Pull(ctx context.Context, name string, progress func(string)) error {
	err := r.client.Pull(ctx, &ollama.PullRequest{Model: name}, func(p ollama.ProgressResponse) error {
		if progress == nil {
			return nil
		}
		if p.Total > 0 {
			progress(fmt.Sprintf("%s %d%%", p.Status, p.Completed*100/p.Total))
		} else {
			progress(p.Status)
		}
		return nil
	})
	if err != nil {
		return apiError("lifecycle.Pull", err)
	}
	return nil
}

func apiError(op string, err error) error {
	var se ollama.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound {
			return apperr.E(apperr.KindNotFound, op, se.ErrorMessage, err)
		}
		return apperr.E(apperr.KindOperationFailed, op, "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.E(apperr.KindTimeout, op, "", err)
	}
	return apperr.E(apperr.KindRuntimeUnavailable, op, "ollama server unreachable", err)
}
