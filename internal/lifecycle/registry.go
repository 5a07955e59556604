package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
)

// DefaultRegistryURL is the public Ollama model registry.
const DefaultRegistryURL = "https://registry.ollama.ai"

const manifestMediaType = "application/vnd.docker.distribution.manifest.v2+json"

// HTTPRegistry reads model manifests from an OCI-style registry. The remote
// version is the sha256 of the manifest, which is also the digest Ollama
// reports for an installed model.
type HTTPRegistry struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPRegistry creates a registry client. An empty base uses the public
// Ollama registry.
func NewHTTPRegistry(base string) *HTTPRegistry {
	if base == "" {
		base = DefaultRegistryURL
	}
	return &HTTPRegistry{
		BaseURL: strings.TrimRight(base, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRegistry) RemoteVersion(ctx context.Context, name string) (string, error) {
	ns, repo, tag := splitName(name)
	u := fmt.Sprintf("%s/v2/%s/%s/manifests/%s", r.BaseURL, ns, repo, tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", manifestMediaType)

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", apperr.E(apperr.KindRuntimeUnavailable, "registry.RemoteVersion", "registry unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.E(apperr.KindRuntimeUnavailable, "registry.RemoteVersion", "read manifest", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", apperr.Ef(apperr.KindNotFound, "registry.RemoteVersion", "model %q not in registry", name)
	case resp.StatusCode != http.StatusOK:
		return "", apperr.Ef(apperr.KindOperationFailed, "registry.RemoteVersion", "registry error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// splitName turns "llama3", "llama3:8b" or "user/model:tag" into registry
// path parts. Official models live in the "library" namespace.
func splitName(name string) (ns, repo, tag string) {
	name = NormalizeName(name)
	repo, tag, _ = strings.Cut(name[strings.LastIndex(name, "/")+1:], ":")
	ns = "library"
	if i := strings.LastIndex(name, "/"); i >= 0 {
		ns = name[:i]
	}
	return ns, repo, tag
}
