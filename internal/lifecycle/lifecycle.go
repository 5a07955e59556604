// Package lifecycle tracks the active local model and lists, checks,
// downloads and updates models through a model runtime.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/model"
)

// State is the lifecycle state of the active model slot.
type State int

const (
	Unselected State = iota
	Active
	Updating
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Updating:
		return "updating"
	default:
		return "unselected"
	}
}

// Installed is one model present in the local runtime.
type Installed struct {
	Name       string
	Digest     string // full or abbreviated sha256 of the manifest
	Size       int64
	ModifiedAt time.Time
}

// Runtime runs local models.
type Runtime interface {
	List(ctx context.Context) ([]Installed, error)
	// Pull downloads or updates name. progress may be nil.
	Pull(ctx context.Context, name string, progress func(status string)) error
}

// Registry reports the newest published version of a model.
type Registry interface {
	RemoteVersion(ctx context.Context, name string) (string, error)
}

// Manager owns the active model slot.
type Manager struct {
	runtime  Runtime
	registry Registry
	logger   *slog.Logger

	mu     sync.Mutex
	active string
	state  State
}

// NewManager creates a manager with no active model. registry may be nil, in
// which case updates are never reported.
func NewManager(rt Runtime, reg Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{runtime: rt, registry: reg, logger: logger}
}

// Active returns the active model name and the slot state.
func (m *Manager) Active() (string, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.state
}

// ListInstalled returns the installed models. It never fails: an unavailable
// runtime and an empty runtime both yield an empty list, logged differently.
func (m *Manager) ListInstalled(ctx context.Context) []model.ModelDescriptor {
	installed, err := m.runtime.List(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrRuntimeMissing) || errors.Is(err, apperr.ErrRuntimeUnavailable) {
			m.logger.Warn("model runtime unavailable", "error", err)
		} else {
			m.logger.Error("listing models failed", "error", err)
		}
		return []model.ModelDescriptor{}
	}
	if len(installed) == 0 {
		m.logger.Info("no models installed")
		return []model.ModelDescriptor{}
	}

	out := make([]model.ModelDescriptor, len(installed))
	for i, in := range installed {
		out[i] = model.ModelDescriptor{Name: in.Name, Installed: true, LocalVersion: in.Digest}
	}
	return out
}

// CheckUpdate reports whether the registry has a newer version of an
// installed model. Any failure means unknown and is reported as false.
func (m *Manager) CheckUpdate(ctx context.Context, name string) bool {
	d, err := m.Describe(ctx, name)
	if err != nil {
		m.logger.Warn("update check failed, assuming up to date", "model", name, "error", err)
		return false
	}
	return d.Installed && d.RemoteVersion != "" && !sameDigest(d.LocalVersion, d.RemoteVersion)
}

// Describe returns the local and remote versions of name. A missing model is
// not an error; Installed is false.
func (m *Manager) Describe(ctx context.Context, name string) (model.ModelDescriptor, error) {
	name = NormalizeName(name)
	d := model.ModelDescriptor{Name: name}

	installed, err := m.runtime.List(ctx)
	if err != nil {
		return d, err
	}
	in, ok := find(installed, name)
	if !ok {
		return d, nil
	}
	d.Installed = true
	d.LocalVersion = in.Digest

	if m.registry == nil {
		return d, nil
	}
	remote, err := m.registry.RemoteVersion(ctx, name)
	if err != nil {
		return d, err
	}
	d.RemoteVersion = remote
	return d, nil
}

// Switch makes name the active model. On any error the active slot is left
// as it was.
func (m *Manager) Switch(ctx context.Context, name string) error {
	m.mu.Lock()
	updating := m.state == Updating
	m.mu.Unlock()
	if updating {
		return apperr.E(apperr.KindOperationFailed, "lifecycle.Switch", "an update is in progress", nil)
	}

	installed, err := m.runtime.List(ctx)
	if err != nil {
		return err
	}
	in, ok := find(installed, name)
	if !ok {
		return apperr.Ef(apperr.KindNotFound, "lifecycle.Switch", "model %q is not installed", name)
	}

	m.mu.Lock()
	prev := m.active
	m.active = in.Name
	m.state = Active
	m.mu.Unlock()
	m.logger.Info("model switched", "from", prev, "to", in.Name)
	return nil
}

// Update pulls the latest version of the active model. The slot is Updating
// while the pull runs and returns to Active whether or not it succeeds.
func (m *Manager) Update(ctx context.Context, progress func(string)) error {
	m.mu.Lock()
	if m.state != Active {
		state := m.state
		m.mu.Unlock()
		return apperr.Ef(apperr.KindOperationFailed, "lifecycle.Update", "no active model to update (state %s)", state)
	}
	name := m.active
	m.state = Updating
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = Active
		m.mu.Unlock()
	}()

	m.logger.Info("pulling latest version", "model", name)
	if err := m.runtime.Pull(ctx, name, progress); err != nil {
		m.logger.Error("model update failed", "model", name, "error", err)
		return err
	}
	m.logger.Info("model updated", "model", name)
	return nil
}

// Download installs name. It is a no-op when the model is installed and no
// update is known.
func (m *Manager) Download(ctx context.Context, name string, progress func(string)) error {
	name = NormalizeName(name)
	d, err := m.Describe(ctx, name)
	if errors.Is(err, apperr.ErrRuntimeMissing) {
		return err
	}
	if d.Installed {
		switch {
		case err != nil:
			// An installed model is never re-pulled on an unknown remote version.
			m.logger.Warn("remote version unavailable, keeping installed model", "model", name, "error", err)
			return nil
		case d.RemoteVersion == "" || sameDigest(d.LocalVersion, d.RemoteVersion):
			m.logger.Info("model already up to date", "model", name)
			return nil
		}
	}

	m.logger.Info("downloading model", "model", name)
	if err := m.runtime.Pull(ctx, name, progress); err != nil {
		m.logger.Error("model download failed", "model", name, "error", err)
		return err
	}
	m.logger.Info("model downloaded", "model", name)
	return nil
}

// NormalizeName adds the implicit ":latest" tag.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.LastIndex(name, "/"); !strings.Contains(name[i+1:], ":") {
		name += ":latest"
	}
	return name
}

func find(installed []Installed, name string) (Installed, bool) {
	want := NormalizeName(name)
	for _, in := range installed {
		if NormalizeName(in.Name) == want {
			return in, true
		}
	}
	return Installed{}, false
}

// sameDigest compares digests by prefix so the abbreviated IDs printed by
// `ollama list` match full hashes.
func sameDigest(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "sha256:")
	b = strings.TrimPrefix(strings.ToLower(b), "sha256:")
	if a == "" || b == "" {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a)
}
