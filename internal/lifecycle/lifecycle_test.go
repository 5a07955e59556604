package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memvault/internal/apperr"
)

type fakeRuntime struct {
	installed []Installed
	listErr   error
	pullErr   error
	pulls     []string
	// onPull lets a test observe manager state mid-pull.
	onPull func()
}

func (f *fakeRuntime) List(context.Context) ([]Installed, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.installed, nil
}

func (f *fakeRuntime) Pull(_ context.Context, name string, progress func(string)) error {
	f.pulls = append(f.pulls, name)
	if f.onPull != nil {
		f.onPull()
	}
	if f.pullErr != nil {
		return f.pullErr
	}
	if progress != nil {
		progress("success")
	}
	for i, in := range f.installed {
		if NormalizeName(in.Name) == NormalizeName(name) {
			f.installed[i].Digest = "remote-digest"
			return nil
		}
	}
	f.installed = append(f.installed, Installed{Name: NormalizeName(name), Digest: "remote-digest"})
	return nil
}

type fakeRegistry struct {
	versions map[string]string
	err      error
}

func (f *fakeRegistry) RemoteVersion(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.versions[NormalizeName(name)]
	if !ok {
		return "", apperr.E(apperr.KindNotFound, "fake", name, nil)
	}
	return v, nil
}

func newManager(rt *fakeRuntime, reg Registry) *Manager {
	return NewManager(rt, reg, nil)
}

var (
	missing     = apperr.E(apperr.KindRuntimeMissing, "test", "ollama not found", nil)
	unreachable = apperr.E(apperr.KindRuntimeUnavailable, "test", "connection refused", nil)
)

func TestListInstalled(t *testing.T) {
	tests := []struct {
		name string
		rt   *fakeRuntime
		want int
	}{
		{"runtime missing", &fakeRuntime{listErr: missing}, 0},
		{"runtime unreachable", &fakeRuntime{listErr: unreachable}, 0},
		{"no models", &fakeRuntime{}, 0},
		{"two models", &fakeRuntime{installed: []Installed{{Name: "llama3:latest", Digest: "abc"}, {Name: "tinyllama:latest"}}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newManager(tt.rt, nil).ListInstalled(context.Background())
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)
			for _, d := range got {
				assert.True(t, d.Installed)
			}
		})
	}
}

func TestCheckUpdate(t *testing.T) {
	rt := &fakeRuntime{installed: []Installed{{Name: "llama3:latest", Digest: "365c0bd3c000"}}}

	tests := []struct {
		name  string
		reg   Registry
		model string
		want  bool
	}{
		{"same digest abbreviated", &fakeRegistry{versions: map[string]string{"llama3:latest": "365c0bd3c000a25d28ddbf732fe1c6add414de7275464c4e4d1c3b5fcb5d8ad1"}}, "llama3", false},
		{"newer remote", &fakeRegistry{versions: map[string]string{"llama3:latest": "ffff"}}, "llama3:latest", true},
		{"registry down", &fakeRegistry{err: unreachable}, "llama3", false},
		{"not installed", &fakeRegistry{versions: map[string]string{"mistral:latest": "ffff"}}, "mistral", false},
		{"no registry", nil, "llama3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newManager(rt, tt.reg).CheckUpdate(context.Background(), tt.model))
		})
	}

	down := newManager(&fakeRuntime{listErr: missing}, &fakeRegistry{})
	assert.False(t, down.CheckUpdate(context.Background(), "llama3"))
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{installed: []Installed{{Name: "llama3:latest"}, {Name: "tinyllama:latest"}}}
	m := newManager(rt, nil)

	name, state := m.Active()
	assert.Empty(t, name)
	assert.Equal(t, Unselected, state)

	require.NoError(t, m.Switch(ctx, "llama3"))
	name, state = m.Active()
	assert.Equal(t, "llama3:latest", name)
	assert.Equal(t, Active, state)

	err := m.Switch(ctx, "gpt-99")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	name, _ = m.Active()
	assert.Equal(t, "llama3:latest", name, "failed switch must not change the active model")

	rt.listErr = missing
	err = m.Switch(ctx, "tinyllama")
	assert.True(t, errors.Is(err, apperr.ErrRuntimeMissing))
	name, _ = m.Active()
	assert.Equal(t, "llama3:latest", name)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{installed: []Installed{{Name: "llama3:latest", Digest: "old"}}}
	m := newManager(rt, nil)

	err := m.Update(ctx, nil)
	assert.Error(t, err, "update without an active model")

	require.NoError(t, m.Switch(ctx, "llama3"))

	var during State
	rt.onPull = func() { _, during = m.Active() }
	require.NoError(t, m.Update(ctx, nil))
	assert.Equal(t, Updating, during)
	_, state := m.Active()
	assert.Equal(t, Active, state)
	assert.Equal(t, []string{"llama3:latest"}, rt.pulls)

	rt.pullErr = apperr.E(apperr.KindOperationFailed, "test", "disk full", nil)
	err = m.Update(ctx, nil)
	assert.True(t, errors.Is(err, apperr.ErrOperationFailed))
	name, state := m.Active()
	assert.Equal(t, "llama3:latest", name)
	assert.Equal(t, Active, state)
}

func TestSwitchDuringUpdateIsRejected(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{installed: []Installed{{Name: "llama3:latest"}, {Name: "phi3:latest"}}}
	m := newManager(rt, nil)
	require.NoError(t, m.Switch(ctx, "llama3"))

	var switchErr error
	rt.onPull = func() { switchErr = m.Switch(ctx, "phi3") }
	require.NoError(t, m.Update(ctx, nil))
	assert.Error(t, switchErr)
	name, _ := m.Active()
	assert.Equal(t, "llama3:latest", name)
}

func TestDownloadIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{}
	reg := &fakeRegistry{versions: map[string]string{"phi3:latest": "remote-digest"}}
	m := newManager(rt, reg)

	require.NoError(t, m.Download(ctx, "phi3", nil))
	require.NoError(t, m.Download(ctx, "phi3", nil))
	assert.Equal(t, []string{"phi3:latest"}, rt.pulls, "second download must be a no-op")
	assert.Len(t, m.ListInstalled(ctx), 1)

	// A newer remote version triggers a pull again.
	reg.versions["phi3:latest"] = "newer"
	require.NoError(t, m.Download(ctx, "phi3", nil))
	assert.Len(t, rt.pulls, 2)
}

func TestDownloadInstalledWithRegistryDown(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{installed: []Installed{{Name: "llama3:latest", Digest: "abc123"}}}
	m := newManager(rt, &fakeRegistry{err: unreachable})

	require.NoError(t, m.Download(ctx, "llama3", nil))
	require.NoError(t, m.Download(ctx, "llama3:latest", nil))
	assert.Empty(t, rt.pulls, "installed model must not be re-pulled when the registry is down")

	// A model that is not installed is still pulled.
	require.NoError(t, m.Download(ctx, "phi3", nil))
	assert.Equal(t, []string{"phi3:latest"}, rt.pulls)
}

func TestDownloadRuntimeMissing(t *testing.T) {
	m := newManager(&fakeRuntime{listErr: missing}, nil)
	err := m.Download(context.Background(), "phi3", nil)
	assert.True(t, errors.Is(err, apperr.ErrRuntimeMissing))
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"llama3":              "llama3:latest",
		"llama3:8b":           "llama3:8b",
		" tinyllama ":         "tinyllama:latest",
		"user/model":          "user/model:latest",
		"host:5000/user/mdl":  "host:5000/user/mdl:latest",
		"host:5000/user/m:v1": "host:5000/user/m:v1",
		"":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestSameDigest(t *testing.T) {
	assert.True(t, sameDigest("365c0bd3c000", "sha256:365C0BD3C000abcdef"))
	assert.False(t, sameDigest("", "abc"))
	assert.False(t, sameDigest("abc", "abd"))
}
