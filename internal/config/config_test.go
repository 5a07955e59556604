package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.Set("data", t.TempDir())
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t)
	p, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "json", p.Driver)
	assert.Equal(t, filepath.Join(p.Data, "memory.json"), p.StorePath)
	assert.Equal(t, filepath.Join(p.Data, "feedback.log"), p.FeedbackLog)
	assert.Equal(t, "tinyllama", p.Model)
	assert.Equal(t, 5, p.TopK)
	assert.Equal(t, 120*time.Second, p.Timeout)
	assert.Nil(t, p.Threshold)
}

func TestLoadSQLiteStorePath(t *testing.T) {
	v := newViper(t)
	v.Set("driver", "sqlite")
	p, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "memory.db", filepath.Base(p.StorePath))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEMVAULT_TOP_K", "3")
	t.Setenv("MEMVAULT_THRESHOLD", "0.4")
	t.Setenv("MEMVAULT_TIMEOUT", "30")
	t.Setenv("MEMVAULT_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	p, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, 3, p.TopK)
	require.NotNil(t, p.Threshold)
	assert.InDelta(t, 0.4, *p.Threshold, 1e-9)
	assert.Equal(t, 30*time.Second, p.Timeout)
	assert.Equal(t, "sk-ant-test", p.ChatAPIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"driver", "postgres"},
		{"provider", "venice"},
		{"index", "faiss"},
		{"runtime", "docker"},
		{"threshold", "2"},
		{"timeout", "soon"},
		{"log-format", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	v := newViper(t)
	dir := v.GetString("data")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memvault.yaml"), []byte("model: llama3\ntop-k: 7\n"), 0o600))

	require.NoError(t, ReadConfigFile(v, ""))
	p, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "llama3", p.Model)
	assert.Equal(t, 7, p.TopK)

	assert.NoError(t, ReadConfigFile(newViper(t), ""), "missing config file is fine")
	assert.Error(t, ReadConfigFile(viper.New(), filepath.Join(dir, "nope.yaml")))
}

func TestSlogLevel(t *testing.T) {
	p := &Profile{LogLevel: "debug"}
	assert.Equal(t, "DEBUG", p.SlogLevel().String())
	p.LogLevel = "nonsense"
	assert.Equal(t, "WARN", p.SlogLevel().String())
}
