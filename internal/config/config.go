// Package config loads the memvault profile from flags, environment,
// .env and an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. MEMVAULT_STORE.
const EnvPrefix = "MEMVAULT"

// Profile is the resolved configuration of one run.
type Profile struct {
	Data           string
	StorePath      string
	Driver         string // json | sqlite
	Encrypted      bool
	PassphraseFile string

	LogLevel  string
	LogFormat string // text | json

	EmbedProvider string // auto | hash | ollama | openai
	EmbedModel    string
	EmbedURL      string
	EmbedAPIKey   string
	EmbedCache    int64
	IndexBackend  string // flat | chromem

	ChatProvider string // ollama | openai | groq | anthropic | gemini
	Model        string
	ChatURL      string
	ChatAPIKey   string
	MaxTokens    int
	Timeout      time.Duration

	TopK      int
	Threshold *float64
	Budget    int

	Runtime     string // cli | api
	OllamaBin   string
	OllamaHost  string
	RegistryURL string

	FeedbackLog string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("driver", "json")
	v.SetDefault("log-level", "warn")
	v.SetDefault("log-format", "text")
	v.SetDefault("embed-provider", "auto")
	v.SetDefault("embed-cache", 10000)
	v.SetDefault("index", "flat")
	v.SetDefault("provider", "ollama")
	v.SetDefault("model", "tinyllama")
	v.SetDefault("max-tokens", 1024)
	v.SetDefault("timeout", "120s")
	v.SetDefault("top-k", 5)
	v.SetDefault("budget", 0)
	v.SetDefault("runtime", "cli")
	v.SetDefault("ollama-bin", "ollama")
	v.SetDefault("registry", "https://registry.ollama.ai")
}

// BindEnv makes every key readable from MEMVAULT_<KEY> with dashes as
// underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(strings.ToLower(EnvPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadConfigFile reads file if given, otherwise memvault.yaml (or .json,
// .toml) from the data directory when present.
func ReadConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		return errors.Wrapf(v.ReadInConfig(), "read config %s", file)
	}
	v.SetConfigName("memvault")
	v.AddConfigPath(dataDir(v))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	slog.Debug("config file loaded", "path", v.ConfigFileUsed())
	return nil
}

// Load builds a Profile from v and validates it.
func Load(v *viper.Viper) (*Profile, error) {
	timeout, err := parseDuration(v.GetString("timeout"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid timeout")
	}

	p := &Profile{
		Data:           dataDir(v),
		StorePath:      v.GetString("store"),
		Driver:         v.GetString("driver"),
		Encrypted:      v.GetBool("encrypted"),
		PassphraseFile: v.GetString("passphrase-file"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		EmbedProvider:  v.GetString("embed-provider"),
		EmbedModel:     v.GetString("embed-model"),
		EmbedURL:       v.GetString("embed-url"),
		EmbedAPIKey:    v.GetString("embed-api-key"),
		EmbedCache:     v.GetInt64("embed-cache"),
		IndexBackend:   v.GetString("index"),
		ChatProvider:   v.GetString("provider"),
		Model:          v.GetString("model"),
		ChatURL:        v.GetString("chat-url"),
		ChatAPIKey:     v.GetString("api-key"),
		MaxTokens:      v.GetInt("max-tokens"),
		Timeout:        timeout,
		TopK:           v.GetInt("top-k"),
		Budget:         v.GetInt("budget"),
		Runtime:        v.GetString("runtime"),
		OllamaBin:      v.GetString("ollama-bin"),
		OllamaHost:     v.GetString("ollama-host"),
		RegistryURL:    v.GetString("registry"),
		FeedbackLog:    v.GetString("feedback-log"),
	}
	if raw := strings.TrimSpace(v.GetString("threshold")); raw != "" && raw != "off" {
		f := v.GetFloat64("threshold")
		p.Threshold = &f
	}
	p.fromEnv()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// fromEnv fills provider credentials from the providers' own variables.
func (p *Profile) fromEnv() {
	if p.ChatAPIKey == "" {
		switch p.ChatProvider {
		case "openai":
			p.ChatAPIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			p.ChatAPIKey = os.Getenv("GROQ_API_KEY")
		case "anthropic":
			p.ChatAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if p.EmbedAPIKey == "" && p.EmbedProvider == "openai" {
		p.EmbedAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if p.OllamaHost == "" {
		p.OllamaHost = os.Getenv("OLLAMA_HOST")
	}
}

// Validate checks enumerations and fills derived paths.
func (p *Profile) Validate() error {
	if err := oneOf("driver", p.Driver, "json", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("log-format", p.LogFormat, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("embed-provider", p.EmbedProvider, "auto", "hash", "ollama", "openai"); err != nil {
		return err
	}
	if err := oneOf("index", p.IndexBackend, "flat", "chromem"); err != nil {
		return err
	}
	if err := oneOf("provider", p.ChatProvider, "ollama", "openai", "groq", "anthropic", "gemini"); err != nil {
		return err
	}
	if err := oneOf("runtime", p.Runtime, "cli", "api"); err != nil {
		return err
	}
	if p.TopK < 0 {
		return errors.Errorf("top-k must not be negative, got %d", p.TopK)
	}
	if p.Threshold != nil && (*p.Threshold < -1 || *p.Threshold > 1) {
		return errors.Errorf("threshold must be between -1 and 1, got %g", *p.Threshold)
	}

	data, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = data
	if p.StorePath == "" {
		name := "memory.json"
		if p.Driver == "sqlite" {
			name = "memory.db"
		}
		p.StorePath = filepath.Join(p.Data, name)
	}
	if p.FeedbackLog == "" {
		p.FeedbackLog = filepath.Join(p.Data, "feedback.log")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog.
func (p *Profile) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return l
}

func dataDir(v *viper.Viper) string {
	if d := v.GetString("data"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memvault"
	}
	return filepath.Join(home, ".memvault")
}

func checkDataDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "unable to resolve data folder %s", dir)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", abs)
	}
	return abs, nil
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return errors.Errorf("invalid %s %q (use %s)", key, val, strings.Join(allowed, ", "))
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var secs int
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil {
		return 0, errors.Errorf("cannot parse %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
