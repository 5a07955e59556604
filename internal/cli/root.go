// Package cli implements the memvault CLI commands.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/config"
)

var (
	cfgFile string
	profile *config.Profile
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Local-first conversational memory",
	Long: "Chat with a local or hosted model that remembers past conversations. " +
		"Memories stay in a single file on your machine, optionally encrypted.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		v := viper.GetViper()
		config.BindEnv(v)
		if err := config.ReadConfigFile(v, cfgFile); err != nil {
			return err
		}
		p, err := config.Load(v)
		if err != nil {
			return err
		}
		profile = p
		slog.SetDefault(newLogger(p))
		return nil
	},
}

func init() {
	config.SetDefaults(viper.GetViper())

	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: <data>/memvault.yaml)")
	pf.String("data", "", "Data directory (default: $MEMVAULT_DATA or ~/.memvault)")
	pf.String("store", "", "Memory store path (default: <data>/memory.json or memory.db)")
	pf.String("driver", "json", "Store driver: json or sqlite")
	pf.Bool("encrypted", false, "Require an encrypted store")
	pf.String("passphrase-file", "", "Read the passphrase from a file")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("provider", "ollama", "Chat provider: ollama, openai, groq, anthropic or gemini")
	pf.StringP("model", "m", "tinyllama", "Chat model")
	pf.String("threshold", "", "Minimum similarity for retrieved memories (-1..1)")
	pf.IntP("top-k", "k", 5, "Memories retrieved per query")
	pf.String("embed-provider", "auto", "Embedding provider: auto, hash, ollama or openai (hash matches shared words only)")
	pf.String("index", "flat", "Index backend: flat or chromem")
	pf.String("runtime", "cli", "Model runtime: cli (ollama binary) or api (ollama server)")
	pf.String("ollama-host", "", "Ollama server URL (default: $OLLAMA_HOST or http://127.0.0.1:11434)")
	pf.String("registry", "https://registry.ollama.ai", "Model registry for update checks (empty: off)")

	for _, name := range []string{
		"data", "store", "driver", "encrypted", "passphrase-file", "log-level", "log-format",
		"provider", "model", "threshold", "top-k", "embed-provider", "index",
		"runtime", "ollama-host", "registry",
	} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func newLogger(p *config.Profile) *slog.Logger {
	opts := &slog.HandlerOptions{Level: p.SlogLevel()}
	if p.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	switch {
	case errors.Is(err, apperr.ErrAuthentication):
		fmt.Fprintln(os.Stderr, "hint: check the passphrase (--passphrase-file or MEMVAULT_PASSPHRASE) and try again")
	case errors.Is(err, apperr.ErrSchemaUpgrade):
		fmt.Fprintln(os.Stderr, "hint: run `memvault migrate` to upgrade the store")
	case errors.Is(err, apperr.ErrRuntimeMissing):
		fmt.Fprintln(os.Stderr, "hint: install ollama from https://ollama.com or use --runtime api")
	}
	os.Exit(1)
}
