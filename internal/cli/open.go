package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/chat"
	"github.com/rcliao/memvault/internal/embedding"
	"github.com/rcliao/memvault/internal/feedback"
	"github.com/rcliao/memvault/internal/index"
	"github.com/rcliao/memvault/internal/lifecycle"
	"github.com/rcliao/memvault/internal/session"
	"github.com/rcliao/memvault/internal/store"
	"github.com/rcliao/memvault/internal/vault"
)

const (
	passphraseEnv  = "MEMVAULT_PASSPHRASE"
	unlockAttempts = 3
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassphrase resolves a passphrase from file, then the environment, then
// a no-echo terminal prompt.
func readPassphrase(prompt, file string) ([]byte, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read passphrase file: %w", err)
		}
		return bytes.TrimRight(b, "\r\n"), nil
	}
	if env := os.Getenv(passphraseEnv); env != "" {
		return []byte(env), nil
	}
	if !stdinIsTerminal() {
		return nil, fmt.Errorf("a passphrase is required: use --passphrase-file or %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return b, nil
}

// promptedInteractively reports whether readPassphrase would ask the terminal.
func promptedInteractively(file string) bool {
	return file == "" && os.Getenv(passphraseEnv) == "" && stdinIsTerminal()
}

// unlockVault opens the key file next to storePath. It returns nil when the
// store is plaintext. A wrong passphrase typed at the terminal is re-prompted.
func unlockVault(storePath, passphraseFile string, required bool) (*vault.Vault, error) {
	keyPath := vault.KeyPath(storePath)
	if !vault.Exists(keyPath) {
		if required {
			return nil, apperr.Ef(apperr.KindNotFound, "vault", "no key file at %s; run `memvault vault init`", keyPath)
		}
		return nil, nil
	}

	if hint := pendingRekeyHint(keyPath); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}

	for attempt := 1; ; attempt++ {
		pass, err := readPassphrase("Passphrase: ", passphraseFile)
		if err != nil {
			return nil, err
		}
		v, err := vault.Unlock(keyPath, pass)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, apperr.ErrAuthentication) || !promptedInteractively(passphraseFile) || attempt == unlockAttempts {
			return nil, err
		}
		fmt.Fprintln(os.Stderr, "wrong passphrase, try again")
	}
}

// pendingKeyPath is where vault rekey writes the new key file before it
// replaces the old one.
func pendingKeyPath(keyPath string) string { return keyPath + ".new" }

// pendingRekeyHint reports a key file left behind by an interrupted rekey.
func pendingRekeyHint(keyPath string) string {
	pending := pendingKeyPath(keyPath)
	if _, err := os.Stat(pending); err != nil {
		return ""
	}
	return fmt.Sprintf("warning: %s was left by an interrupted `vault rekey`.\n"+
		"If the store no longer unlocks with the old passphrase, it was re-encrypted: move %s over %s and use the new passphrase.",
		pending, pending, keyPath)
}

// openStore opens the configured store, unlocking it first when a key file
// exists.
func openStore() (store.Store, *vault.Vault, error) {
	v, err := unlockVault(profile.StorePath, profile.PassphraseFile, profile.Encrypted)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(store.Options{Driver: profile.Driver, Path: profile.StorePath, Vault: v})
	if err != nil {
		return nil, nil, err
	}
	return s, v, nil
}

// openOther opens a second store at path, unlocking it with its own
// passphrase. The driver follows the file extension.
func openOther(path, passphraseFile string) (store.Store, error) {
	v, err := unlockVault(path, passphraseFile, false)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Options{Driver: driverFor(path), Path: path, Vault: v})
}

func driverFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return store.DriverSQLite
	default:
		return store.DriverJSON
	}
}

func newManager() (*lifecycle.Manager, error) {
	var rt lifecycle.Runtime
	switch profile.Runtime {
	case "api":
		api, err := lifecycle.NewAPIRuntime(profile.OllamaHost, nil)
		if err != nil {
			return nil, err
		}
		rt = api
	default:
		rt = &lifecycle.CLIRuntime{Bin: profile.OllamaBin}
	}

	var reg lifecycle.Registry
	if profile.RegistryURL != "" {
		reg = lifecycle.NewHTTPRegistry(profile.RegistryURL)
	}
	return lifecycle.NewManager(rt, reg, nil), nil
}

func newEmbedder() (embedding.Embedder, error) {
	url := profile.EmbedURL
	if url == "" && (profile.EmbedProvider == embedding.ProviderOllama || profile.EmbedProvider == embedding.ProviderAuto) {
		url = profile.OllamaHost
	}
	return embedding.New(embedding.Config{
		Provider:  profile.EmbedProvider,
		Model:     profile.EmbedModel,
		URL:       url,
		APIKey:    profile.EmbedAPIKey,
		CacheSize: profile.EmbedCache,
	})
}

// newCompleter builds the chat provider. For Ollama the model follows the
// manager's active slot, falling back to the configured model.
func newCompleter(mgr *lifecycle.Manager) (chat.Completer, error) {
	url := profile.ChatURL
	if url == "" && profile.ChatProvider == chat.ProviderOllama {
		url = profile.OllamaHost
	}
	active := func() string {
		if mgr != nil {
			if name, state := mgr.Active(); state != lifecycle.Unselected {
				return name
			}
		}
		return profile.Model
	}
	return chat.New(chat.Config{
		Provider:  profile.ChatProvider,
		Model:     profile.Model,
		URL:       url,
		APIKey:    profile.ChatAPIKey,
		MaxTokens: profile.MaxTokens,
	}, active)
}

// openSession wires a session over s and loads it. mgr may be nil for
// commands that never call a model.
func openSession(ctx context.Context, s store.Store, mgr *lifecycle.Manager, withChat bool) (*session.Session, error) {
	emb, err := newEmbedder()
	if err != nil {
		return nil, err
	}
	idx, err := index.New(profile.IndexBackend, emb, nil)
	if err != nil {
		return nil, err
	}

	deps := session.Deps{
		Store:   s,
		Index:   idx,
		TopK:    profile.TopK,
		Budget:  profile.Budget,
		Timeout: profile.Timeout,
	}
	if withChat {
		c, err := newCompleter(mgr)
		if err != nil {
			return nil, err
		}
		deps.Completer = c
		deps.Journal = feedback.NewJournal(profile.FeedbackLog)
	}

	sess := session.New(deps)
	if err := sess.Open(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// progressPrinter writes runtime progress lines to stderr.
func progressPrinter() func(string) {
	last := time.Time{}
	return func(line string) {
		if time.Since(last) < 100*time.Millisecond {
			return
		}
		last = time.Now()
		fmt.Fprintf(os.Stderr, "\r%s", line)
	}
}
