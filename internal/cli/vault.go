package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/store"
	"github.com/rcliao/memvault/internal/vault"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage store encryption",
}

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Encrypt the store with a passphrase",
		Long: "Create a key file next to the store and re-encrypt every existing entry. " +
			"The passphrase is never stored; losing it loses the memories.",
		Args: cobra.NoArgs,
		Run:  runVaultInit,
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Verify the passphrase and that every entry decrypts",
		Args:  cobra.NoArgs,
		Run:   runVaultCheck,
	}
	rekey := &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt the store under a new passphrase",
		Args:  cobra.NoArgs,
		Run:   runVaultRekey,
	}
	rekey.Flags().String("new-passphrase-file", "", "Read the new passphrase from a file")

	vaultCmd.AddCommand(initCmd, check, rekey)
	RootCmd.AddCommand(vaultCmd)
}

// newPassphrase reads a passphrase for a new key, asking twice at a terminal.
func newPassphrase(file string) ([]byte, error) {
	interactive := promptedInteractively(file)
	pass, err := readPassphrase("New passphrase: ", file)
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if interactive {
		again, err := readPassphrase("Repeat passphrase: ", file)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(pass, again) {
			return nil, fmt.Errorf("passphrases do not match")
		}
	}
	return pass, nil
}

// rewriteWith re-opens the store under v and replaces its content.
func rewriteWith(ctx context.Context, v *vault.Vault, entries []model.Entry) error {
	s, err := store.Open(store.Options{Driver: profile.Driver, Path: profile.StorePath, Vault: v})
	if err != nil {
		return err
	}
	defer s.Close()

	rw, ok := s.(store.Rewriter)
	if !ok {
		return fmt.Errorf("store driver %q cannot be re-encrypted", profile.Driver)
	}
	return rw.Rewrite(ctx, entries)
}

func runVaultInit(cmd *cobra.Command, args []string) {
	keyPath := vault.KeyPath(profile.StorePath)
	if vault.Exists(keyPath) {
		exitErr("vault init", fmt.Errorf("store is already encrypted (%s)", keyPath))
	}

	s, err := store.Open(store.Options{Driver: profile.Driver, Path: profile.StorePath})
	if err != nil {
		exitErr("open store", err)
	}
	entries, err := s.LoadAll(cmd.Context())
	s.Close()
	if err != nil {
		exitErr("load memory", err)
	}

	pass, err := newPassphrase(profile.PassphraseFile)
	if err != nil {
		exitErr("vault init", err)
	}
	v, err := vault.Create(keyPath, pass, vault.DefaultKDFParams)
	if err != nil {
		exitErr("vault init", err)
	}
	if err := rewriteWith(cmd.Context(), v, entries); err != nil {
		exitErr("encrypt store", err)
	}

	fmt.Printf(`{"ok":true,"encrypted":%d,"key_file":%q}`+"\n", len(entries), keyPath)
}

func runVaultCheck(cmd *cobra.Command, args []string) {
	v, err := unlockVault(profile.StorePath, profile.PassphraseFile, true)
	if err != nil {
		exitErr("vault check", err)
	}
	s, err := store.Open(store.Options{Driver: profile.Driver, Path: profile.StorePath, Vault: v})
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.LoadAll(cmd.Context())
	if err != nil {
		exitErr("vault check", err)
	}
	fmt.Printf(`{"ok":true,"entries":%d}`+"\n", len(entries))
}

func runVaultRekey(cmd *cobra.Command, args []string) {
	newFile, _ := cmd.Flags().GetString("new-passphrase-file")
	keyPath := vault.KeyPath(profile.StorePath)

	old, err := unlockVault(profile.StorePath, profile.PassphraseFile, true)
	if err != nil {
		exitErr("vault rekey", err)
	}
	s, err := store.Open(store.Options{Driver: profile.Driver, Path: profile.StorePath, Vault: old})
	if err != nil {
		exitErr("open store", err)
	}
	entries, err := s.LoadAll(cmd.Context())
	s.Close()
	if err != nil {
		exitErr("load memory", err)
	}

	pass, err := newPassphrase(newFile)
	if err != nil {
		exitErr("vault rekey", err)
	}
	pending := pendingKeyPath(keyPath)
	_ = os.Remove(pending)
	v, err := vault.Create(pending, pass, vault.DefaultKDFParams)
	if err != nil {
		exitErr("vault rekey", err)
	}
	if err := rewriteWith(cmd.Context(), v, entries); err != nil {
		os.Remove(pending)
		exitErr("re-encrypt store", err)
	}
	if err := os.Rename(pending, keyPath); err != nil {
		exitErr("replace key file", err)
	}

	fmt.Printf(`{"ok":true,"entries":%d}`+"\n", len(entries))
}
