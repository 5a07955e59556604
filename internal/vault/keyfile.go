package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/fsutil"
)

const (
	keyFileVersion = 1
	keyFilePerm    = 0o600
	checkPlaintext = "memvault-key-check-v1"
)

// KeyFile is the persisted salt and verification artifact. It never holds
// the key itself.
type KeyFile struct {
	Version int    `json:"version"`
	KDF     string `json:"kdf"`
	KDFParams
	Salt  []byte `json:"salt"`
	Check []byte `json:"check"`
}

// KeyPath returns the key-check file path that sits next to a store.
func KeyPath(storePath string) string {
	return storePath + ".key"
}

// Exists reports whether a key-check file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create derives a key for passphrase with a fresh salt, writes the key-check
// file and returns the unlocked vault. An existing file is never overwritten.
func Create(path string, passphrase []byte, params KDFParams) (*Vault, error) {
	if Exists(path) {
		return nil, fmt.Errorf("key file already exists: %s", path)
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	check, err := Seal([]byte(checkPlaintext), key)
	if err != nil {
		return nil, err
	}

	kf := KeyFile{
		Version:   keyFileVersion,
		KDF:       "scrypt",
		KDFParams: params,
		Salt:      salt,
		Check:     check,
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(path, b, keyFilePerm); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return New(key)
}

// Unlock re-derives the key from passphrase and the stored salt and verifies
// it against the check value. A mismatch is an authentication error, never
// a corrupted store.
func Unlock(path string, passphrase []byte) (*Vault, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.E(apperr.KindNotFound, "vault.Unlock", "key file not found: "+path, nil)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, apperr.E(apperr.KindStoreCorruption, "vault.Unlock", "unreadable key file", err)
	}
	if kf.Version != keyFileVersion || kf.KDF != "scrypt" {
		return nil, apperr.Ef(apperr.KindStoreCorruption, "vault.Unlock", "unsupported key file version %d (%s)", kf.Version, kf.KDF)
	}

	key, err := DeriveKey(passphrase, kf.Salt, kf.KDFParams)
	if err != nil {
		return nil, err
	}
	got, err := Open(kf.Check, key)
	if err != nil || !bytes.Equal(got, []byte(checkPlaintext)) {
		return nil, apperr.E(apperr.KindAuthentication, "vault.Unlock", "wrong passphrase", nil)
	}
	return New(key)
}
