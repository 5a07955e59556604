// Package vault derives keys from passphrases and encrypts memory content
// at rest with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/rcliao/memvault/internal/apperr"
)

const (
	// KeySize is the derived key length (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// SaltSize is the KDF salt length.
	SaltSize = 32
)

// KDFParams are the scrypt work factors. They are persisted next to the salt
// so a key can be re-derived after defaults change.
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultKDFParams is N=2^15, r=8, p=1.
var DefaultKDFParams = KDFParams{N: 32768, R: 8, P: 1}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a KeySize key from passphrase and salt with scrypt.
// The same inputs always produce the same key.
func DeriveKey(passphrase, salt []byte, p KDFParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt cannot be empty")
	}
	key, err := scrypt.Key(passphrase, salt, p.N, p.R, p.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with key. The output is nonce || ciphertext || tag.
func Seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts the output of Seal. A wrong key, truncated input or any
// tampering fails with an apperr.KindAuthentication error.
func Open(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+gcm.Overhead() {
		return nil, apperr.E(apperr.KindAuthentication, "vault.Open", "ciphertext too short", nil)
	}
	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		// Wrong key and tampered data are indistinguishable here.
		return nil, apperr.E(apperr.KindAuthentication, "vault.Open", "authentication failed or invalid key", nil)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Vault holds a derived key in memory. It is never written to disk.
type Vault struct {
	key []byte
}

// New wraps an already derived key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Vault{key: k}, nil
}

// Encrypt seals b.
func (v *Vault) Encrypt(b []byte) ([]byte, error) { return Seal(b, v.key) }

// Decrypt opens b.
func (v *Vault) Decrypt(b []byte) ([]byte, error) { return Open(b, v.key) }

// EncryptString returns an opaque base64 token for s.
func (v *Vault) EncryptString(s string) (string, error) {
	sealed, err := v.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. A token that is not valid base64 is
// treated the same as one that fails authentication.
func (v *Vault) DecryptString(token string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", apperr.E(apperr.KindAuthentication, "vault.DecryptString", "malformed token", err)
	}
	b, err := v.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
