// Package secret seals values such as API keys before they are written to
// the settings table. Sealed values can only be opened with the same key,
// which by default is derived from the current machine and user.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Prefix marks a sealed value.
const Prefix = "sealed:v1:"

// KeyEnv overrides the machine-derived key when set.
const KeyEnv = "MNEMO_SECRET_KEY"

var (
	ErrOpenFailed = errors.New("cannot open sealed value")
	ErrMalformed  = errors.New("malformed sealed value")
)

// Box seals and opens values with AES-256-GCM.
type Box struct {
	aead cipher.AEAD
}

// NewBox returns a box keyed from $MNEMO_SECRET_KEY, or from machine
// identifiers when the variable is unset.
func NewBox() (*Box, error) {
	if pass := os.Getenv(KeyEnv); pass != "" {
		return NewBoxWithPassphrase(pass)
	}
	return NewBoxWithPassphrase(machineFingerprint())
}

// NewBoxWithPassphrase returns a box keyed by the SHA-256 of passphrase.
func NewBoxWithPassphrase(passphrase string) (*Box, error) {
	key := sha256.Sum256([]byte("mnemo-secret-box-v1\x00" + passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext. The empty string stays empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(Prefix))
	return Prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix are returned as-is,
// so settings written in plain text keep working.
func (b *Box) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := b.aead.NonceSize()
	if len(raw) < n+b.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, raw[:n], raw[n:], []byte(Prefix))
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Mask hides all but the ends of a secret for display.
func Mask(value string) string {
	r := []rune(value)
	if len(r) <= 8 {
		return "****"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

func machineFingerprint() string {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	parts := []string{host, home, runtime.GOOS, runtime.GOARCH, strconv.Itoa(os.Getuid()), os.Getenv("USER")}
	return strings.Join(parts, "|")
}
