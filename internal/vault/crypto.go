// Package vault provides the AES-GCM sealing used for lead snapshots at rest
// and the self-signed certificate used when the daemon serves TLS.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Magic prefixes every sealed snapshot so plain JSON files can be told apart.
var Magic = []byte("CLXV1")

var (
	ErrNotSealed = errors.New("vault: data is not sealed")
	ErrTampered  = errors.New("vault: decryption failed (wrong key or tampered data)")
)

// Seal encrypts plaintext with a 32-byte key. Output is Magic, nonce, ciphertext.
func Seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: read nonce: %w", err)
	}

	out := make([]byte, 0, len(Magic)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, Magic...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, Magic), nil
}

// Open reverses Seal.
func Open(sealed, key []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body := sealed[len(Magic):]
	if len(body) < gcm.NonceSize() {
		return nil, fmt.Errorf("vault: ciphertext too short")
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, Magic)
	if err != nil {
		return nil, ErrTampered
	}
	return plaintext, nil
}

// IsSealed reports whether b carries the Seal header.
func IsSealed(b []byte) bool {
	return len(b) >= len(Magic) && string(b[:len(Magic)]) == string(Magic)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return cipher.NewGCM(block)
}
