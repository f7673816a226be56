// Package secretbox encrypts and decrypts ServerCredential secret material
// with a single symmetric master key held by the control plane process.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Box seals and opens secret material under one AES-256-GCM key.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from a 32-byte hex-encoded master key.
func New(masterKeyHex string) (*Box, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext, prefixing the nonce to the returned ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal. The returned slice should be
// zeroed by the caller once the secret is no longer needed.
func (b *Box) Open(ciphertext []byte) ([]byte, error) {
	n := b.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:n], ciphertext[n:]
	plain, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open secret: %w", err)
	}
	return plain, nil
}

// Zero overwrites b in place so a decrypted secret does not linger in
// memory after use.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
