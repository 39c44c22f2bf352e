package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// encryptor seals and opens payloads with AES-256-GCM. A nil encryptor
// passes data through unchanged.
type encryptor struct {
	aead cipher.AEAD
}

// newEncryptor creates an encryptor from a 32-byte key. An empty key
// disables encryption.
func newEncryptor(key []byte) (*encryptor, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{aead: aead}, nil
}

// seal encrypts data, prepending the nonce.
func (e *encryptor) seal(data []byte) ([]byte, error) {
	if e == nil {
		return data, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// open decrypts data produced by seal.
func (e *encryptor) open(data []byte) ([]byte, error) {
	if e == nil {
		return data, nil
	}

	if len(data) < e.aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, ciphertext := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
