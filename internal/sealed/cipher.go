package sealed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of the main key and of derived blob keys in bytes.
	KeySize = 32
	// NonceSize is the size of an AES-GCM nonce in bytes.
	NonceSize = 12
	// TagSize is the size of an AES-GCM authentication tag in bytes.
	TagSize = 16

	// kdfContext is the HKDF domain-separation prefix. Each blob name is
	// appended so credentials, profiles and settings never share a key.
	kdfContext = "sigilmail:sealed:v1:"
)

// deriveBlobKey derives the per-blob AES key from the main key using
// HKDF-SHA-512 with the blob name bound into the info string.
func deriveBlobKey(mainKey []byte, name string) ([]byte, error) {
	if len(mainKey) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(mainKey), KeySize)
	}

	reader := hkdf.New(sha512.New, mainKey, nil, []byte(kdfContext+name))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive blob key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under key.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt decrypts data produced by Encrypt. A wrong key or tampered
// ciphertext yields ErrKeyMismatch; no partial plaintext is returned.
func Decrypt(key, data []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), KeySize)
	}
	if len(data) < NonceSize+TagSize {
		return nil, ErrCorrupt
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrKeyMismatch
	}
	return plaintext, nil
}
