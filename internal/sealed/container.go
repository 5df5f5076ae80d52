package sealed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Container is a typed sealed envelope over one named blob. Seal encrypts
// a value under the main key and persists it through the backend; Unseal
// reverses it with the same key.
//
// Unseal fails closed: ErrAbsent when no blob exists, ErrKeyMismatch when
// the key does not open the blob, ErrCorrupt when the opened blob does not
// decode. The zero value of T is returned alongside every error.
type Container[T any] struct {
	backend Backend
	name    string
}

// NewContainer creates a container for the named blob on the given backend.
func NewContainer[T any](backend Backend, name string) *Container[T] {
	return &Container[T]{backend: backend, name: name}
}

// Name returns the blob name this container seals.
func (c *Container[T]) Name() string {
	return c.name
}

// Seal serializes value, encrypts it under a key derived from mainKey for
// this blob name, and persists the result.
func (c *Container[T]) Seal(value T, mainKey []byte) error {
	data, err := SealBytes(value, mainKey, c.name)
	if err != nil {
		return err
	}
	return c.backend.Set(c.name, data)
}

// Unseal loads the blob and decrypts it with mainKey.
func (c *Container[T]) Unseal(mainKey []byte) (T, error) {
	var zero T

	data, err := c.backend.Get(c.name)
	if err != nil {
		return zero, err
	}
	return UnsealBytes[T](data, mainKey, c.name)
}

// Exists reports whether a sealed blob is present, without opening it.
func (c *Container[T]) Exists() bool {
	_, err := c.backend.Get(c.name)
	return err == nil
}

// Clear removes the sealed blob. Clearing an absent blob is a no-op.
func (c *Container[T]) Clear() error {
	return c.backend.Delete(c.name)
}

// SealBytes serializes and encrypts value for the named blob without
// touching a backend. Save paths use it to produce every blob before
// committing any of them.
func SealBytes[T any](value T, mainKey []byte, name string) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode blob %s: %w", name, err)
	}

	blobKey, err := deriveBlobKey(mainKey, name)
	if err != nil {
		return nil, err
	}
	return Encrypt(blobKey, plaintext)
}

// UnsealBytes decrypts and decodes a blob produced by SealBytes.
func UnsealBytes[T any](data, mainKey []byte, name string) (T, error) {
	var zero T

	blobKey, err := deriveBlobKey(mainKey, name)
	if err != nil {
		return zero, err
	}

	plaintext, err := Decrypt(blobKey, data)
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return value, nil
}

// IsAbsent reports whether err indicates a missing blob.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsent)
}
