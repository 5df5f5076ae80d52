package vault

import "github.com/sigilmail/vault-go/internal/sealed"

// Backend is the durable key-value store every sealed blob is written
// through. Two implementations exist: a file store for durable state and
// an in-memory store for tests and disk-free configurations. Both must
// be safe for concurrent use; the registry process and the notification
// extension may hold backends over the same underlying storage.
type Backend interface {
	// Get returns the raw sealed bytes for name, or an absent error.
	Get(name string) ([]byte, error)

	// Set stores the raw sealed bytes for name, replacing any previous value.
	Set(name string, data []byte) error

	// Delete removes the blob for name. Deleting an absent blob is a no-op.
	Delete(name string) error

	// Names lists the blob names currently stored.
	Names() ([]string, error)
}

// NewFileBackend creates a backend storing blobs as 0600 files under dir.
func NewFileBackend(dir string) (Backend, error) {
	return sealed.NewFileBackend(dir)
}

// NewMemoryBackend creates an in-memory backend.
func NewMemoryBackend() Backend {
	return sealed.NewMemoryBackend()
}
