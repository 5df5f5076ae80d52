package sealed

// Backend is the durable key-value store a Container writes sealed blobs
// through. Implementations must be safe for concurrent use: the registry
// process and the notification extension may both hold a backend over the
// same underlying storage.
type Backend interface {
	// Get returns the raw sealed bytes for name, or ErrAbsent.
	Get(name string) ([]byte, error)

	// Set stores the raw sealed bytes for name, replacing any previous value.
	Set(name string, data []byte) error

	// Delete removes the blob for name. Deleting an absent blob is a no-op.
	Delete(name string) error

	// Names lists the blob names currently stored.
	Names() ([]string, error)
}

// Wipe removes every blob from the backend. It is used by the full
// teardown path after the main key has been destroyed.
func Wipe(b Backend) error {
	names, err := b.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := b.Delete(name); err != nil {
			return err
		}
	}
	return nil
}
