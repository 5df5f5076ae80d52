package sealed

import "sync"

// MemoryBackend is an in-memory Backend. It is used in tests and in
// configurations where nothing may touch disk.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

// Get returns the raw sealed bytes for name, or ErrAbsent.
func (m *MemoryBackend) Get(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, ErrAbsent
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Set stores the raw sealed bytes for name.
func (m *MemoryBackend) Set(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[name] = stored
	return nil
}

// Delete removes the blob for name.
func (m *MemoryBackend) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

// Names lists the blob names currently stored.
func (m *MemoryBackend) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	return names, nil
}
