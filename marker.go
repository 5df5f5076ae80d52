package vault

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// ActiveSessionID tags the session id of the primary account. It is the
// one cross-process marker kept in plaintext: the notification extension
// needs it before it can unlock anything, and it reveals no secret.
type ActiveSessionID string

// PrimaryMarker persists which session is primary. The registry writes it
// on every activation; the push pipeline reads it to decide badge rights.
type PrimaryMarker interface {
	Get() (ActiveSessionID, bool)
	Set(id ActiveSessionID) error
	Clear() error
}

// FilePrimaryMarker keeps the marker in a small plaintext file.
type FilePrimaryMarker struct {
	path string
	mu   sync.Mutex
}

// NewFilePrimaryMarker creates a marker stored at path.
func NewFilePrimaryMarker(path string) *FilePrimaryMarker {
	return &FilePrimaryMarker{path: path}
}

// Get returns the recorded primary session id, if any.
func (m *FilePrimaryMarker) Get() (ActiveSessionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", false
	}
	return ActiveSessionID(id), true
}

// Set records id as the primary session.
func (m *FilePrimaryMarker) Set(id ActiveSessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.WriteFile(m.path, []byte(id), 0o600)
}

// Clear removes the marker. Clearing an absent marker is a no-op.
func (m *FilePrimaryMarker) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryPrimaryMarker keeps the marker in memory, for tests and for
// configurations where nothing may touch disk.
type MemoryPrimaryMarker struct {
	mu sync.Mutex
	id ActiveSessionID
}

// NewMemoryPrimaryMarker creates an empty in-memory marker.
func NewMemoryPrimaryMarker() *MemoryPrimaryMarker {
	return &MemoryPrimaryMarker{}
}

// Get returns the recorded primary session id, if any.
func (m *MemoryPrimaryMarker) Get() (ActiveSessionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}

// Set records id as the primary session.
func (m *MemoryPrimaryMarker) Set(id ActiveSessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

// Clear removes the marker.
func (m *MemoryPrimaryMarker) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}
