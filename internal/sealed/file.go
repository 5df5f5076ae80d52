package sealed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// blobExt is the file extension for sealed blobs on disk.
const blobExt = ".sealed"

// FileBackend stores sealed blobs as individual files in a directory.
// Files are written with 0600 permissions and replaced atomically so a
// crash mid-write never leaves a half-written blob behind.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileBackend creates a file backend rooted at dir, creating the
// directory if necessary.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(name string) string {
	return filepath.Join(f.dir, name+blobExt)
}

// Get returns the raw sealed bytes for name, or ErrAbsent.
func (f *FileBackend) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// Set stores the raw sealed bytes for name. The blob is written to a
// temporary file first and renamed into place.
func (f *FileBackend) Set(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	if err := os.Rename(tmp, f.path(name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit blob %s: %w", name, err)
	}
	return nil
}

// Delete removes the blob for name. Deleting an absent blob is a no-op.
func (f *FileBackend) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// Names lists the blob names currently stored.
func (f *FileBackend) Names() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), blobExt))
	}
	return names, nil
}
