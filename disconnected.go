package vault

import (
	"sync"

	"github.com/sigilmail/vault-go/internal/sealed"
)

// DisconnectedHandle is the lightweight record of a previously logged-out
// account, kept for fast re-login. Equality is by UserID.
type DisconnectedHandle struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	DefaultEmail string `json:"defaultEmail"`
}

// disconnectedBlob is the sealed blob name for the handle list.
const disconnectedBlob = "disconnected"

// DisconnectedStore persists the list of previously logged-out account
// handles, most recent first. It is persisted independently of the active
// session set.
type DisconnectedStore struct {
	mu        sync.Mutex
	container *sealed.Container[[]DisconnectedHandle]
	keys      *MainKeyProvider
}

// NewDisconnectedStore creates a store sealing handles through backend
// under the provider's main key.
func NewDisconnectedStore(backend Backend, keys *MainKeyProvider) *DisconnectedStore {
	return &DisconnectedStore{
		container: sealed.NewContainer[[]DisconnectedHandle](backend, disconnectedBlob),
		keys:      keys,
	}
}

// load returns the persisted handle list. An absent blob is an empty list.
func (d *DisconnectedStore) load(key MainKey) ([]DisconnectedHandle, error) {
	handles, err := d.container.Unseal([]byte(key))
	if err != nil {
		if sealed.IsAbsent(err) {
			return nil, nil
		}
		return nil, wrapSealedError(disconnectedBlob, err)
	}
	return handles, nil
}

// Add front-inserts a handle, replacing any existing entry for the same
// account, and persists the list.
func (d *DisconnectedStore) Add(handle DisconnectedHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := d.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	handles, err := d.load(key)
	if err != nil {
		return err
	}

	kept := make([]DisconnectedHandle, 0, len(handles)+1)
	kept = append(kept, handle)
	for _, h := range handles {
		if h.UserID != handle.UserID {
			kept = append(kept, h)
		}
	}
	return d.container.Seal(kept, []byte(key))
}

// Remove deletes the handle for userID, if present. It is called when the
// account logs back in.
func (d *DisconnectedStore) Remove(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := d.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	handles, err := d.load(key)
	if err != nil {
		return err
	}

	kept := handles[:0]
	for _, h := range handles {
		if h.UserID != userID {
			kept = append(kept, h)
		}
	}
	if len(kept) == len(handles) {
		return nil
	}
	return d.container.Seal(kept, []byte(key))
}

// List returns the handles, most recently disconnected first. An absent
// blob or unavailable main key yields an empty list.
func (d *DisconnectedStore) List() ([]DisconnectedHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := d.keys.Current()
	if !ok {
		return nil, nil
	}
	return d.load(key)
}

// Clear removes the persisted handle list.
func (d *DisconnectedStore) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.container.Clear()
}
