package vault

import (
	"sync"

	"github.com/sigilmail/vault-go/internal/sealed"
)

// EncryptionKit is the session-scoped key pair cached solely for
// decrypting push notification payloads. Its lifecycle is independent of
// the primary account key ring: it is created when the client registers
// for remote notifications and invalidated when the server rotates it.
type EncryptionKit struct {
	SessionID  string `json:"sessionId"`
	PrivateKey string `json:"privateKey"`
	Passphrase []byte `json:"passphrase"`
}

// Sealed blob names for the push credential cache.
const (
	// pushKitsBlob holds the current multi-kit map, keyed by session id.
	pushKitsBlob = "pushkits"
	// legacyKitBlob holds the single kit written by older releases.
	legacyKitBlob = "pushkit.legacy"
)

// PushCredentialCache stores encryption kits keyed by session id. Kits are
// keyed by session id rather than user id because a session can be
// re-issued a new id across re-auth while the kit rotates independently.
//
// Reads merge the current multi-kit store with the legacy single-kit
// store; absence of either is not an error, it just means the push cannot
// be decrypted and generic content is shown instead.
type PushCredentialCache struct {
	mu      sync.Mutex
	current *sealed.Container[map[string]EncryptionKit]
	legacy  *sealed.Container[EncryptionKit]
	keys    *MainKeyProvider
}

// NewPushCredentialCache creates a cache sealing kits through backend
// under the provider's main key.
func NewPushCredentialCache(backend Backend, keys *MainKeyProvider) *PushCredentialCache {
	return &PushCredentialCache{
		current: sealed.NewContainer[map[string]EncryptionKit](backend, pushKitsBlob),
		legacy:  sealed.NewContainer[EncryptionKit](backend, legacyKitBlob),
		keys:    keys,
	}
}

// loadCurrent returns the current kit map. Absent means empty.
func (c *PushCredentialCache) loadCurrent(key MainKey) (map[string]EncryptionKit, error) {
	kits, err := c.current.Unseal([]byte(key))
	if err != nil {
		if sealed.IsAbsent(err) {
			return map[string]EncryptionKit{}, nil
		}
		return nil, wrapSealedError(pushKitsBlob, err)
	}
	return kits, nil
}

// Store saves or replaces the kit for its session id.
func (c *PushCredentialCache) Store(kit EncryptionKit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	kits, err := c.loadCurrent(key)
	if err != nil {
		return err
	}
	kits[kit.SessionID] = kit
	return c.current.Seal(kits, []byte(key))
}

// DecryptionKeys returns the cached decryption keys for a session id,
// merging the current store with the legacy single-kit fallback. Absence
// of both yields an empty, non-erroring result.
func (c *PushCredentialCache) DecryptionKeys(sessionID string) ([]DecryptionKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keys.Current()
	if !ok {
		return nil, nil
	}

	var out []DecryptionKey

	kits, err := c.loadCurrent(key)
	if err != nil {
		return nil, err
	}
	if kit, ok := kits[sessionID]; ok {
		out = append(out, DecryptionKey{PrivateKey: kit.PrivateKey, Passphrase: kit.Passphrase})
	}

	// Legacy fallback appended after the current kit so newer material
	// is always tried first.
	legacy, err := c.legacy.Unseal([]byte(key))
	if err == nil && legacy.SessionID == sessionID {
		out = append(out, DecryptionKey{PrivateKey: legacy.PrivateKey, Passphrase: legacy.Passphrase})
	} else if err != nil && !sealed.IsAbsent(err) {
		return nil, wrapSealedError(legacyKitBlob, err)
	}

	return out, nil
}

// Invalidate removes the kit for a session id from both stores. It is
// called when the server revokes or rotates the kit and on logout.
func (c *PushCredentialCache) Invalidate(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	kits, err := c.loadCurrent(key)
	if err != nil {
		return err
	}
	if _, ok := kits[sessionID]; ok {
		delete(kits, sessionID)
		if err := c.current.Seal(kits, []byte(key)); err != nil {
			return err
		}
	}

	legacy, err := c.legacy.Unseal([]byte(key))
	if err == nil && legacy.SessionID == sessionID {
		return c.legacy.Clear()
	}
	return nil
}

// MigrateLegacyKits moves the legacy single kit into the current store
// and deletes the legacy blob. It is a one-time data-moving operation;
// running it again is a no-op.
func (c *PushCredentialCache) MigrateLegacyKits() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	legacy, err := c.legacy.Unseal([]byte(key))
	if err != nil {
		if sealed.IsAbsent(err) {
			return nil
		}
		return wrapSealedError(legacyKitBlob, err)
	}

	kits, err := c.loadCurrent(key)
	if err != nil {
		return err
	}
	// An already-registered current kit wins over the legacy one.
	if _, ok := kits[legacy.SessionID]; !ok {
		kits[legacy.SessionID] = legacy
		if err := c.current.Seal(kits, []byte(key)); err != nil {
			return err
		}
	}
	return c.legacy.Clear()
}

// Clear removes every cached kit from both stores.
func (c *PushCredentialCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.current.Clear(); err != nil {
		return err
	}
	return c.legacy.Clear()
}
