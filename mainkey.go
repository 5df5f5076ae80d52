package vault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/sigilmail/vault-go/internal/sealed"
)

// MainKey is the process-wide secret gating every sealed container.
type MainKey []byte

// mainKeyPrefix namespaces wrapped-main-key blobs in the backend.
const mainKeyPrefix = "mainkey."

// saltSize is the size of the per-protector KDF salt in bytes.
const saltSize = 16

// Argon2id parameters for the PIN protector.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Protector produces the key-encryption-key that wraps the main key.
// Unlocking with the wrong protector is an expected outcome: it yields no
// key, not an error.
type Protector interface {
	// Name identifies the protector slot ("pin", "biometric", "random").
	Name() string

	// KEK derives the key-encryption-key for the given salt.
	KEK(salt []byte) ([]byte, error)
}

// PINProtector derives its KEK from a user PIN with Argon2id.
type PINProtector struct {
	pin []byte
}

// NewPINProtector creates a protector over the given PIN.
func NewPINProtector(pin string) *PINProtector {
	return &PINProtector{pin: []byte(pin)}
}

// Name returns "pin".
func (p *PINProtector) Name() string { return "pin" }

// KEK derives the key-encryption-key from the PIN and salt.
func (p *PINProtector) KEK(salt []byte) ([]byte, error) {
	if len(salt) != saltSize {
		return nil, fmt.Errorf("pin protector: bad salt size %d", len(salt))
	}
	return argon2.IDKey(p.pin, salt, argonTime, argonMemory, argonThreads, sealed.KeySize), nil
}

// RandomProtector keeps a random KEK in the backend so the main key can be
// unlocked without user interaction. It provides availability, not
// confidentiality, and is only enrolled while at least one account exists.
type RandomProtector struct {
	backend Backend
}

// NewRandomProtector creates a random protector persisting its KEK in backend.
func NewRandomProtector(backend Backend) *RandomProtector {
	return &RandomProtector{backend: backend}
}

// Name returns "random".
func (p *RandomProtector) Name() string { return "random" }

// randomKEKBlob is the backend name holding the random protector's KEK.
const randomKEKBlob = "protector.random.kek"

// KEK loads the stored KEK, generating and persisting one on first use.
func (p *RandomProtector) KEK(salt []byte) ([]byte, error) {
	kek, err := p.backend.Get(randomKEKBlob)
	if err == nil {
		return kek, nil
	}
	if !sealed.IsAbsent(err) {
		return nil, err
	}

	kek = make([]byte, sealed.KeySize)
	if _, err := rand.Read(kek); err != nil {
		return nil, fmt.Errorf("generate random KEK: %w", err)
	}
	if err := p.backend.Set(randomKEKBlob, kek); err != nil {
		return nil, err
	}
	return kek, nil
}

// wrappedKey is the persisted form of the main key under one protector.
type wrappedKey struct {
	Salt    []byte `json:"salt"`
	Wrapped []byte `json:"wrapped"`
}

// MainKeyProvider owns the process-wide main key: generation, unlock via a
// protector, and wipe. It performs no network calls; this is purely local
// cryptographic state.
type MainKeyProvider struct {
	mu      sync.Mutex
	backend Backend
	key     MainKey
}

// NewMainKeyProvider creates a provider persisting wrapped keys in backend.
func NewMainKeyProvider(backend Backend) *MainKeyProvider {
	return &MainKeyProvider{backend: backend}
}

// Generate creates a fresh random main key, wraps it under the protector
// and persists the wrapping. The unlocked key is retained in memory.
func (p *MainKeyProvider) Generate(prot Protector) (MainKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := make(MainKey, sealed.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate main key: %w", err)
	}

	if err := p.wrapLocked(key, prot); err != nil {
		return nil, err
	}

	p.key = key
	return key, nil
}

// Enroll wraps the currently unlocked main key under an additional
// protector so either protector can unlock it later.
func (p *MainKeyProvider) Enroll(prot Protector) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		return ErrMainKeyAbsent
	}
	return p.wrapLocked(p.key, prot)
}

func (p *MainKeyProvider) wrapLocked(key MainKey, prot Protector) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	kek, err := prot.KEK(salt)
	if err != nil {
		return err
	}

	wrapped, err := sealed.Encrypt(kek, key)
	if err != nil {
		return fmt.Errorf("wrap main key: %w", err)
	}

	data, err := json.Marshal(wrappedKey{Salt: salt, Wrapped: wrapped})
	if err != nil {
		return err
	}
	return p.backend.Set(mainKeyPrefix+prot.Name(), data)
}

// Unlock opens the wrapped main key with the protector. A wrong protector
// or an absent wrapping returns (nil, nil): both are expected outcomes,
// not faults. Unlock is deterministic for a given protector.
func (p *MainKeyProvider) Unlock(prot Protector) (MainKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.backend.Get(mainKeyPrefix + prot.Name())
	if err != nil {
		if sealed.IsAbsent(err) {
			return nil, nil
		}
		return nil, err
	}

	var wk wrappedKey
	if err := json.Unmarshal(data, &wk); err != nil {
		return nil, fmt.Errorf("decode wrapped main key: %w", err)
	}

	kek, err := prot.KEK(wk.Salt)
	if err != nil {
		return nil, err
	}

	key, err := sealed.Decrypt(kek, wk.Wrapped)
	if err != nil {
		// Wrong protector: fail closed without surfacing an error.
		return nil, nil
	}

	p.key = MainKey(key)
	return p.key, nil
}

// Current returns the in-memory unlocked key, if any.
func (p *MainKeyProvider) Current() (MainKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return nil, false
	}
	return p.key, true
}

// IsAvailable reports whether a wrapped main key exists for any protector.
func (p *MainKeyProvider) IsAvailable() bool {
	names, err := p.backend.Names()
	if err != nil {
		return false
	}
	for _, name := range names {
		if strings.HasPrefix(name, mainKeyPrefix) {
			return true
		}
	}
	return false
}

// Wipe destroys the main key: every wrapping and the random protector KEK
// are deleted and the in-memory copy is zeroed. All previously sealed
// containers become permanently unopenable; this is how full logout is
// cryptographically enforced rather than merely deleting rows.
func (p *MainKeyProvider) Wipe() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names, err := p.backend.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.HasPrefix(name, mainKeyPrefix) || name == randomKEKBlob {
			if err := p.backend.Delete(name); err != nil {
				return err
			}
		}
	}

	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
	return nil
}
