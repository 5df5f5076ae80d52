package vault

import (
	"errors"
	"fmt"

	"github.com/sigilmail/vault-go/internal/sealed"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMainKeyAbsent is returned when an operation needs the main key
	// but it has not been generated or unlocked. This is the expected
	// state at first launch, not a fault.
	ErrMainKeyAbsent = errors.New("main key not available")

	// ErrBlobAbsent is returned when a sealed blob does not exist.
	ErrBlobAbsent = errors.New("sealed blob absent")

	// ErrBlobKeyMismatch is returned when a sealed blob cannot be
	// opened with the current main key.
	ErrBlobKeyMismatch = errors.New("sealed blob key mismatch")

	// ErrBlobCorrupt is returned when a sealed blob opens but does not decode.
	ErrBlobCorrupt = errors.New("sealed blob corrupt")

	// ErrSessionNotFound is returned when no session matches the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLogoutInProgress is returned when a logout is already running
	// for the same account.
	ErrLogoutInProgress = errors.New("logout already in progress")

	// ErrFreeAccountLimit is returned when adding another free account
	// would exceed the free-account cap.
	ErrFreeAccountLimit = errors.New("free account limit reached")

	// ErrNoDecryptionKey is returned when no cached encryption kit
	// exists for a session. This is a recoverable condition: the kit
	// was rotated or never registered.
	ErrNoDecryptionKey = errors.New("no cached decryption key for session")

	// ErrDecryptionFailed is returned when push payload decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKitData is returned when imported encryption-kit data is invalid.
	ErrInvalidKitData = errors.New("invalid encryption kit data")
)

// VaultError is implemented by all vault errors.
type VaultError interface {
	error
	VaultError() // marker method
}

// UnsealError reports a failure to open one of the persisted sealed blobs.
type UnsealError struct {
	Blob string // "credentials", "profiles", "mailsettings", ...
	Err  error
}

func (e *UnsealError) Error() string {
	return fmt.Sprintf("unseal %s: %v", e.Blob, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnsealError) Unwrap() error {
	return e.Err
}

// VaultError implements the VaultError interface.
func (e *UnsealError) VaultError() {}

// KeyDerivationError reports that an address key could not be unlocked by
// any of the supplied user keys. Deriving the rest of the key list
// continues past it.
type KeyDerivationError struct {
	KeyID string
	Err   error
}

func (e *KeyDerivationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("derive passphrase for key %s: %v", e.KeyID, e.Err)
	}
	return fmt.Sprintf("derive passphrase for key %s", e.KeyID)
}

// Unwrap returns the underlying error.
func (e *KeyDerivationError) Unwrap() error {
	return e.Err
}

// VaultError implements the VaultError interface.
func (e *KeyDerivationError) VaultError() {}

// KeyGenerationError reports a crypto engine failure during key generation.
type KeyGenerationError struct {
	Err error
}

func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("generate key pair: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyGenerationError) Unwrap() error {
	return e.Err
}

// VaultError implements the VaultError interface.
func (e *KeyGenerationError) VaultError() {}

// RegistryInvariantError reports inconsistent persisted registry state,
// such as a credential/profile count mismatch on restore.
type RegistryInvariantError struct {
	Reason string
}

func (e *RegistryInvariantError) Error() string {
	return fmt.Sprintf("registry invariant violated: %s", e.Reason)
}

// VaultError implements the VaultError interface.
func (e *RegistryInvariantError) VaultError() {}

// Push pipeline stages, used in PushError.Stage.
const (
	StagePayloadParse   = "payload-parse"
	StageMissingSession = "missing-session"
	StageNoKey          = "no-key"
	StageDecryption     = "decryption"
	StageContentParse   = "content-parse"
)

// PushError reports a failure at one stage of the push decryption
// pipeline. The pipeline always recovers it into generic fallback
// content; it is never surfaced to the user.
type PushError struct {
	Stage string
	Err   error
}

func (e *PushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("push pipeline failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("push pipeline failed at %s", e.Stage)
}

// Unwrap returns the underlying error.
func (e *PushError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *PushError) Is(target error) bool {
	switch e.Stage {
	case StageNoKey:
		return target == ErrNoDecryptionKey
	case StageDecryption:
		return target == ErrDecryptionFailed
	}
	return false
}

// VaultError implements the VaultError interface.
func (e *PushError) VaultError() {}

// wrapSealedError maps internal sealed-store errors to public sentinels
// so that errors.Is() checks work against this package's taxonomy.
func wrapSealedError(blob string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, sealed.ErrAbsent):
		return &UnsealError{Blob: blob, Err: ErrBlobAbsent}
	case errors.Is(err, sealed.ErrKeyMismatch):
		return &UnsealError{Blob: blob, Err: ErrBlobKeyMismatch}
	case errors.Is(err, sealed.ErrCorrupt):
		return &UnsealError{Blob: blob, Err: ErrBlobCorrupt}
	}
	return err
}
