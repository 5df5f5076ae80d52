package vault

import (
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// AddressKey is one armored private key attached to an address. Migrated
// keys carry a Token: the key's passphrase encrypted to the user keys.
// Legacy keys have no token and are locked with the mailbox passphrase
// directly.
type AddressKey struct {
	ID         string `json:"id"`
	PrivateKey string `json:"privateKey"`
	Token      string `json:"token,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// DecryptionKey pairs an armored private key with the passphrase that
// unlocks it. Derived, never stored long-term outside the per-account
// key cache.
type DecryptionKey struct {
	PrivateKey string `json:"privateKey"`
	Passphrase []byte `json:"passphrase"`
}

// KeyRingBuilder derives per-address passphrases and composes OpenPGP
// key rings from account keys and the mailbox passphrase. It performs no
// I/O; failures during list derivation are reported to telemetry and
// skipped rather than aborting the list.
type KeyRingBuilder struct {
	telemetry TelemetryReporter
}

// NewKeyRingBuilder creates a builder reporting skipped keys to telemetry.
func NewKeyRingBuilder(telemetry TelemetryReporter) *KeyRingBuilder {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	return &KeyRingBuilder{telemetry: telemetry}
}

// DerivePassphrase derives the passphrase unlocking one address key.
//
// A key without a token is locked with the mailbox passphrase itself. A
// migrated key's token is decrypted with any user key that the mailbox
// passphrase unlocks; the candidate passphrase must then unlock the
// address key. Failure of every candidate yields a KeyDerivationError.
func (b *KeyRingBuilder) DerivePassphrase(addrKey AddressKey, userKeys []string, mailboxPassphrase []byte) ([]byte, error) {
	if addrKey.Token == "" {
		if err := checkPassphrase(addrKey.PrivateKey, mailboxPassphrase); err != nil {
			return nil, &KeyDerivationError{KeyID: addrKey.ID, Err: err}
		}
		out := make([]byte, len(mailboxPassphrase))
		copy(out, mailboxPassphrase)
		return out, nil
	}

	token, err := crypto.NewPGPMessageFromArmored(addrKey.Token)
	if err != nil {
		return nil, &KeyDerivationError{KeyID: addrKey.ID, Err: fmt.Errorf("parse token: %w", err)}
	}

	var lastErr error
	for _, armored := range userKeys {
		passphrase, err := decryptTokenWith(armored, mailboxPassphrase, token)
		if err != nil {
			lastErr = err
			continue
		}
		if err := checkPassphrase(addrKey.PrivateKey, passphrase); err != nil {
			lastErr = err
			continue
		}
		return passphrase, nil
	}

	return nil, &KeyDerivationError{KeyID: addrKey.ID, Err: lastErr}
}

// decryptTokenWith unlocks one user key with the mailbox passphrase and
// decrypts the address-key token with it.
func decryptTokenWith(armoredUserKey string, mailboxPassphrase []byte, token *crypto.PGPMessage) ([]byte, error) {
	userKey, err := crypto.NewKeyFromArmored(armoredUserKey)
	if err != nil {
		return nil, fmt.Errorf("parse user key: %w", err)
	}

	unlocked, err := userKey.Unlock(mailboxPassphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock user key: %w", err)
	}
	defer unlocked.ClearPrivateParams()

	ring, err := crypto.NewKeyRing(unlocked)
	if err != nil {
		return nil, err
	}
	defer ring.ClearPrivateParams()

	plain, err := ring.Decrypt(token, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	return plain.GetBinary(), nil
}

// checkPassphrase verifies that passphrase unlocks the armored key.
func checkPassphrase(armoredKey string, passphrase []byte) error {
	key, err := crypto.NewKeyFromArmored(armoredKey)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	unlocked, err := key.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlock key: %w", err)
	}
	unlocked.ClearPrivateParams()
	return nil
}

// DecryptionKeys derives the decryption-key list for a set of address
// keys. A key whose passphrase cannot be derived is reported to telemetry
// and skipped; it never aborts the rest of the list.
func (b *KeyRingBuilder) DecryptionKeys(addrKeys []AddressKey, userKeys []string, mailboxPassphrase []byte) []DecryptionKey {
	keys := make([]DecryptionKey, 0, len(addrKeys))
	for _, addrKey := range addrKeys {
		passphrase, err := b.DerivePassphrase(addrKey, userKeys, mailboxPassphrase)
		if err != nil {
			b.telemetry.ReportError("derive-passphrase", err)
			continue
		}
		keys = append(keys, DecryptionKey{PrivateKey: addrKey.PrivateKey, Passphrase: passphrase})
	}
	return keys
}

// BuildDecryptionKeyRing composes a key ring from unlocked decryption keys.
func (b *KeyRingBuilder) BuildDecryptionKeyRing(keys []DecryptionKey) (*crypto.KeyRing, error) {
	ring, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, err
	}

	for _, dk := range keys {
		key, err := crypto.NewKeyFromArmored(dk.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		unlocked, err := key.Unlock(dk.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlock private key: %w", err)
		}
		if err := ring.AddKey(unlocked); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// BuildPublicKeyRing composes a key ring from armored public keys.
func (b *KeyRingBuilder) BuildPublicKeyRing(armoredKeys []string) (*crypto.KeyRing, error) {
	ring, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, err
	}

	for _, armored := range armoredKeys {
		key, err := crypto.NewKeyFromArmored(armored)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		if err := ring.AddKey(key); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// GenerateKeyPair generates a fresh X25519 key pair locked under a random
// passphrase. It backs ephemeral key material such as push encryption kits.
func (b *KeyRingBuilder) GenerateKeyPair(name, email string) (passphrase []byte, publicKey, privateKey string, err error) {
	passphrase, err = crypto.RandomToken(32)
	if err != nil {
		return nil, "", "", &KeyGenerationError{Err: err}
	}

	key, err := crypto.GenerateKey(name, email, "x25519", 0)
	if err != nil {
		return nil, "", "", &KeyGenerationError{Err: err}
	}
	defer key.ClearPrivateParams()

	locked, err := key.Lock(passphrase)
	if err != nil {
		return nil, "", "", &KeyGenerationError{Err: err}
	}

	privateKey, err = locked.Armor()
	if err != nil {
		return nil, "", "", &KeyGenerationError{Err: err}
	}

	publicKey, err = key.GetArmoredPublicKey()
	if err != nil {
		return nil, "", "", &KeyGenerationError{Err: err}
	}

	return passphrase, publicKey, privateKey, nil
}
