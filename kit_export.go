package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// KitExportVersion is the current kit export format version.
const KitExportVersion = 1

// ExportedKit is the portable form of an EncryptionKit, used to hand a
// kit from the main application to the notification extension process.
// WARNING: it contains private key material - handle securely.
type ExportedKit struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// SessionID is the session the kit decrypts pushes for. Non-empty.
	SessionID string `json:"sessionId"`
	// PrivateKey is the armored locked private key.
	PrivateKey string `json:"privateKey"`
	// Passphrase is the key passphrase, base64-encoded.
	Passphrase string `json:"passphrase"`
	// ExportedAt is the export timestamp. Informational only.
	ExportedAt time.Time `json:"exportedAt"`
}

// Validate checks that the exported kit is usable before import.
func (e *ExportedKit) Validate() error {
	if e.Version != KitExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidKitData, e.Version, KitExportVersion)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidKitData)
	}
	if e.PrivateKey == "" {
		return fmt.Errorf("%w: privateKey is required", ErrInvalidKitData)
	}
	if _, err := crypto.NewKeyFromArmored(e.PrivateKey); err != nil {
		return fmt.Errorf("%w: privateKey is not a valid armored key", ErrInvalidKitData)
	}
	if e.Passphrase == "" {
		return fmt.Errorf("%w: passphrase is required", ErrInvalidKitData)
	}
	if _, err := base64.StdEncoding.DecodeString(e.Passphrase); err != nil {
		return fmt.Errorf("%w: invalid passphrase encoding", ErrInvalidKitData)
	}
	return nil
}

// ExportKit returns the portable form of a kit.
func ExportKit(kit EncryptionKit) *ExportedKit {
	return &ExportedKit{
		Version:    KitExportVersion,
		SessionID:  kit.SessionID,
		PrivateKey: kit.PrivateKey,
		Passphrase: base64.StdEncoding.EncodeToString(kit.Passphrase),
		ExportedAt: time.Now().UTC(),
	}
}

// ImportKit reconstructs a kit from its portable form.
func ImportKit(data *ExportedKit) (EncryptionKit, error) {
	if err := data.Validate(); err != nil {
		return EncryptionKit{}, err
	}

	// Validate() already verified the encoding.
	passphrase, _ := base64.StdEncoding.DecodeString(data.Passphrase)

	return EncryptionKit{
		SessionID:  data.SessionID,
		PrivateKey: data.PrivateKey,
		Passphrase: passphrase,
	}, nil
}

// ExportKitToFile writes a kit export to a JSON file with secure
// permissions (0600).
func ExportKitToFile(kit EncryptionKit, filePath string) error {
	data := ExportKit(kit)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal kit data: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// ImportKitFromFile reads a kit export from a JSON file.
func ImportKitFromFile(filePath string) (EncryptionKit, error) {
	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return EncryptionKit{}, fmt.Errorf("read file: %w", err)
	}

	var data ExportedKit
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return EncryptionKit{}, fmt.Errorf("parse kit data: %w", err)
	}
	return ImportKit(&data)
}
