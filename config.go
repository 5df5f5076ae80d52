package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Store backend names accepted in configuration.
const (
	// BackendFile stores sealed blobs as files in the store directory.
	BackendFile = "file"
	// BackendMemory keeps sealed blobs in memory only.
	BackendMemory = "memory"
)

// Config is the vault configuration, loaded from a TOML file. Migrating
// between the two store backends is a one-time data-moving operation,
// not a permanent dual-read path.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Accounts AccountsConfig `toml:"accounts"`
}

// StoreConfig selects the sealed-container backend.
type StoreConfig struct {
	// Backend is "file" or "memory".
	Backend string `toml:"backend"`

	// Dir is the directory holding sealed blobs and the primary marker.
	// Only used by the file backend.
	Dir string `toml:"dir"`
}

// AccountsConfig holds registry policy settings.
type AccountsConfig struct {
	// MaxFree caps the number of free accounts. 0 means the default of 2.
	MaxFree int `toml:"max_free"`

	// RevokeTimeoutSeconds bounds the logout token revoke. 0 means the
	// default of 10 seconds.
	RevokeTimeoutSeconds int `toml:"revoke_timeout_seconds"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Backend: BackendFile, Dir: "vault-data"},
	}
}

// LoadConfig reads a TOML configuration file. A missing file yields the
// default configuration.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Accounts.MaxFree < 0 {
		return fmt.Errorf("accounts.max_free must not be negative")
	}
	if c.Accounts.RevokeTimeoutSeconds < 0 {
		return fmt.Errorf("accounts.revoke_timeout_seconds must not be negative")
	}
	return nil
}

// OpenBackend creates the configured sealed-container backend.
func (c Config) OpenBackend() (Backend, error) {
	switch c.Store.Backend {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile:
		return NewFileBackend(c.Store.Dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
}

// Marker creates the configured primary-session marker.
func (c Config) Marker() PrimaryMarker {
	if c.Store.Backend == BackendMemory {
		return NewMemoryPrimaryMarker()
	}
	return NewFilePrimaryMarker(filepath.Join(c.Store.Dir, "primary_session"))
}

// RegistryOptions translates the configuration into registry options.
func (c Config) RegistryOptions() []Option {
	opts := []Option{WithPrimaryMarker(c.Marker())}
	if c.Accounts.MaxFree > 0 {
		opts = append(opts, WithMaxFreeAccounts(c.Accounts.MaxFree))
	}
	if c.Accounts.RevokeTimeoutSeconds > 0 {
		opts = append(opts, WithRevokeTimeout(time.Duration(c.Accounts.RevokeTimeoutSeconds)*time.Second))
	}
	return opts
}
