package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("Backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Store.Dir == "" {
		t.Error("default store dir is empty")
	}
}

func TestLoadConfig_ParsesTOML(t *testing.T) {
	path := writeConfig(t, `
[store]
backend = "memory"

[accounts]
max_free = 5
revoke_timeout_seconds = 3
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Accounts.MaxFree != 5 {
		t.Errorf("MaxFree = %d, want 5", cfg.Accounts.MaxFree)
	}
	if cfg.Accounts.RevokeTimeoutSeconds != 3 {
		t.Errorf("RevokeTimeoutSeconds = %d, want 3", cfg.Accounts.RevokeTimeoutSeconds)
	}

	opts := cfg.RegistryOptions()
	if len(opts) != 3 {
		t.Errorf("RegistryOptions() returned %d options, want 3", len(opts))
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"unknown backend", "[store]\nbackend = \"redis\"\n"},
		{"file backend without dir", "[store]\nbackend = \"file\"\ndir = \"\"\n"},
		{"negative max_free", "[store]\nbackend = \"memory\"\n[accounts]\nmax_free = -1\n"},
		{"negative timeout", "[store]\nbackend = \"memory\"\n[accounts]\nrevoke_timeout_seconds = -1\n"},
		{"malformed toml", "store = [[[\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.contents)); err == nil {
				t.Error("LoadConfig() accepted invalid configuration")
			}
		})
	}
}

func TestConfig_OpenBackend(t *testing.T) {
	memCfg := Config{Store: StoreConfig{Backend: BackendMemory}}
	backend, err := memCfg.OpenBackend()
	if err != nil {
		t.Fatalf("OpenBackend(memory) error = %v", err)
	}
	if err := backend.Set("probe", []byte("x")); err != nil {
		t.Errorf("Set() on memory backend error = %v", err)
	}

	fileCfg := Config{Store: StoreConfig{Backend: BackendFile, Dir: t.TempDir()}}
	backend, err = fileCfg.OpenBackend()
	if err != nil {
		t.Fatalf("OpenBackend(file) error = %v", err)
	}
	if err := backend.Set("probe", []byte("x")); err != nil {
		t.Errorf("Set() on file backend error = %v", err)
	}

	if _, err := (Config{Store: StoreConfig{Backend: "redis"}}).OpenBackend(); err == nil {
		t.Error("OpenBackend(unknown) should return an error")
	}
}

func TestConfig_MarkerMatchesBackend(t *testing.T) {
	memCfg := Config{Store: StoreConfig{Backend: BackendMemory}}
	if _, ok := memCfg.Marker().(*MemoryPrimaryMarker); !ok {
		t.Error("memory backend should use the in-memory marker")
	}

	fileCfg := Config{Store: StoreConfig{Backend: BackendFile, Dir: t.TempDir()}}
	marker := fileCfg.Marker()
	if _, ok := marker.(*FilePrimaryMarker); !ok {
		t.Fatal("file backend should use the file marker")
	}
	if err := marker.Set("sess-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if id, ok := marker.Get(); !ok || id != "sess-1" {
		t.Errorf("Get() = %q, %v, want sess-1, true", id, ok)
	}
}

func TestConfig_RegistryOptionsApplyTimeout(t *testing.T) {
	cfg := Config{
		Store:    StoreConfig{Backend: BackendMemory},
		Accounts: AccountsConfig{RevokeTimeoutSeconds: 3},
	}

	rc := defaultConfig()
	for _, opt := range cfg.RegistryOptions() {
		opt(rc)
	}
	if rc.revokeTimeout != 3*time.Second {
		t.Errorf("revokeTimeout = %v, want 3s", rc.revokeTimeout)
	}
	if rc.maxFreeAccounts != defaultMaxFreeAccounts {
		t.Errorf("maxFreeAccounts = %d, want default", rc.maxFreeAccounts)
	}
}
