// Command vaulthelper is a small operational tool for the vault stores:
// it generates push encryption kits, inspects sealed state and wipes a
// vault directory. It is used by integration workflows and manual
// debugging, never by the application itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	vault "github.com/sigilmail/vault-go"
)

func main() {
	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fatal("usage: vaulthelper <command> [args]")
	}

	cfg, err := vault.LoadConfig(configPath())
	if err != nil {
		fatal("load config: %v", err)
	}

	switch os.Args[1] {
	case "generate-kit":
		generateKit()
	case "import-kit":
		importKit(cfg)
	case "list-disconnected":
		listDisconnected(cfg)
	case "wipe":
		wipe(cfg)
	default:
		fatal("unknown command: %s", os.Args[1])
	}
}

func configPath() string {
	if path := os.Getenv("VAULT_CONFIG"); path != "" {
		return path
	}
	return "vault.toml"
}

// generateKit creates a fresh encryption kit for a new session id and
// writes its portable form to stdout.
func generateKit() {
	builder := vault.NewKeyRingBuilder(nil)

	passphrase, _, privateKey, err := builder.GenerateKeyPair("push", "push@localhost")
	if err != nil {
		fatal("generate key pair: %v", err)
	}

	kit := vault.EncryptionKit{
		SessionID:  vault.NewSessionID(),
		PrivateKey: privateKey,
		Passphrase: passphrase,
	}

	if err := json.NewEncoder(os.Stdout).Encode(vault.ExportKit(kit)); err != nil {
		fatal("encode kit: %v", err)
	}
}

// importKit reads a portable kit from stdin and stores it in the
// configured push credential cache. The vault is unlocked (or
// initialized) via the random protector.
func importKit(cfg vault.Config) {
	var data vault.ExportedKit
	if err := json.NewDecoder(os.Stdin).Decode(&data); err != nil {
		fatal("parse kit: %v", err)
	}

	kit, err := vault.ImportKit(&data)
	if err != nil {
		fatal("import kit: %v", err)
	}

	backend, keys := openVault(cfg)
	cache := vault.NewPushCredentialCache(backend, keys)
	if err := cache.Store(kit); err != nil {
		fatal("store kit: %v", err)
	}
	fmt.Printf("stored kit for session %s\n", kit.SessionID)
}

func listDisconnected(cfg vault.Config) {
	backend, keys := openVault(cfg)

	store := vault.NewDisconnectedStore(backend, keys)
	handles, err := store.List()
	if err != nil {
		fatal("list handles: %v", err)
	}
	for _, h := range handles {
		fmt.Printf("%s\t%s\t%s\n", h.UserID, h.DisplayName, h.DefaultEmail)
	}
}

func wipe(cfg vault.Config) {
	backend, err := cfg.OpenBackend()
	if err != nil {
		fatal("open backend: %v", err)
	}

	keys := vault.NewMainKeyProvider(backend)
	registry := vault.NewRegistry(backend, keys, nil, cfg.RegistryOptions()...)
	if err := registry.Clean(context.Background()); err != nil {
		fatal("clean: %v", err)
	}
	fmt.Println("vault wiped")
}

// openVault opens the configured backend and unlocks the main key with
// the random protector, generating a fresh key when none exists yet.
func openVault(cfg vault.Config) (vault.Backend, *vault.MainKeyProvider) {
	backend, err := cfg.OpenBackend()
	if err != nil {
		fatal("open backend: %v", err)
	}

	keys := vault.NewMainKeyProvider(backend)
	prot := vault.NewRandomProtector(backend)
	key, err := keys.Unlock(prot)
	if err != nil {
		fatal("unlock vault: %v", err)
	}
	if key == nil {
		if _, err := keys.Generate(prot); err != nil {
			fatal("generate main key: %v", err)
		}
	}
	return backend, keys
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
