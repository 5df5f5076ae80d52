// Package vault implements the multi-session credential vault and
// push-notification decryption pipeline for a secure mail client.
//
// The vault holds every authenticated account's credentials, profile and
// mail settings in memory, seals that state to persistent storage under a
// single derived secret (the main key), derives per-message OpenPGP
// decryption key rings from account keys and the mailbox passphrase, and
// decrypts arriving push payloads out-of-process using a separately
// cached per-session encryption kit.
//
// Basic usage:
//
//	cfg, err := vault.LoadConfig("vault.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	backend, err := cfg.OpenBackend()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	keys := vault.NewMainKeyProvider(backend)
//	if _, err := keys.Unlock(vault.NewPINProtector(pin)); err != nil {
//	    log.Fatal(err)
//	}
//
//	registry := vault.NewRegistry(backend, keys, factory)
//	if err := registry.Restore(); err != nil {
//	    log.Fatal(err)
//	}
//
// The push pipeline runs in the notification extension process and
// shares nothing with the registry besides the sealed, file-backed
// stores:
//
//	pipeline := vault.NewPushPipeline(cache, marker, notify, telemetry)
//	pipeline.Handle(ctx, payload, deliver)
package vault
