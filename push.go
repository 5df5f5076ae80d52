package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// FallbackBody is the generic, non-revealing body delivered whenever the
// pipeline cannot produce decrypted content. Never show ciphertext-derived
// partial content.
const FallbackBody = "You received a new message!"

// NotificationContent is what gets handed to the OS delivery callback.
type NotificationContent struct {
	Title     string
	Body      string
	SessionID string
	MessageID string
	// Badge is the badge count to set. nil clears the badge; it is only
	// set when the push belongs to the primary session.
	Badge *int
}

// pushEnvelope is the minimal shape parsed out of a raw push payload.
type pushEnvelope struct {
	UID              string
	EncryptedMessage string
	ViewMode         int
	UnreadCounts     map[string]int
}

// pushContent is the structured content inside the decrypted payload.
type pushContent struct {
	Sender struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"sender"`
	Body       string `json:"body"`
	MessageID  string `json:"messageId"`
	BadgeCount int    `json:"badgeCount"`
}

// PushPipeline decrypts arriving push payloads out-of-process. It runs in
// the short-lived notification extension and shares nothing with the
// registry process except the sealed, file-backed caches.
type PushPipeline struct {
	cache     *PushCredentialCache
	builder   *KeyRingBuilder
	marker    PrimaryMarker
	notify    NotificationCenter
	telemetry TelemetryReporter
}

// NewPushPipeline creates a pipeline over the given kit cache and primary
// marker. notify receives the kit re-registration signal; telemetry
// receives locally recovered failures. Both may be nil.
func NewPushPipeline(cache *PushCredentialCache, marker PrimaryMarker, notify NotificationCenter, telemetry TelemetryReporter) *PushPipeline {
	if notify == nil {
		notify = noopNotificationCenter{}
	}
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	return &PushPipeline{
		cache:     cache,
		builder:   NewKeyRingBuilder(telemetry),
		marker:    marker,
		notify:    notify,
		telemetry: telemetry,
	}
}

// assembly accumulates notification content as pipeline steps complete,
// so a timeout can still deliver whatever has been assembled so far.
type assembly struct {
	mu      sync.Mutex
	content NotificationContent
}

func (a *assembly) update(fn func(*NotificationContent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.content)
}

func (a *assembly) snapshot() *NotificationContent {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.content
	return &c
}

// Handle processes one raw push payload and invokes deliver exactly once,
// with either fully populated or generic fallback content.
//
// Failures in any stage are recovered locally: the user sees the generic
// body, never an error. If ctx expires before the pipeline completes (the
// OS is terminating the extension), whatever partial content has been
// assembled is delivered rather than dropping the notification.
//
// The returned error reports what went wrong for telemetry purposes; it
// is never reflected in the delivered content beyond the generic fallback.
func (p *PushPipeline) Handle(ctx context.Context, raw map[string]any, deliver func(*NotificationContent)) error {
	asm := &assembly{content: NotificationContent{Body: FallbackBody}}

	done := make(chan error, 1)
	go func() {
		done <- p.process(raw, asm)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.telemetry.ReportError("push-decrypt", err)
			deliver(&NotificationContent{Body: FallbackBody})
			return err
		}
		deliver(asm.snapshot())
		return nil
	case <-ctx.Done():
		// Best-effort delivery on timeout: hand over the partial content.
		deliver(asm.snapshot())
		return ctx.Err()
	}
}

// process runs the pipeline stages, updating asm as content firms up.
func (p *PushPipeline) process(raw map[string]any, asm *assembly) error {
	env, err := parsePushPayload(raw)
	if err != nil {
		return &PushError{Stage: StagePayloadParse, Err: err}
	}

	if env.UID == "" {
		return &PushError{Stage: StageMissingSession}
	}
	asm.update(func(c *NotificationContent) { c.SessionID = env.UID })

	keys, err := p.cache.DecryptionKeys(env.UID)
	if err != nil {
		return &PushError{Stage: StageNoKey, Err: err}
	}
	if len(keys) == 0 {
		// Expected, recoverable: the kit rotated or was never
		// registered. Signal the app to re-register this session.
		p.notify.Post(EventKitRegistrationNeeded, map[string]string{"sessionId": env.UID})
		return &PushError{Stage: StageNoKey}
	}

	plaintext, err := p.decrypt(env.EncryptedMessage, keys)
	if err != nil {
		return &PushError{Stage: StageDecryption, Err: err}
	}

	var content pushContent
	if err := json.Unmarshal(plaintext, &content); err != nil {
		return &PushError{Stage: StageContentParse, Err: err}
	}

	asm.update(func(c *NotificationContent) {
		c.Title = content.Sender.Name
		if c.Title == "" {
			c.Title = content.Sender.Address
		}
		c.Body = content.Body
		c.MessageID = content.MessageID
		c.Badge = p.badgeFor(env.UID, content.BadgeCount)
	})
	return nil
}

// badgeFor returns the badge count to set, or nil to clear it. Only the
// primary session may set the badge; a background account must not
// pollute the primary badge count.
func (p *PushPipeline) badgeFor(uid string, count int) *int {
	if count <= 0 {
		return nil
	}
	primary, ok := p.marker.Get()
	if !ok || string(primary) != uid {
		return nil
	}
	return &count
}

// decrypt tries each cached key in order until one opens the message.
func (p *PushPipeline) decrypt(armored string, keys []DecryptionKey) ([]byte, error) {
	msg, err := crypto.NewPGPMessageFromArmored(armored)
	if err != nil {
		return nil, fmt.Errorf("parse encrypted message: %w", err)
	}

	var lastErr error
	for _, key := range keys {
		ring, err := p.builder.BuildDecryptionKeyRing([]DecryptionKey{key})
		if err != nil {
			lastErr = err
			continue
		}
		plain, err := ring.Decrypt(msg, nil, 0)
		ring.ClearPrivateParams()
		if err != nil {
			lastErr = err
			continue
		}
		return plain.GetBinary(), nil
	}
	return nil, lastErr
}

// parsePushPayload extracts the envelope out of the opaque payload map.
func parsePushPayload(raw map[string]any) (*pushEnvelope, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	env := &pushEnvelope{}

	if uid, ok := raw["UID"].(string); ok {
		env.UID = uid
	}

	encrypted, ok := raw["encryptedMessage"]
	if !ok {
		return nil, fmt.Errorf("payload has no encryptedMessage")
	}
	env.EncryptedMessage, ok = encrypted.(string)
	if !ok || env.EncryptedMessage == "" {
		return nil, fmt.Errorf("encryptedMessage is not a string")
	}

	// JSON numbers decode as float64.
	if vm, ok := raw["viewMode"].(float64); ok {
		env.ViewMode = int(vm)
	}
	if counts, ok := raw["unreadCounts"].(map[string]any); ok {
		env.UnreadCounts = make(map[string]int, len(counts))
		for k, v := range counts {
			if n, ok := v.(float64); ok {
				env.UnreadCounts[k] = int(n)
			}
		}
	}

	return env, nil
}
