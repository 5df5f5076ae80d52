package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sigilmail/vault-go/internal/sealed"
)

// Sealed blob names for the registry's persisted state. The three blobs
// always describe the same set of accounts after a successful save.
const (
	credentialsBlob  = "credentials"
	profilesBlob     = "profiles"
	mailSettingsBlob = "mailsettings"
)

// Registry is the ordered collection of authenticated sessions. Index 0
// is the active session. All mutation is serialized behind one mutex;
// the ordered list and the three sealed blobs are never mutated
// concurrently.
type Registry struct {
	mu         sync.Mutex
	sessions   []*UserSession
	loggingOut map[string]struct{} // userIDs mid-teardown

	backend  Backend
	keys     *MainKeyProvider
	creds    *sealed.Container[[]Credential]
	profiles *sealed.Container[[]Profile]
	settings *sealed.Container[map[string]MailSettings]

	disconnected *DisconnectedStore
	pushCache    *PushCredentialCache
	marker       PrimaryMarker

	factory   APIClientFactory
	content   ContentStore
	notify    NotificationCenter
	flags     FeatureFlagResetter
	telemetry TelemetryReporter
	lifecycle SessionLifecycleObserver

	maxFreeAccounts int
	revokeTimeout   time.Duration
}

// NewRegistry creates a registry persisting through backend under the
// provider's main key. factory builds one API client per added or
// restored session.
func NewRegistry(backend Backend, keys *MainKeyProvider, factory APIClientFactory, opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Registry{
		loggingOut:      make(map[string]struct{}),
		backend:         backend,
		keys:            keys,
		creds:           sealed.NewContainer[[]Credential](backend, credentialsBlob),
		profiles:        sealed.NewContainer[[]Profile](backend, profilesBlob),
		settings:        sealed.NewContainer[map[string]MailSettings](backend, mailSettingsBlob),
		marker:          cfg.marker,
		factory:         factory,
		content:         cfg.content,
		notify:          cfg.notify,
		flags:           cfg.flags,
		telemetry:       cfg.telemetry,
		lifecycle:       cfg.lifecycle,
		maxFreeAccounts: cfg.maxFreeAccounts,
		revokeTimeout:   cfg.revokeTimeout,
	}

	r.disconnected = cfg.disconnected
	if r.disconnected == nil {
		r.disconnected = NewDisconnectedStore(backend, keys)
	}
	r.pushCache = cfg.pushCache
	if r.pushCache == nil {
		r.pushCache = NewPushCredentialCache(backend, keys)
	}
	if r.marker == nil {
		r.marker = NewMemoryPrimaryMarker()
	}

	return r
}

// Sessions returns a snapshot of the session list, active session first.
func (r *Registry) Sessions() []*UserSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*UserSession, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Count returns the number of signed-in sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ActiveSession returns the session at index 0, if any.
func (r *Registry) ActiveSession() (*UserSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil, false
	}
	return r.sessions[0], true
}

// SessionByUserID returns the session for the stable account id.
func (r *Registry) SessionByUserID(userID string) (*UserSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexByUserIDLocked(userID)
	if idx < 0 {
		return nil, false
	}
	return r.sessions[idx], true
}

func (r *Registry) indexByUserIDLocked(userID string) int {
	for i, s := range r.sessions {
		if s.cred.UserID == userID {
			return i
		}
	}
	return -1
}

func (r *Registry) indexBySessionIDLocked(sessionID string) int {
	for i, s := range r.sessions {
		if s.cred.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// IsAllowedNewUser reports whether the candidate account may be added:
// unlimited for any paid subscription, otherwise capped at
// maxFreeAccounts free accounts across the registry. Evaluate it before
// Add; Add enforces the same rule.
func (r *Registry) IsAllowedNewUser(profile Profile) bool {
	if profile.Tier.Paid() {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freeCountLocked() < r.maxFreeAccounts
}

func (r *Registry) freeCountLocked() int {
	n := 0
	for _, s := range r.sessions {
		if !s.profile.Tier.Paid() {
			n++
		}
	}
	return n
}

// Add inserts a session into the registry and persists. If a session for
// the same userId already exists it is replaced in place, keeping its
// position; duplicates are never appended. Any disconnected handle for
// the account is removed.
func (r *Registry) Add(session *UserSession) error {
	r.mu.Lock()

	idx := r.indexByUserIDLocked(session.UserID())
	if idx < 0 && !session.profile.Tier.Paid() && r.freeCountLocked() >= r.maxFreeAccounts {
		r.mu.Unlock()
		return ErrFreeAccountLimit
	}

	if r.factory != nil {
		session.client = r.factory.CreateClient(session.SessionID())
	}

	if idx >= 0 {
		session.active = r.sessions[idx].active
		r.sessions[idx] = session
	} else {
		if len(r.sessions) == 0 {
			session.active = true
		}
		r.sessions = append(r.sessions, session)
	}

	// Index 0 covers both the first-ever session and a primary re-auth,
	// which replaces the session in place under a fresh session id. The
	// marker must follow or the push badge policy keys off a dead id.
	primary := idx == 0 || len(r.sessions) == 1
	sessionID := session.SessionID()
	err := r.saveLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if rmErr := r.disconnected.Remove(session.UserID()); rmErr != nil {
		r.telemetry.ReportError("remove-disconnected-handle", rmErr)
	}

	if primary {
		if err := r.marker.Set(ActiveSessionID(sessionID)); err != nil {
			return err
		}
	}
	return nil
}

// Activate moves the session with the given id to index 0. The outgoing
// active session resigns before the incoming one becomes active, so two
// sessions never simultaneously believe they are foreground-active.
func (r *Registry) Activate(sessionID string) error {
	r.mu.Lock()

	idx := r.indexBySessionIDLocked(sessionID)
	if idx < 0 {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if idx == 0 {
		r.mu.Unlock()
		return nil
	}

	outgoing := r.sessions[0]
	outgoing.active = false
	outgoingID := outgoing.SessionID()

	incoming := r.sessions[idx]
	copy(r.sessions[1:idx+1], r.sessions[:idx])
	r.sessions[0] = incoming
	incoming.active = true

	err := r.saveLocked()
	r.mu.Unlock()

	// Resign before become-active: the ordering is part of the contract.
	r.lifecycle.Resign(outgoingID)
	r.lifecycle.BecomeActive(sessionID)

	if err != nil {
		return err
	}
	return r.marker.Set(ActiveSessionID(sessionID))
}

// Logout tears down one session: the token revoke is issued first
// (bounded, non-blocking for local progress), then local per-account
// state is cleared, then the session is removed and persisted. Logging
// out the last session runs the full vault clean instead of a
// single-account removal.
//
// A concurrent second logout of the same account returns
// ErrLogoutInProgress without removing anything.
func (r *Registry) Logout(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	idx := r.indexBySessionIDLocked(sessionID)
	if idx < 0 {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	session := r.sessions[idx]
	userID := session.UserID()
	if _, busy := r.loggingOut[userID]; busy {
		r.mu.Unlock()
		return ErrLogoutInProgress
	}
	r.loggingOut[userID] = struct{}{}
	wasPrimary := idx == 0
	delinquent := session.profile.Delinquent
	client := session.client
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.loggingOut, userID)
		r.mu.Unlock()
	}()

	// Revoke server-side first. Failure is reported, never blocking:
	// local removal proceeds regardless of revoke outcome.
	if client != nil {
		rctx, cancel := context.WithTimeout(ctx, r.revokeTimeout)
		if err := client.RevokeSession(rctx); err != nil {
			r.telemetry.ReportError("revoke-session", err)
		}
		cancel()
	}

	// Then clear this account's local queue and cached state.
	if err := r.content.DeleteAccountData(ctx, userID); err != nil {
		r.telemetry.ReportError("delete-account-data", err)
	}

	r.mu.Lock()
	idx = r.indexBySessionIDLocked(sessionID)
	if idx < 0 {
		// A racing clean already removed it; nothing left to do.
		r.mu.Unlock()
		return nil
	}
	session = r.sessions[idx]
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	remaining := len(r.sessions)
	handle := session.handle()
	r.mu.Unlock()

	if err := r.pushCache.Invalidate(sessionID); err != nil {
		r.telemetry.ReportError("invalidate-push-kit", err)
	}
	if err := r.disconnected.Add(handle); err != nil {
		r.telemetry.ReportError("record-disconnected-handle", err)
	}

	if delinquent && wasPrimary {
		r.notify.Post(EventPrimaryLoggedOutByPolicy, map[string]string{"userId": userID})
	}

	if remaining == 0 {
		r.notify.Post(EventLastAccountSignedOut, nil)
		return r.clean(ctx, true)
	}

	if wasPrimary {
		r.mu.Lock()
		next := r.sessions[0]
		next.active = true
		nextID := next.SessionID()
		r.mu.Unlock()

		r.lifecycle.BecomeActive(nextID)
		if err := r.marker.Set(ActiveSessionID(nextID)); err != nil {
			return err
		}
		if !delinquent {
			r.notify.Post(EventAccountSwitched, map[string]string{"userId": userID})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// Clean runs the full teardown path: all locally cached content is
// deleted, the main key is wiped (rendering every sealed container
// permanently unopenable), all blobs and the disconnected store are
// cleared, feature flags are reset and the in-memory list is emptied.
// Safe to call with zero sessions present.
func (r *Registry) Clean(ctx context.Context) error {
	return r.clean(ctx, false)
}

// clean implements Clean. When preserveHandles is set (last-account
// logout), the disconnected handles recorded so far survive the wipe:
// they are captured first and re-sealed under a freshly generated main
// key afterwards.
func (r *Registry) clean(ctx context.Context, preserveHandles bool) error {
	if err := r.content.DeleteAllData(ctx); err != nil {
		r.telemetry.ReportError("delete-all-data", err)
	}

	var handles []DisconnectedHandle
	if preserveHandles {
		h, err := r.disconnected.List()
		if err != nil {
			r.telemetry.ReportError("preserve-disconnected-handles", err)
		} else {
			handles = h
		}
	}

	if err := r.keys.Wipe(); err != nil {
		return fmt.Errorf("wipe main key: %w", err)
	}
	if err := sealed.Wipe(r.backend); err != nil {
		return fmt.Errorf("clear sealed blobs: %w", err)
	}
	if err := r.marker.Clear(); err != nil {
		return err
	}
	r.flags.Reset()

	r.mu.Lock()
	r.sessions = nil
	r.mu.Unlock()

	if len(handles) > 0 {
		if _, err := r.keys.Generate(NewRandomProtector(r.backend)); err != nil {
			return err
		}
		// Add front-inserts, so walk backwards to keep the order.
		for i := len(handles) - 1; i >= 0; i-- {
			if err := r.disconnected.Add(handles[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Restore rebuilds the in-memory session list from the three sealed
// blobs on cold start. It fails closed: if the main key is locked, any
// blob is missing or unopenable, or the credential and profile counts
// disagree, nothing is restored. Invariant violations are reported to
// telemetry, not returned. Restoring twice with no intervening mutation
// is a no-op.
func (r *Registry) Restore() error {
	key, ok := r.keys.Current()
	if !ok {
		// Expected at first launch; nothing to restore.
		return nil
	}

	creds, err := r.creds.Unseal([]byte(key))
	if err != nil {
		return r.restoreFailed(credentialsBlob, err)
	}
	profiles, err := r.profiles.Unseal([]byte(key))
	if err != nil {
		return r.restoreFailed(profilesBlob, err)
	}
	settings, err := r.settings.Unseal([]byte(key))
	if err != nil {
		return r.restoreFailed(mailSettingsBlob, err)
	}

	// A count mismatch means the blobs describe different account sets;
	// that is corrupt state, not something to partially trust.
	if len(creds) != len(profiles) {
		r.telemetry.ReportError("restore", &RegistryInvariantError{
			Reason: fmt.Sprintf("credential count %d != profile count %d", len(creds), len(profiles)),
		})
		return nil
	}
	if len(creds) == 0 {
		return nil
	}

	profileByUser := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		profileByUser[p.UserID] = p
	}

	sessions := make([]*UserSession, 0, len(creds))
	for _, cred := range creds {
		profile, ok := profileByUser[cred.UserID]
		if !ok {
			r.telemetry.ReportError("restore", &RegistryInvariantError{
				Reason: fmt.Sprintf("no profile for user %s", cred.UserID),
			})
			return nil
		}
		session := NewUserSession(cred, profile, settings[cred.UserID])
		if r.factory != nil {
			session.client = r.factory.CreateClient(cred.SessionID)
		}
		sessions = append(sessions, session)
	}
	sessions[0].active = true

	r.mu.Lock()
	defer r.mu.Unlock()

	// Idempotence guard: launch races can fire restore twice.
	if r.sameUserIDSetLocked(sessions) {
		return nil
	}
	r.sessions = sessions
	return nil
}

// restoreFailed handles one unopenable blob: absent blobs are the
// expected empty state, anything else is reported. Either way nothing
// is restored.
func (r *Registry) restoreFailed(blob string, err error) error {
	if sealed.IsAbsent(err) {
		return nil
	}
	r.telemetry.ReportError("restore", wrapSealedError(blob, err))
	return nil
}

func (r *Registry) sameUserIDSetLocked(sessions []*UserSession) bool {
	if len(r.sessions) != len(sessions) {
		return false
	}
	have := make(map[string]struct{}, len(r.sessions))
	for _, s := range r.sessions {
		have[s.UserID()] = struct{}{}
	}
	for _, s := range sessions {
		if _, ok := have[s.UserID()]; !ok {
			return false
		}
	}
	return true
}

// UpdateProfile replaces the profile of an existing session in place, as
// happens on profile refresh, and persists.
func (r *Registry) UpdateProfile(userID string, profile Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexByUserIDLocked(userID)
	if idx < 0 {
		return ErrSessionNotFound
	}
	r.sessions[idx].profile = profile
	return r.saveLocked()
}

// UpdateMailSettings replaces the mail settings of an existing session
// in place and persists.
func (r *Registry) UpdateMailSettings(userID string, settings MailSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexByUserIDLocked(userID)
	if idx < 0 {
		return ErrSessionNotFound
	}
	r.sessions[idx].settings = settings
	return r.saveLocked()
}

// Save reseals and persists the three blobs. It is called after every
// mutating operation; callers only need it to force an extra flush.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// saveLocked seals credentials, profiles and mail settings as three
// independent blobs. All three are sealed before any is written, so a
// failed seal (for example an absent main key) aborts the whole save and
// never persists a partial set.
func (r *Registry) saveLocked() error {
	key, ok := r.keys.Current()
	if !ok {
		return ErrMainKeyAbsent
	}

	creds := make([]Credential, len(r.sessions))
	profiles := make([]Profile, len(r.sessions))
	settings := make(map[string]MailSettings, len(r.sessions))
	for i, s := range r.sessions {
		creds[i] = s.cred
		profiles[i] = s.profile
		settings[s.cred.UserID] = s.settings
	}

	credBytes, err := sealed.SealBytes(creds, []byte(key), credentialsBlob)
	if err != nil {
		return fmt.Errorf("seal %s: %w", credentialsBlob, err)
	}
	profileBytes, err := sealed.SealBytes(profiles, []byte(key), profilesBlob)
	if err != nil {
		return fmt.Errorf("seal %s: %w", profilesBlob, err)
	}
	settingsBytes, err := sealed.SealBytes(settings, []byte(key), mailSettingsBlob)
	if err != nil {
		return fmt.Errorf("seal %s: %w", mailSettingsBlob, err)
	}

	if err := r.backend.Set(credentialsBlob, credBytes); err != nil {
		return err
	}
	if err := r.backend.Set(profilesBlob, profileBytes); err != nil {
		return err
	}
	return r.backend.Set(mailSettingsBlob, settingsBytes)
}

// Disconnected returns the disconnected-account store used by this registry.
func (r *Registry) Disconnected() *DisconnectedStore {
	return r.disconnected
}

// PushCache returns the push credential cache used by this registry.
func (r *Registry) PushCache() *PushCredentialCache {
	return r.pushCache
}

// PrimarySessionID returns the persisted primary-session marker.
func (r *Registry) PrimarySessionID() (ActiveSessionID, bool) {
	return r.marker.Get()
}
