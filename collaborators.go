package vault

import "context"

// APIClient is the slice of the network client the vault needs: revoking
// a session's tokens during logout. Client construction is owned by the
// application, not by the vault.
type APIClient interface {
	// RevokeSession invalidates the session's tokens server-side.
	RevokeSession(ctx context.Context) error
}

// APIClientFactory builds an API client bound to a session id. The vault
// calls it once per added or restored session.
type APIClientFactory interface {
	CreateClient(sessionID string) APIClient
}

// APIClientFactoryFunc adapts a function to the APIClientFactory interface.
type APIClientFactoryFunc func(sessionID string) APIClient

// CreateClient calls f.
func (f APIClientFactoryFunc) CreateClient(sessionID string) APIClient {
	return f(sessionID)
}

// ContentStore is the local message/content store. The vault only ever
// deletes through it: per-account data on logout, everything on full clean.
type ContentStore interface {
	// DeleteAccountData removes locally cached data for one account.
	DeleteAccountData(ctx context.Context, userID string) error

	// DeleteAllData removes all locally cached message and content data.
	DeleteAllData(ctx context.Context) error
}

// Events posted through the NotificationCenter.
const (
	// EventPrimaryLoggedOutByPolicy is posted when the primary account is
	// logged out because its profile indicates billing delinquency.
	EventPrimaryLoggedOutByPolicy = "primaryAccountLoggedOutByPolicy"

	// EventAccountSwitched is posted when the primary account is removed
	// and another signed-in account takes its place.
	EventAccountSwitched = "accountSwitchedDueToTokenRevocation"

	// EventLastAccountSignedOut is posted when the last remaining account
	// signs out and the vault is cleaned.
	EventLastAccountSignedOut = "lastAccountSignedOut"

	// EventKitRegistrationNeeded is posted when a push arrives for a
	// session with no cached encryption kit, so the application can
	// re-register for remote notifications.
	EventKitRegistrationNeeded = "encryptionKitRegistrationNeeded"
)

// NotificationCenter receives user-visible and application-level events.
type NotificationCenter interface {
	Post(event string, payload map[string]string)
}

// NotificationCenterFunc adapts a function to the NotificationCenter interface.
type NotificationCenterFunc func(event string, payload map[string]string)

// Post calls f.
func (f NotificationCenterFunc) Post(event string, payload map[string]string) {
	f(event, payload)
}

// FeatureFlagResetter resets feature-flag state during a full clean.
type FeatureFlagResetter interface {
	Reset()
}

// TelemetryReporter receives errors that are handled locally but still
// worth reporting: failed token revokes, restore invariant violations,
// skipped key derivations.
type TelemetryReporter interface {
	ReportError(op string, err error)
}

// SessionLifecycleObserver is notified of session activation transitions.
// During Activate, Resign on the outgoing session is always delivered
// before BecomeActive on the incoming one.
type SessionLifecycleObserver interface {
	Resign(sessionID string)
	BecomeActive(sessionID string)
}

type noopTelemetry struct{}

func (noopTelemetry) ReportError(string, error) {}

type noopLifecycle struct{}

func (noopLifecycle) Resign(string)       {}
func (noopLifecycle) BecomeActive(string) {}

type noopNotificationCenter struct{}

func (noopNotificationCenter) Post(string, map[string]string) {}

type noopFlags struct{}

func (noopFlags) Reset() {}

type noopContentStore struct{}

func (noopContentStore) DeleteAccountData(context.Context, string) error { return nil }
func (noopContentStore) DeleteAllData(context.Context) error             { return nil }
