package vault

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier identifies an account's subscription level.
type SubscriptionTier string

const (
	// TierFree is the free subscription tier.
	TierFree SubscriptionTier = "free"
	// TierPlus is the paid mail subscription tier.
	TierPlus SubscriptionTier = "plus"
	// TierUnlimited is the paid bundle subscription tier.
	TierUnlimited SubscriptionTier = "unlimited"
)

// Paid reports whether the tier is a paid subscription.
func (t SubscriptionTier) Paid() bool {
	return t != "" && t != TierFree
}

// Credential holds one account's API tokens. UserID is stable across
// re-authentication; SessionID is re-issued on every full re-auth.
type Credential struct {
	UserID       string    `json:"userId"`
	SessionID    string    `json:"sessionId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Profile holds one account's display data.
type Profile struct {
	UserID       string           `json:"userId"`
	DisplayName  string           `json:"displayName"`
	DefaultEmail string           `json:"defaultEmail"`
	Tier         SubscriptionTier `json:"tier"`
	Delinquent   bool             `json:"delinquent"`
}

// MailSettings holds the per-account preferences needed at decrypt and
// display time.
type MailSettings struct {
	ViewMode   int    `json:"viewMode"`
	ShowImages bool   `json:"showImages"`
	Signature  string `json:"signature,omitempty"`
}

// UserSession is one authenticated account: credential, profile and mail
// settings. Sessions are exclusively owned by a Registry; nothing else
// holds one across the logout boundary.
type UserSession struct {
	cred     Credential
	profile  Profile
	settings MailSettings
	client   APIClient
	active   bool
}

// NewUserSession creates a session from a fresh login result.
func NewUserSession(cred Credential, profile Profile, settings MailSettings) *UserSession {
	return &UserSession{cred: cred, profile: profile, settings: settings}
}

// UserID returns the stable account identifier.
func (s *UserSession) UserID() string {
	return s.cred.UserID
}

// SessionID returns the current session identifier.
func (s *UserSession) SessionID() string {
	return s.cred.SessionID
}

// Credential returns the session's credential.
func (s *UserSession) Credential() Credential {
	return s.cred
}

// Profile returns the session's profile.
func (s *UserSession) Profile() Profile {
	return s.profile
}

// MailSettings returns the session's mail settings.
func (s *UserSession) MailSettings() MailSettings {
	return s.settings
}

// IsActive reports whether this session is the foreground-active one.
func (s *UserSession) IsActive() bool {
	return s.active
}

// handle returns the lightweight record kept for re-login after logout.
func (s *UserSession) handle() DisconnectedHandle {
	return DisconnectedHandle{
		UserID:       s.cred.UserID,
		DisplayName:  s.profile.DisplayName,
		DefaultEmail: s.profile.DefaultEmail,
	}
}

// NewSessionID returns a fresh session identifier. Production session ids
// are issued by the server; this is used by tooling and tests.
func NewSessionID() string {
	return uuid.NewString()
}
