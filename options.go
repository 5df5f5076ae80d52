package vault

import "time"

const (
	defaultMaxFreeAccounts = 2
	defaultRevokeTimeout   = 10 * time.Second
)

// registryConfig holds configuration for registry construction.
type registryConfig struct {
	marker       PrimaryMarker
	disconnected *DisconnectedStore
	pushCache    *PushCredentialCache

	content   ContentStore
	notify    NotificationCenter
	flags     FeatureFlagResetter
	telemetry TelemetryReporter
	lifecycle SessionLifecycleObserver

	maxFreeAccounts int
	revokeTimeout   time.Duration
}

func defaultConfig() *registryConfig {
	return &registryConfig{
		content:         noopContentStore{},
		notify:          noopNotificationCenter{},
		flags:           noopFlags{},
		telemetry:       noopTelemetry{},
		lifecycle:       noopLifecycle{},
		maxFreeAccounts: defaultMaxFreeAccounts,
		revokeTimeout:   defaultRevokeTimeout,
	}
}

// Option configures the registry.
type Option func(*registryConfig)

// WithPrimaryMarker sets the primary-session marker store.
// Default: an in-memory marker.
func WithPrimaryMarker(marker PrimaryMarker) Option {
	return func(c *registryConfig) {
		c.marker = marker
	}
}

// WithDisconnectedStore sets the disconnected-account store. By default
// one is created over the registry's own backend.
func WithDisconnectedStore(store *DisconnectedStore) Option {
	return func(c *registryConfig) {
		c.disconnected = store
	}
}

// WithPushCredentialCache sets the push kit cache. By default one is
// created over the registry's own backend.
func WithPushCredentialCache(cache *PushCredentialCache) Option {
	return func(c *registryConfig) {
		c.pushCache = cache
	}
}

// WithContentStore sets the local message/content store used during
// logout and clean.
func WithContentStore(store ContentStore) Option {
	return func(c *registryConfig) {
		c.content = store
	}
}

// WithNotificationCenter sets the event sink for account-switch, policy
// logout and last-account events.
func WithNotificationCenter(nc NotificationCenter) Option {
	return func(c *registryConfig) {
		c.notify = nc
	}
}

// WithFeatureFlags sets the feature-flag state reset during full clean.
func WithFeatureFlags(flags FeatureFlagResetter) Option {
	return func(c *registryConfig) {
		c.flags = flags
	}
}

// WithTelemetry sets the reporter receiving locally recovered failures.
func WithTelemetry(telemetry TelemetryReporter) Option {
	return func(c *registryConfig) {
		c.telemetry = telemetry
	}
}

// WithLifecycleObserver sets the observer of resign/become-active
// transitions during activation.
func WithLifecycleObserver(observer SessionLifecycleObserver) Option {
	return func(c *registryConfig) {
		c.lifecycle = observer
	}
}

// WithMaxFreeAccounts sets the free-account cap.
// Default: 2
func WithMaxFreeAccounts(n int) Option {
	return func(c *registryConfig) {
		c.maxFreeAccounts = n
	}
}

// WithRevokeTimeout bounds the server-side token revoke during logout.
// Local removal proceeds when it expires.
// Default: 10 seconds
func WithRevokeTimeout(timeout time.Duration) Option {
	return func(c *registryConfig) {
		c.revokeTimeout = timeout
	}
}
