package security

// Event type constants for security audit logging.
const (
	// Client side session events

	// EventLogin is logged when an interactive sign-in completes
	EventLogin = "login"

	// EventLoginFailed is logged when an interactive sign-in ends in an error
	EventLoginFailed = "login_failed"

	// EventLogout is logged when the active account signs out
	EventLogout = "logout"

	// EventActiveAccountChanged is logged when the active account is switched
	EventActiveAccountChanged = "active_account_changed"

	// EventTokenRefreshed is logged when a refresh token grant succeeds
	EventTokenRefreshed = "token_refreshed"

	// EventRefreshFailed is logged when silent refresh fails and interaction is needed
	EventRefreshFailed = "refresh_failed"

	// EventStateMismatch is logged when a callback carries an unknown state
	EventStateMismatch = "state_mismatch"

	// Resource server events

	// EventAuthFailure is logged when a bearer token is missing or invalid
	EventAuthFailure = "auth_failure"

	// EventScopeDenied is logged when a valid token lacks every accepted scope
	EventScopeDenied = "scope_denied"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
