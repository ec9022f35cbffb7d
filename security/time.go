package security

import "time"

const (
	// DefaultClockSkewGracePeriod is how long the resource server keeps accepting
	// a token past its exp claim to absorb clock drift between hosts.
	DefaultClockSkewGracePeriod = 5 * time.Second

	// DefaultRefreshOffset is how long before expiry a cached access token is
	// treated as stale on the client, so it is refreshed instead of being sent
	// with only seconds to live.
	DefaultRefreshOffset = 5 * time.Minute
)

// Clock is the time source used for token expiry decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockOrDefault returns c or the system clock when c is nil.
func ClockOrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// IsTokenExpired checks if a token is expired with default clock skew grace period
func IsTokenExpired(now, expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(now, expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks if a token is expired with custom clock skew grace period
func IsTokenExpiredWithGracePeriod(now, expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false // No expiration
	}
	return now.After(expiresAt.Add(gracePeriod))
}

// IsTokenExpiringSoon reports whether a token expires within threshold of now.
// A token expiring exactly at now+threshold counts as expiring.
func IsTokenExpiringSoon(now, expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Add(threshold).Before(expiresAt)
}
