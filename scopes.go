package identity

import (
	"sort"
	"strings"
)

// OIDC scopes the client adds to every interactive request. They describe
// the sign-in itself, so they never partition the access token cache.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeOfflineAccess = "offline_access"
)

// DefaultOIDCScopes are requested alongside resource scopes on login.
var DefaultOIDCScopes = []string{ScopeOpenID, ScopeProfile, ScopeOfflineAccess}

// IsOIDCScope reports whether s is one of the reserved sign-in scopes.
func IsOIDCScope(s string) bool {
	switch strings.ToLower(s) {
	case ScopeOpenID, ScopeProfile, ScopeOfflineAccess:
		return true
	}
	return false
}

// ParseScope splits a space separated scope string.
func ParseScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders scopes the way the token endpoint expects them.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// NormalizeScopes trims, de-duplicates (case-insensitively) and sorts scopes.
// The result is suitable as a cache key component.
func NormalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// ResourceScopes removes the reserved OIDC scopes and normalizes the rest.
func ResourceScopes(scopes []string) []string {
	filtered := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !IsOIDCScope(s) {
			filtered = append(filtered, s)
		}
	}
	return NormalizeScopes(filtered)
}

// WithOIDCScopes returns scopes plus the reserved sign-in scopes.
func WithOIDCScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes)+len(DefaultOIDCScopes))
	out = append(out, scopes...)
	out = append(out, DefaultOIDCScopes...)
	return NormalizeScopes(out)
}
