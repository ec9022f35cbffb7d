package oidc

import (
	"fmt"
	"net"
	"net/url"

	"github.com/welkome/identity/internal/util"
)

const (
	maxScopes      = 50
	maxScopeLength = 256
)

// ValidateIssuerURL validates an authority or issuer URL: HTTPS only and no
// loopback, private or link-local IP literals.
func ValidateIssuerURL(issuerURL string) error {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if u.Scheme != "https" {
		return fmt.Errorf("issuer URL must use HTTPS, got %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}

	if ip := net.ParseIP(host); ip != nil && util.IsPrivateOrInternal(ip) {
		return fmt.Errorf("issuer URL must not point to internal addresses")
	}

	return nil
}

// ValidateRedirectURI checks a public client redirect URI: https anywhere,
// or plain http only on a loopback host (RFC 8252 native app rule).
func ValidateRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI must not contain a fragment")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if util.IsLoopbackHostname(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("http redirect URI is only allowed for loopback hosts, got %s", u.Hostname())
	default:
		return fmt.Errorf("redirect URI must be http(s), got %q", u.Scheme)
	}
}

// ValidateScopes validates OAuth scopes.
func ValidateScopes(scopes []string) error {
	if len(scopes) > maxScopes {
		return fmt.Errorf("too many scopes (max %d, got %d)", maxScopes, len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > maxScopeLength {
			return fmt.Errorf("scope at index %d exceeds maximum length of %d characters", i, maxScopeLength)
		}
	}

	return nil
}
