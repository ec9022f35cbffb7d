package oidc

import (
	"fmt"
	"net/url"
	"strings"
)

// Authority identifies the identity provider and tenant a client signs in
// against, e.g. https://login.microsoftonline.com/<tenant-id>.
type Authority struct {
	// URL is the canonical authority without a trailing slash.
	URL string
	// Host is the provider host; it becomes Account.Environment.
	Host string
	// Tenant is the first path segment, empty for single-tenant providers.
	Tenant string
}

// ParseAuthority validates and canonicalizes an authority URL.
func ParseAuthority(raw string) (Authority, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Authority{}, fmt.Errorf("invalid authority: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Authority{}, fmt.Errorf("authority must be an absolute URL, got %q", raw)
	}
	if u.Host == "" {
		return Authority{}, fmt.Errorf("authority %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Authority{}, fmt.Errorf("authority %q must not carry a query or fragment", raw)
	}

	path := strings.Trim(u.Path, "/")
	tenant := path
	if i := strings.IndexByte(path, '/'); i >= 0 {
		tenant = path[:i]
	}

	canonical := u.Scheme + "://" + strings.ToLower(u.Host)
	if path != "" {
		canonical += "/" + path
	}

	return Authority{
		URL:    canonical,
		Host:   strings.ToLower(u.Hostname()),
		Tenant: tenant,
	}, nil
}

// MetadataURLs lists the discovery document locations tried in order. The
// Microsoft identity platform serves v2 metadata under <authority>/v2.0;
// other providers serve it directly under the issuer.
func (a Authority) MetadataURLs() []string {
	const wellKnown = "/.well-known/openid-configuration"
	if strings.HasSuffix(a.URL, "/v2.0") {
		return []string{a.URL + wellKnown}
	}
	return []string{
		a.URL + "/v2.0" + wellKnown,
		a.URL + wellKnown,
	}
}

// String returns the canonical authority URL.
func (a Authority) String() string {
	return a.URL
}
