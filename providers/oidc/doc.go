// Package oidc locates the endpoints of the identity provider a public client
// signs in against.
//
// An Authority is the provider host plus tenant. Discovery tries the
// Microsoft identity platform v2.0 metadata location first and falls back to
// the plain issuer location, and caches the result per authority.
//
//	authority, err := oidc.ParseAuthority("https://login.microsoftonline.com/" + tenantID)
//	if err != nil {
//	    return err
//	}
//	doc, err := oidc.NewDiscoveryClient(nil, time.Hour, logger).Discover(ctx, authority)
//	if err != nil {
//	    return err
//	}
//	// doc.AuthorizationEndpoint, doc.TokenEndpoint, doc.EndSessionEndpoint, doc.JWKSUri
//
// HTTPS is required for the authority and every endpoint it returns unless
// AllowInsecure is called, which local fakes need.
package oidc
