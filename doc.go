// Package identity holds the data model shared by a public OAuth 2.0 / OIDC
// client and the resource servers it calls: accounts, cached access tokens,
// interaction status, the validated principal of an inbound request and the
// error taxonomy both halves use.
//
// The client side lives in authclient (sign-in, silent refresh, logout),
// cache (token persistence), scopemap (which scopes a URL needs) and
// interceptor (an http.RoundTripper that attaches bearer tokens). The server
// side lives in resourceserver (JWT validation and routing) and guard
// (accept-any-of scope checks). The weather package is the sample protected
// resource that ties them together.
package identity
