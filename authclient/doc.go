// Package authclient signs users in against an OpenID Connect provider and
// hands out access tokens for protected resources.
//
// It is the public client half of the module: the authorization code flow
// with PKCE for interactive sign-in, a token cache, and silent renewal with
// the refresh token grant. Exactly one interactive flow runs at a time per
// client; a second one fails with identity.ErrInteractionInProgress.
//
// # Interaction types
//
// A popup login binds the loopback redirect URI, opens the authorize URL
// through the Navigator and blocks until the provider calls back:
//
//	client, err := authclient.New(authclient.Config{
//		ClientID:    "spa-client-id",
//		Authority:   "https://login.microsoftonline.com/<tenant-id>",
//		RedirectURI: "http://127.0.0.1:0/",
//		Scopes:      []string{"api://weather-api/Forecast.Read"},
//		Cache:       cache.New(memory.New(), cache.Options{}),
//		Navigator:   authclient.NavigatorFunc(openBrowser),
//	})
//	result, err := client.Login(ctx, identity.LoginRequest{
//		InteractionType: identity.InteractionPopup,
//	})
//
// A redirect login stores the pending request in the cache, navigates and
// returns identity.ErrNavigationStarted. The application later passes the
// URL it was redirected to into HandleRedirect, possibly from a new process
// that called Initialize first.
//
// # Silent acquisition
//
// AcquireTokenSilent serves tokens from the cache while they are valid
// beyond the refresh offset and otherwise redeems the cached refresh token.
// Failures that only the user can resolve match identity.ErrInteractionRequired.
// AcquireToken adds the interactive fallback selected by FallbackPolicy.
package authclient
