package identity

import (
	"context"
	"time"
)

// InteractionType selects how the user is sent to the identity provider.
type InteractionType string

const (
	// InteractionRedirect navigates away; the result is delivered to HandleRedirect.
	InteractionRedirect InteractionType = "redirect"

	// InteractionPopup opens a separate window and blocks until the callback arrives.
	InteractionPopup InteractionType = "popup"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	return t == InteractionRedirect || t == InteractionPopup
}

// InteractionStatus is the single process-wide flag describing which
// interactive flow, if any, is running.
type InteractionStatus string

const (
	InteractionNone           InteractionStatus = "none"
	InteractionStartup        InteractionStatus = "startup"
	InteractionLogin          InteractionStatus = "login"
	InteractionLogout         InteractionStatus = "logout"
	InteractionHandleRedirect InteractionStatus = "handleRedirect"
	InteractionAcquireToken   InteractionStatus = "acquireToken"
)

// Account is an authenticated user as known to the client.
type Account struct {
	// HomeAccountID is "<oid>.<tid>" and is the cache partition key.
	HomeAccountID  string `json:"home_account_id"`
	LocalAccountID string `json:"local_account_id"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	// Environment is the identity provider host the account signed in with.
	Environment string `json:"environment"`
}

// IsZero reports whether a is empty.
func (a Account) IsZero() bool {
	return a.HomeAccountID == ""
}

// AccessToken is a cached bearer credential for one scope set.
type AccessToken struct {
	Secret        string    `json:"secret"`
	TokenType     string    `json:"token_type"`
	ExpiresOn     time.Time `json:"expires_on"`
	Scopes        []string  `json:"scopes"`
	HomeAccountID string    `json:"home_account_id"`
	Authority     string    `json:"authority"`
	ClientID      string    `json:"client_id"`
}

// TokenRequest asks for an access token. A nil Account means the active one.
type TokenRequest struct {
	Scopes       []string
	Account      *Account
	ForceRefresh bool
}

// LoginRequest starts an interactive sign-in.
type LoginRequest struct {
	InteractionType InteractionType
	// Scopes are the resource scopes to consent to; OIDC scopes are added.
	Scopes []string
	// Prompt is passed through as the prompt parameter (login, consent,
	// select_account, none). Empty lets the provider decide.
	Prompt    string
	LoginHint string
}

// LogoutRequest signs the active account out.
type LogoutRequest struct {
	InteractionType InteractionType
	// PostLogoutRedirectURI overrides the configured one when set.
	PostLogoutRedirectURI string
}

// AuthenticationResult is returned by every successful acquisition path.
type AuthenticationResult struct {
	Account     Account
	AccessToken string
	TokenType   string
	ExpiresOn   time.Time
	Scopes      []string
	IDToken     string
	// FromCache is true when no network call was made.
	FromCache     bool
	CorrelationID string
}

// TokenResponse represents the token endpoint response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (usually "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the refresh token (optional)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the scope of the access token
	Scope string `json:"scope,omitempty"`

	// IDToken is the OpenID Connect ID token (optional)
	IDToken string `json:"id_token,omitempty"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points to error documentation
	ErrorURI string `json:"error_uri,omitempty"`
}

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata (RFC 9728)
type ProtectedResourceMetadata struct {
	// Resource is the identifier for the protected resource
	Resource string `json:"resource"`

	// AuthorizationServers lists the authorization servers that can issue tokens for this resource
	AuthorizationServers []string `json:"authorization_servers"`

	// BearerMethodsSupported lists the ways Bearer tokens can be sent (RFC 6750)
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scopes understood by this resource
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// Principal is the identity established by token validation for one inbound
// request. It is read-only once attached to the request context.
type Principal struct {
	Subject   string
	ObjectID  string
	TenantID  string
	Name      string
	Username  string
	Issuer    string
	Audience  []string
	Scopes    []string
	Roles     []string
	ExpiresAt time.Time
}

// Permissions returns delegated scopes followed by application roles.
func (p *Principal) Permissions() []string {
	out := make([]string, 0, len(p.Scopes)+len(p.Roles))
	out = append(out, p.Scopes...)
	return append(out, p.Roles...)
}

type contextKey string

const principalKey contextKey = "principal"

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the validated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
