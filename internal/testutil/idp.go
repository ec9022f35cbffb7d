package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/welkome/identity/internal/util"
)

// Defaults used by NewIdP.
const (
	DefaultTenantID  = "11111111-2222-3333-4444-555555555555"
	DefaultClientID  = "spa-client-id"
	DefaultObjectID  = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	DefaultUsername  = "ada@contoso.example"
	DefaultName      = "Ada Lovelace"
	DefaultSigningID = "test-key-1"
)

// IdPUser is the single user the fake provider signs in.
type IdPUser struct {
	ObjectID string
	Name     string
	Username string
}

type codeGrant struct {
	clientID    string
	redirectURI string
	challenge   string
	nonce       string
	scopes      []string
}

type refreshGrant struct {
	clientID string
}

// IdP is an in-process OpenID Connect provider with the Microsoft identity
// platform URL layout:
//
//	{base}/{tenant}/v2.0/.well-known/openid-configuration
//	{base}/{tenant}/oauth2/v2.0/authorize
//	{base}/{tenant}/oauth2/v2.0/token
//	{base}/{tenant}/oauth2/v2.0/logout
//	{base}/{tenant}/discovery/v2.0/keys
//
// The authorize endpoint approves every request for User without showing
// a page. Tokens are RS256 JWTs; access tokens carry the resource in aud and
// the short scope names in scp, like Azure AD v2 tokens do.
type IdP struct {
	Server   *httptest.Server
	TenantID string
	User     IdPUser

	key *rsa.PrivateKey
	kid string

	mu            sync.Mutex
	clock         func() time.Time
	tokenLifetime time.Duration
	codes         map[string]codeGrant
	refreshTokens map[string]refreshGrant
	rotateRefresh bool
	refreshError  string
	denyLogin     string
	badNonce      bool

	tokenRequests   int
	refreshRequests int
	lastTokenForm   url.Values
	lastHeaders     http.Header
	logoutRequests  []url.Values
}

// NewIdP starts a fake provider that is shut down with the test.
func NewIdP(t *testing.T) *IdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	p := &IdP{
		TenantID: DefaultTenantID,
		User: IdPUser{
			ObjectID: DefaultObjectID,
			Name:     DefaultName,
			Username: DefaultUsername,
		},
		key:           key,
		kid:           DefaultSigningID,
		clock:         time.Now,
		tokenLifetime: time.Hour,
		codes:         make(map[string]codeGrant),
		refreshTokens: make(map[string]refreshGrant),
	}

	mux := http.NewServeMux()
	base := "/" + p.TenantID
	mux.HandleFunc("GET "+base+"/v2.0/.well-known/openid-configuration", p.serveDiscovery)
	mux.HandleFunc("GET "+base+"/oauth2/v2.0/authorize", p.serveAuthorize)
	mux.HandleFunc("POST "+base+"/oauth2/v2.0/token", p.serveToken)
	mux.HandleFunc("GET "+base+"/oauth2/v2.0/logout", p.serveLogout)
	mux.HandleFunc("GET "+base+"/discovery/v2.0/keys", p.serveKeys)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Authority is the authority URL clients are configured with.
func (p *IdP) Authority() string {
	return p.Server.URL + "/" + p.TenantID
}

// Issuer is the iss claim of every token.
func (p *IdP) Issuer() string {
	return p.Authority() + "/v2.0"
}

// JWKSURL is the key set location advertised by discovery.
func (p *IdP) JWKSURL() string {
	return p.Authority() + "/discovery/v2.0/keys"
}

// HomeAccountID is the home account id clients derive for User.
func (p *IdP) HomeAccountID() string {
	return p.User.ObjectID + "." + p.TenantID
}

// SetClock makes the provider stamp tokens with now().
func (p *IdP) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = now
}

// SetTokenLifetime sets the lifetime of issued access tokens.
func (p *IdP) SetTokenLifetime(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenLifetime = d
}

// RotateRefreshTokens makes every refresh grant return a new refresh token
// and invalidate the old one.
func (p *IdP) RotateRefreshTokens(rotate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotateRefresh = rotate
}

// FailRefresh makes refresh grants fail with the given OAuth error code.
// An empty code restores normal behavior.
func (p *IdP) FailRefresh(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshError = code
}

// DenyLogin makes the authorize endpoint redirect back with the given error.
func (p *IdP) DenyLogin(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyLogin = code
}

// TamperNonce makes issued ID tokens carry a nonce different from the request.
func (p *IdP) TamperNonce(tamper bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badNonce = tamper
}

// TokenRequests returns how many token endpoint calls were made.
func (p *IdP) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// RefreshRequests returns how many refresh grants were made.
func (p *IdP) RefreshRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshRequests
}

// LastTokenRequest returns the form and headers of the latest token call.
func (p *IdP) LastTokenRequest() (url.Values, http.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenForm, p.lastHeaders
}

// LogoutRequests returns the query of every end-session call.
func (p *IdP) LogoutRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]url.Values, len(p.logoutRequests))
	copy(out, p.logoutRequests)
	return out
}

// Authorize plays the browser for one authorize request: it sends authURL to
// the provider without following the redirect and returns the callback URL
// the provider redirected to.
func (p *IdP) Authorize(authURL string) (string, error) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(authURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("authorize returned status %d", resp.StatusCode)
	}
	return resp.Header.Get("Location"), nil
}

// MintAccessToken issues an access token for audience carrying the given
// scp and roles claims, as if it came out of the token endpoint.
func (p *IdP) MintAccessToken(audience string, scp []string, roles []string, lifetime time.Duration) string {
	now := p.now()
	claims := jwt.MapClaims{
		"iss":                p.Issuer(),
		"aud":                audience,
		"sub":                p.User.ObjectID,
		"oid":                p.User.ObjectID,
		"tid":                p.TenantID,
		"name":               p.User.Name,
		"preferred_username": p.User.Username,
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(lifetime).Unix(),
		"ver":                "2.0",
	}
	if len(scp) > 0 {
		claims["scp"] = strings.Join(scp, " ")
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	return p.sign(claims)
}

// SignWithForeignKey signs claims with a key the provider never published.
func (p *IdP) SignWithForeignKey(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func (p *IdP) now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock()
}

func (p *IdP) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.key)
	if err != nil {
		panic(fmt.Sprintf("failed to sign token: %v", err))
	}
	return signed
}

func (p *IdP) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	base := p.Authority()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                           p.Issuer(),
		"authorization_endpoint":           base + "/oauth2/v2.0/authorize",
		"token_endpoint":                   base + "/oauth2/v2.0/token",
		"end_session_endpoint":             base + "/oauth2/v2.0/logout",
		"jwks_uri":                         p.JWKSURL(),
		"response_types_supported":         []string{"code", "id_token", "code id_token"},
		"scopes_supported":                 []string{"openid", "profile", "email", "offline_access"},
		"code_challenge_methods_supported": []string{"S256"},
	})
}

func (p *IdP) serveAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	callback, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	params := url.Values{}
	params.Set("state", q.Get("state"))

	p.mu.Lock()
	deny := p.denyLogin
	p.mu.Unlock()

	switch {
	case deny != "":
		params.Set("error", deny)
		params.Set("error_description", "AADSTS65004: User declined to consent to access the app.")
	case q.Get("response_type") != "code" || q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "":
		params.Set("error", "invalid_request")
		params.Set("error_description", "authorization code flow with PKCE S256 is required")
	default:
		code := util.RandomString(32)
		p.mu.Lock()
		p.codes[code] = codeGrant{
			clientID:    q.Get("client_id"),
			redirectURI: redirectURI,
			challenge:   q.Get("code_challenge"),
			nonce:       q.Get("nonce"),
			scopes:      strings.Fields(q.Get("scope")),
		}
		p.mu.Unlock()
		params.Set("code", code)
	}

	callback.RawQuery = params.Encode()
	http.Redirect(w, r, callback.String(), http.StatusFound)
}

func (p *IdP) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	p.mu.Lock()
	p.tokenRequests++
	p.lastTokenForm = r.PostForm
	p.lastHeaders = r.Header.Clone()
	p.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.handleCodeGrant(w, r)
	case "refresh_token":
		p.handleRefreshGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
	}
}

func (p *IdP) handleCodeGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	code := form.Get("code")

	p.mu.Lock()
	grant, ok := p.codes[code]
	delete(p.codes, code)
	badNonce := p.badNonce
	p.mu.Unlock()

	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "AADSTS70008: The provided authorization code has expired or was already redeemed.")
		return
	}
	if form.Get("client_id") != grant.clientID || form.Get("redirect_uri") != grant.redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id or redirect_uri does not match the authorization request")
		return
	}
	sum := sha256.Sum256([]byte(form.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != grant.challenge {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "AADSTS501481: The Code_Verifier does not match the code_challenge.")
		return
	}

	nonce := grant.nonce
	if badNonce {
		nonce = "tampered-" + nonce
	}
	p.writeTokens(w, grant.clientID, grant.scopes, nonce, true)
}

func (p *IdP) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	rt := form.Get("refresh_token")

	p.mu.Lock()
	p.refreshRequests++
	failWith := p.refreshError
	grant, ok := p.refreshTokens[rt]
	rotate := p.rotateRefresh
	if ok && rotate {
		delete(p.refreshTokens, rt)
	}
	p.mu.Unlock()

	if failWith != "" {
		writeOAuthError(w, http.StatusBadRequest, failWith, "AADSTS50076: refresh refused by test provider")
		return
	}
	if !ok || grant.clientID != form.Get("client_id") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "AADSTS9002313: Invalid refresh token.")
		return
	}

	p.writeTokens(w, grant.clientID, strings.Fields(form.Get("scope")), "", rotate)
}

// writeTokens issues an access token for the first resource in scopes and,
// when openid was requested, an ID token.
func (p *IdP) writeTokens(w http.ResponseWriter, clientID string, scopes []string, nonce string, newRefreshToken bool) {
	p.mu.Lock()
	lifetime := p.tokenLifetime
	p.mu.Unlock()

	audience, short := splitResourceScopes(scopes)
	if audience == "" {
		audience = "00000003-0000-0000-c000-000000000000"
		short = []string{"User.Read"}
	}

	resp := map[string]any{
		"token_type":   "Bearer",
		"scope":        strings.Join(scopes, " "),
		"expires_in":   int64(lifetime / time.Second),
		"access_token": p.MintAccessToken(audience, short, nil, lifetime),
	}

	if newRefreshToken && containsScope(scopes, "offline_access") {
		rt := util.RandomString(48)
		p.mu.Lock()
		p.refreshTokens[rt] = refreshGrant{clientID: clientID}
		p.mu.Unlock()
		resp["refresh_token"] = rt
	}

	if containsScope(scopes, "openid") {
		now := p.now()
		claims := jwt.MapClaims{
			"iss":                p.Issuer(),
			"aud":                clientID,
			"sub":                "pairwise-" + p.User.ObjectID,
			"oid":                p.User.ObjectID,
			"tid":                p.TenantID,
			"name":               p.User.Name,
			"preferred_username": p.User.Username,
			"iat":                now.Unix(),
			"nbf":                now.Unix(),
			"exp":                now.Add(time.Hour).Unix(),
			"ver":                "2.0",
		}
		if nonce != "" {
			claims["nonce"] = nonce
		}
		resp["id_token"] = p.sign(claims)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (p *IdP) serveLogout(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.logoutRequests = append(p.logoutRequests, r.URL.Query())
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body>You signed out of your account.</body></html>"))
}

func (p *IdP) serveKeys(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": p.kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// splitResourceScopes returns the resource of the first api scope and the
// short names of every scope on that resource.
func splitResourceScopes(scopes []string) (string, []string) {
	var audience string
	var short []string
	for _, s := range scopes {
		i := strings.LastIndex(s, "/")
		if i <= 0 {
			continue
		}
		resource, name := s[:i], s[i+1:]
		if audience == "" {
			audience = resource
		}
		if resource == audience {
			short = append(short, name)
		}
	}
	return audience, short
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
