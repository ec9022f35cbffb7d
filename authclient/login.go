package authclient

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/welkome/identity"
	"github.com/welkome/identity/cache"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/internal/util"
	"github.com/welkome/identity/providers/oidc"
	"github.com/welkome/identity/security"
)

const (
	// stateBytes and nonceBytes are the entropy of the state and nonce parameters.
	stateBytes = 32
	nonceBytes = 32

	callbackShutdownTimeout = 5 * time.Second
)

// authRequest is one authorization code request in flight.
type authRequest struct {
	state       string
	nonce       string
	verifier    string
	redirectURI string
	scopes      []string
	url         string
}

// Login signs a user in interactively and makes the account active.
//
// With InteractionPopup, Login blocks until the provider redirects back to
// the loopback redirect URI, then redeems the code. With
// InteractionRedirect, Login records the pending request in the cache,
// navigates and returns identity.ErrNavigationStarted; the flow is
// completed by HandleRedirect.
func (c *Client) Login(ctx context.Context, req identity.LoginRequest) (*identity.AuthenticationResult, error) {
	if !req.InteractionType.Valid() {
		return nil, fmt.Errorf("unknown interaction type %q", req.InteractionType)
	}
	if err := c.begin(ctx, identity.InteractionLogin, req.InteractionType); err != nil {
		return nil, err
	}
	return c.interactive(ctx, identity.InteractionLogin, req)
}

// interactive runs an authorization code flow under status, which the
// caller already entered.
func (c *Client) interactive(ctx context.Context, status identity.InteractionStatus, req identity.LoginRequest) (*identity.AuthenticationResult, error) {
	ctx, span := c.tracer.Start(ctx, "authclient.interactive")
	defer span.End()
	instrumentation.AddInteractionAttributes(span, string(status), string(req.InteractionType))

	scopes := identity.ResourceScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	if c.cfg.Navigator == nil {
		c.interaction.End(status)
		err := fmt.Errorf("no navigator configured for interactive flows")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if req.InteractionType == identity.InteractionRedirect {
		if err := c.startRedirect(ctx, status, req, scopes); err != nil {
			c.interaction.End(status)
			instrumentation.RecordError(span, err)
			return nil, err
		}
		return nil, identity.ErrNavigationStarted
	}

	defer c.interaction.End(status)
	result, err := c.popup(ctx, req, scopes)
	if err != nil {
		c.auditor.LogLoginFailed(c.cfg.ClientID, err.Error())
		instrumentation.RecordError(span, err)
		return nil, err
	}
	c.auditor.LogLogin(result.Account.HomeAccountID, c.cfg.ClientID, string(req.InteractionType))
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (c *Client) oauthConfig(doc *oidc.DiscoveryDocument, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      identity.WithOIDCScopes(scopes),
	}
}

func (c *Client) newAuthRequest(doc *oidc.DiscoveryDocument, redirectURI string, req identity.LoginRequest, scopes []string) authRequest {
	ar := authRequest{
		state:       util.RandomString(stateBytes),
		nonce:       util.RandomString(nonceBytes),
		verifier:    oauth2.GenerateVerifier(),
		redirectURI: redirectURI,
		scopes:      scopes,
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(ar.verifier),
		oauth2.SetAuthURLParam("nonce", ar.nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
	}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}

	ar.url = c.oauthConfig(doc, redirectURI, scopes).AuthCodeURL(ar.state, opts...)
	return ar
}

func (c *Client) startRedirect(ctx context.Context, status identity.InteractionStatus, req identity.LoginRequest, scopes []string) error {
	doc, err := c.endpoints(ctx)
	if err != nil {
		return err
	}

	ar := c.newAuthRequest(doc, c.cfg.RedirectURI, req, scopes)
	err = c.cache.SavePending(ctx, cache.PendingInteraction{
		State:       ar.state,
		Kind:        status,
		Verifier:    ar.verifier,
		Nonce:       ar.nonce,
		Scopes:      ar.scopes,
		RedirectURI: ar.redirectURI,
	})
	if err != nil {
		return fmt.Errorf("failed to save pending interaction: %w", err)
	}

	if err := c.cfg.Navigator.Navigate(ctx, ar.url); err != nil {
		_, _ = c.cache.TakePending(ctx, ar.state)
		return fmt.Errorf("failed to navigate to authorize endpoint: %w", err)
	}

	c.logger.Info("Redirecting to identity provider", "status", status)
	return nil
}

// popup listens on the loopback redirect URI, opens the authorize URL and
// waits for the provider to call back.
func (c *Client) popup(ctx context.Context, req identity.LoginRequest, scopes []string) (*identity.AuthenticationResult, error) {
	doc, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	ln, redirectURI, err := listenLoopback(c.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	callbacks := make(chan url.Values, 1)
	srv := &http.Server{
		Handler:           callbackHandler(redirectURI, callbacks),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ar := c.newAuthRequest(doc, redirectURI, req, scopes)
	if err := c.cfg.Navigator.Navigate(ctx, ar.url); err != nil {
		return nil, fmt.Errorf("failed to open popup: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.PopupTimeout)
	defer cancel()

	var query url.Values
	select {
	case query = <-callbacks:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("popup login did not complete: %w", waitCtx.Err())
	}

	if query.Get("state") != ar.state {
		c.auditStateMismatch()
		return nil, identity.ErrStateMismatch
	}
	if err := callbackError(query); err != nil {
		return nil, err
	}
	return c.redeem(ctx, doc, ar, query.Get("code"))
}

// HandleRedirect completes a redirect login or logout from the URL the
// provider sent the user back to. It returns (nil, nil) when callbackURL
// carries no authorization response, or when it completes a logout. Every
// outcome clears the pending interactions.
func (c *Client) HandleRedirect(ctx context.Context, callbackURL string) (*identity.AuthenticationResult, error) {
	err := c.interaction.Transition(identity.InteractionHandleRedirect,
		identity.InteractionLogin,
		identity.InteractionLogout,
		identity.InteractionAcquireToken,
		identity.InteractionNone)
	if err != nil {
		c.metrics.RecordInteractionConflict(ctx, string(identity.InteractionHandleRedirect), string(c.interaction.Status()))
		return nil, err
	}
	defer c.interaction.End(identity.InteractionHandleRedirect)
	c.metrics.RecordInteraction(ctx, string(identity.InteractionHandleRedirect), string(identity.InteractionRedirect))

	ctx, span := c.tracer.Start(ctx, "authclient.handle_redirect")
	defer span.End()

	query, err := responseParams(callbackURL)
	if err != nil {
		_ = c.cache.ClearPending(ctx)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	state := query.Get("state")
	if !isAuthorizationResponse(query) {
		_ = c.cache.ClearPending(ctx)
		return nil, nil
	}

	pending, err := c.cache.TakePending(ctx, state)
	if clearErr := c.cache.ClearPending(ctx); clearErr != nil {
		c.logger.Warn("Failed to clear pending interactions", "error", clearErr)
	}
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.auditStateMismatch()
			instrumentation.RecordError(span, identity.ErrStateMismatch)
			return nil, identity.ErrStateMismatch
		}
		return nil, err
	}

	if err := callbackError(query); err != nil {
		if pending.Kind != identity.InteractionLogout {
			c.auditor.LogLoginFailed(c.cfg.ClientID, err.Error())
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if pending.Kind == identity.InteractionLogout {
		c.logger.Info("Completed redirect logout")
		return nil, nil
	}

	doc, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.redeem(ctx, doc, authRequest{
		state:       pending.State,
		nonce:       pending.Nonce,
		verifier:    pending.Verifier,
		redirectURI: pending.RedirectURI,
		scopes:      pending.Scopes,
	}, query.Get("code"))
	if err != nil {
		c.auditor.LogLoginFailed(c.cfg.ClientID, err.Error())
		instrumentation.RecordError(span, err)
		return nil, err
	}

	c.auditor.LogLogin(result.Account.HomeAccountID, c.cfg.ClientID, string(identity.InteractionRedirect))
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

// redeem exchanges an authorization code, verifies the ID token nonce and
// stores the account and its tokens.
func (c *Client) redeem(ctx context.Context, doc *oidc.DiscoveryDocument, ar authRequest, code string) (*identity.AuthenticationResult, error) {
	if code == "" {
		return nil, identity.ErrInvalidRequest("authorization response carries no code")
	}

	start := time.Now()
	ctx, corrID := withCorrelationID(ctx)
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauthConfig(doc, ar.redirectURI, ar.scopes).Exchange(exchangeCtx, code, oauth2.VerifierOption(ar.verifier))
	if err != nil {
		return nil, fmt.Errorf("code redemption failed: %w", exchangeError(err, corrID))
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, fmt.Errorf("token response carries no id token")
	}
	claims, err := parseIDToken(rawIDToken)
	if err != nil {
		return nil, err
	}
	if claims.Nonce != ar.nonce {
		return nil, identity.ErrNonceMismatch
	}

	account, err := accountFromClaims(claims, c.authority.Host, c.authority.Tenant)
	if err != nil {
		return nil, err
	}

	td := tokenData{
		accessToken:  tok.AccessToken,
		tokenType:    tok.TokenType,
		expiresOn:    c.expiresOn(tok),
		refreshToken: tok.RefreshToken,
		idToken:      rawIDToken,
	}
	if err := c.cache.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to cache account: %w", err)
	}
	if err := c.storeTokens(ctx, account, td, ar.scopes); err != nil {
		return nil, err
	}
	if err := c.SetActiveAccount(ctx, account); err != nil {
		return nil, err
	}

	c.metrics.RecordTokenAcquisition(ctx, instrumentation.SourceInteractive, float64(time.Since(start).Milliseconds()))
	c.logger.Info("Signed in",
		"account", util.SafeTruncate(account.HomeAccountID, idLogLength),
		"correlation_id", corrID)

	return td.result(account, ar.scopes, false, corrID), nil
}

// expiresOn derives the expiry from expires_in against the client clock.
func (c *Client) expiresOn(tok *oauth2.Token) time.Time {
	var seconds int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds > 0 {
		return c.clock.Now().Add(time.Duration(seconds) * time.Second)
	}
	return tok.Expiry
}

func (c *Client) auditStateMismatch() {
	c.auditor.LogEvent(security.Event{
		Type:     security.EventStateMismatch,
		ClientID: c.cfg.ClientID,
	})
}

// exchangeError converts a token endpoint failure into an *identity.OAuthError.
func exchangeError(err error, corrID string) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	status := http.StatusBadGateway
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	code := re.ErrorCode
	if code == "" {
		code = identity.ErrorCodeServerError
	}
	return &identity.OAuthError{
		Code:          code,
		Description:   re.ErrorDescription,
		Status:        status,
		CorrelationID: corrID,
	}
}

// callbackError returns the provider error carried by an authorization
// response, if any.
func callbackError(query url.Values) error {
	code := query.Get("error")
	switch code {
	case "":
		return nil
	case identity.ErrorCodeAccessDenied:
		return identity.ErrAccessDenied(query.Get("error_description"))
	}
	return &identity.OAuthError{
		Code:        code,
		Description: query.Get("error_description"),
		Status:      http.StatusBadRequest,
	}
}

// responseParams extracts the authorization response from the query, or
// from the fragment for providers that answer with response_mode=fragment.
func responseParams(callbackURL string) (url.Values, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	query := u.Query()
	if len(query) == 0 && u.Fragment != "" {
		return url.ParseQuery(u.Fragment)
	}
	return query, nil
}

// listenLoopback binds the loopback redirect URI. Port 0 picks a free port;
// the returned redirect URI carries the bound port.
func listenLoopback(redirectURI string) (net.Listener, string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" || !util.IsLoopbackHostname(u.Hostname()) {
		return nil, "", fmt.Errorf("popup login needs an http loopback redirect URI, got %q", redirectURI)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on redirect URI: %w", err)
	}

	if port == "0" {
		bound := ln.Addr().(*net.TCPAddr).Port
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(bound))
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return ln, u.String(), nil
}

// isAuthorizationResponse reports whether query carries an authorization
// response rather than a stray hit on the redirect URI.
func isAuthorizationResponse(query url.Values) bool {
	return query.Get("state") != "" || query.Get("code") != "" || query.Get("error") != ""
}

// callbackHandler delivers the first authorization response received on
// the redirect URI path. Requests without state, code or error are answered
// with 400 and do not count.
func callbackHandler(redirectURI string, callbacks chan<- url.Values) http.Handler {
	path := "/"
	if u, err := url.Parse(redirectURI); err == nil && u.Path != "" {
		path = u.Path
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		query := r.URL.Query()
		if !isAuthorizationResponse(query) {
			http.Error(w, "no authorization response in request", http.StatusBadRequest)
			return
		}
		select {
		case callbacks <- query:
		default:
		}

		message := "Sign-in complete. You can close this window."
		if e := query.Get("error"); e != "" {
			message = "Sign-in failed: " + e
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><body><p>%s</p></body></html>", html.EscapeString(message))
	})
}
