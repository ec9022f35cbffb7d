package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/welkome/identity"
	"github.com/welkome/identity/cache"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/internal/util"
)

// maxTokenResponseSize caps token endpoint response bodies.
const maxTokenResponseSize = 1 << 20

// tokenData is what a token endpoint call produced.
type tokenData struct {
	accessToken  string
	tokenType    string
	expiresOn    time.Time
	refreshToken string
	idToken      string
}

func (td tokenData) result(account identity.Account, scopes []string, fromCache bool, corrID string) *identity.AuthenticationResult {
	tokenType := td.tokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &identity.AuthenticationResult{
		Account:       account,
		AccessToken:   td.accessToken,
		TokenType:     tokenType,
		ExpiresOn:     td.expiresOn,
		Scopes:        scopes,
		IDToken:       td.idToken,
		FromCache:     fromCache,
		CorrelationID: corrID,
	}
}

// storeTokens caches the access token under scopes and any refresh or ID
// token that came with it. A new refresh token replaces the old one.
func (c *Client) storeTokens(ctx context.Context, account identity.Account, td tokenData, scopes []string) error {
	if td.accessToken != "" && len(scopes) > 0 {
		err := c.cache.SaveAccessToken(ctx, identity.AccessToken{
			Secret:        td.accessToken,
			TokenType:     td.tokenType,
			ExpiresOn:     td.expiresOn,
			Scopes:        scopes,
			HomeAccountID: account.HomeAccountID,
			Authority:     c.authority.URL,
			ClientID:      c.cfg.ClientID,
		})
		if err != nil {
			return fmt.Errorf("failed to cache access token: %w", err)
		}
	}
	if td.refreshToken != "" {
		if err := c.cache.SaveRefreshToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID, td.refreshToken); err != nil {
			return fmt.Errorf("failed to cache refresh token: %w", err)
		}
	}
	if td.idToken != "" {
		if err := c.cache.SaveIDToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID, td.idToken); err != nil {
			return fmt.Errorf("failed to cache id token: %w", err)
		}
	}
	return nil
}

// AcquireTokenSilent returns an access token for req.Scopes without user
// interaction: from the cache when a token for exactly those resource
// scopes is valid beyond the refresh offset, otherwise by redeeming the
// cached refresh token. Errors that need the user match
// identity.ErrInteractionRequired with errors.Is.
func (c *Client) AcquireTokenSilent(ctx context.Context, req identity.TokenRequest) (*identity.AuthenticationResult, error) {
	ctx, span := c.tracer.Start(ctx, "authclient.acquire_token_silent")
	defer span.End()

	scopes := identity.ResourceScopes(req.Scopes)
	instrumentation.AddTokenRequestAttributes(span, c.cfg.ClientID, c.authority.URL, scopes)
	if len(scopes) == 0 {
		err := identity.ErrInvalidRequest("at least one resource scope is required")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	account, err := c.resolveAccount(ctx, req.Account)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	if !req.ForceRefresh {
		token, err := c.cache.AccessToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID, scopes)
		switch {
		case err == nil:
			c.metrics.RecordTokenAcquisition(ctx, instrumentation.SourceCache, float64(time.Since(start).Milliseconds()))
			span.SetAttributes(attrTokenSource(instrumentation.SourceCache))
			instrumentation.SetSpanSuccess(span)
			idToken, _ := c.cache.IDToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID)
			return tokenData{
				accessToken: token.Secret,
				tokenType:   token.TokenType,
				expiresOn:   token.ExpiresOn,
				idToken:     idToken,
			}.result(account, token.Scopes, true, ""), nil
		case errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrTokenExpired):
		default:
			instrumentation.RecordError(span, err)
			return nil, err
		}
	}

	result, err := c.refresh(ctx, account, scopes)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	c.metrics.RecordTokenAcquisition(ctx, instrumentation.SourceRefresh, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attrTokenSource(instrumentation.SourceRefresh))
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

// refresh redeems the account's refresh token for scopes. The grant is
// posted directly so the scope parameter can be sent, which the
// Microsoft identity platform needs to pick the resource.
func (c *Client) refresh(ctx context.Context, account identity.Account, scopes []string) (*identity.AuthenticationResult, error) {
	refreshToken, err := c.cache.RefreshToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: no refresh token cached for account", identity.ErrInteractionRequired)
		}
		return nil, err
	}

	doc, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	ctx, corrID := withCorrelationID(ctx)
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
		"scope":         {identity.JoinScopes(identity.WithOIDCScopes(scopes))},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordRefreshFailure(ctx, "network")
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		oauthErr := tokenEndpointError(resp.StatusCode, body, corrID)
		c.metrics.RecordRefreshFailure(ctx, oauthErr.Code)
		c.auditor.LogRefreshFailed(account.HomeAccountID, c.cfg.ClientID, oauthErr.Code)
		if oauthErr.Code == identity.ErrorCodeInvalidGrant {
			c.dropRefreshToken(ctx, account, refreshToken)
		}
		c.logger.Debug("Refresh token grant rejected",
			"account", util.SafeTruncate(account.HomeAccountID, idLogLength),
			"error", oauthErr.Code,
			"correlation_id", corrID)
		return nil, fmt.Errorf("token refresh failed: %w", oauthErr)
	}

	var tr identity.TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access token")
	}

	td := tokenData{
		accessToken:  tr.AccessToken,
		tokenType:    tr.TokenType,
		expiresOn:    c.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		refreshToken: tr.RefreshToken,
		idToken:      tr.IDToken,
	}
	if err := c.storeTokens(ctx, account, td, scopes); err != nil {
		return nil, err
	}

	rotated := tr.RefreshToken != "" && tr.RefreshToken != refreshToken
	c.auditor.LogTokenRefreshed(account.HomeAccountID, c.cfg.ClientID, scopes, rotated)

	if td.idToken == "" {
		td.idToken, _ = c.cache.IDToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID)
	}
	return td.result(account, scopes, false, corrID), nil
}

// dropRefreshToken removes a refresh token the provider rejected, unless a
// concurrent refresh has already replaced it.
func (c *Client) dropRefreshToken(ctx context.Context, account identity.Account, rejected string) {
	current, err := c.cache.RefreshToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID)
	if err != nil || current != rejected {
		return
	}
	if err := c.cache.RemoveRefreshToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID); err != nil {
		c.logger.Warn("Failed to remove rejected refresh token", "error", err)
	}
}

func attrTokenSource(source string) attribute.KeyValue {
	return attribute.String(instrumentation.AttrTokenSource, source)
}

// tokenEndpointError decodes an OAuth error body, falling back to the
// HTTP status when the body is not an error document.
func tokenEndpointError(status int, body []byte, corrID string) *identity.OAuthError {
	var er identity.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		oauthErr := identity.ErrServerError(fmt.Sprintf("token endpoint returned status %d", status))
		oauthErr.Status = status
		oauthErr.CorrelationID = corrID
		return oauthErr
	}
	return &identity.OAuthError{
		Code:          er.Error,
		Description:   er.ErrorDescription,
		Status:        status,
		CorrelationID: corrID,
	}
}

// AcquireToken tries AcquireTokenSilent first. When that needs the user and
// the fallback policy is FallbackInteractive, it runs an interactive flow of
// the given type under InteractionAcquireToken, hinting the account's
// username. With InteractionRedirect the result arrives via HandleRedirect
// and AcquireToken returns identity.ErrNavigationStarted.
func (c *Client) AcquireToken(ctx context.Context, req identity.TokenRequest, interactionType identity.InteractionType) (*identity.AuthenticationResult, error) {
	result, err := c.AcquireTokenSilent(ctx, req)
	if err == nil {
		return result, nil
	}
	if !isInteractionNeeded(err) || c.cfg.FallbackPolicy == FallbackNone {
		return nil, err
	}
	if !interactionType.Valid() {
		return nil, fmt.Errorf("unknown interaction type %q", interactionType)
	}

	c.logger.Debug("Silent acquisition needs interaction", "error", err)

	var loginHint string
	if account, accErr := c.resolveAccount(ctx, req.Account); accErr == nil {
		loginHint = account.Username
	}

	if err := c.begin(ctx, identity.InteractionAcquireToken, interactionType); err != nil {
		return nil, err
	}
	return c.interactive(ctx, identity.InteractionAcquireToken, identity.LoginRequest{
		InteractionType: interactionType,
		Scopes:          req.Scopes,
		LoginHint:       loginHint,
	})
}
