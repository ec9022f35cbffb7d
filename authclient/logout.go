package authclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/welkome/identity"
	"github.com/welkome/identity/cache"
	"github.com/welkome/identity/internal/util"
)

// Logout signs the active account out. The account and all of its tokens
// are removed from the cache before the provider's end-session endpoint is
// opened, so the local sign-out holds even if navigation fails.
//
// With InteractionRedirect and a post-logout redirect URI, Logout returns
// identity.ErrNavigationStarted and the status stays InteractionLogout
// until HandleRedirect runs on the return URL.
func (c *Client) Logout(ctx context.Context, req identity.LogoutRequest) error {
	if !req.InteractionType.Valid() {
		return fmt.Errorf("unknown interaction type %q", req.InteractionType)
	}

	account, err := c.cache.ActiveAccount(ctx)
	if err != nil {
		return err
	}

	if err := c.begin(ctx, identity.InteractionLogout, req.InteractionType); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "authclient.logout")
	defer span.End()

	idToken, _ := c.cache.IDToken(ctx, account.HomeAccountID, c.authority.URL, c.cfg.ClientID)
	if err := c.cache.RemoveAccount(ctx, account.HomeAccountID); err != nil {
		c.interaction.End(identity.InteractionLogout)
		return fmt.Errorf("failed to remove account: %w", err)
	}
	c.auditor.LogLogout(account.HomeAccountID, c.cfg.ClientID)
	c.logger.Info("Signed out",
		"account", util.SafeTruncate(account.HomeAccountID, idLogLength))

	doc, err := c.endpoints(ctx)
	if err != nil {
		c.interaction.End(identity.InteractionLogout)
		return err
	}
	if doc.EndSessionEndpoint == "" || c.cfg.Navigator == nil {
		c.interaction.End(identity.InteractionLogout)
		return nil
	}

	postLogout := req.PostLogoutRedirectURI
	if postLogout == "" {
		postLogout = c.cfg.PostLogoutRedirectURI
	}

	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	if idToken != "" {
		params.Set("id_token_hint", idToken)
	}
	if postLogout != "" {
		params.Set("post_logout_redirect_uri", postLogout)
	}

	awaitReturn := req.InteractionType == identity.InteractionRedirect && postLogout != ""
	var state string
	if awaitReturn {
		state = util.RandomString(stateBytes)
		params.Set("state", state)
		err := c.cache.SavePending(ctx, cache.PendingInteraction{
			State:       state,
			Kind:        identity.InteractionLogout,
			RedirectURI: postLogout,
		})
		if err != nil {
			c.interaction.End(identity.InteractionLogout)
			return fmt.Errorf("failed to save pending interaction: %w", err)
		}
	}

	logoutURL, err := endSessionURL(doc.EndSessionEndpoint, params)
	if err != nil {
		c.interaction.End(identity.InteractionLogout)
		return err
	}

	if err := c.cfg.Navigator.Navigate(ctx, logoutURL); err != nil {
		if awaitReturn {
			_, _ = c.cache.TakePending(ctx, state)
		}
		c.interaction.End(identity.InteractionLogout)
		return fmt.Errorf("failed to navigate to end session endpoint: %w", err)
	}

	if awaitReturn {
		return identity.ErrNavigationStarted
	}
	c.interaction.End(identity.InteractionLogout)
	return nil
}

func endSessionURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid end session endpoint: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
