package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/welkome/identity"
	"github.com/welkome/identity/cache"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/internal/util"
	"github.com/welkome/identity/providers/oidc"
	"github.com/welkome/identity/security"
)

// idLogLength is the number of characters of an account id kept in log lines
const idLogLength = 8

// Client is a public OAuth 2.0 / OpenID Connect client. It is safe for
// concurrent use.
type Client struct {
	cfg         Config
	authority   oidc.Authority
	httpClient  *http.Client
	discovery   *oidc.DiscoveryClient
	cache       *cache.Cache
	interaction *Interaction
	clock       security.Clock
	logger      *slog.Logger
	auditor     *security.Auditor
	tracer      trace.Tracer
	metrics     *instrumentation.Metrics
}

// New validates cfg and creates a client. No network calls are made.
func New(cfg Config) (*Client, error) {
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid auth client config: %w", err)
	}

	authority, err := oidc.ParseAuthority(cfg.Authority)
	if err != nil {
		return nil, err
	}

	httpClient := wrapHTTPClient(cfg.HTTPClient)
	discovery := cfg.Discovery
	if discovery == nil {
		discovery = oidc.NewDiscoveryClient(httpClient, 0, cfg.Logger)
	}

	return &Client{
		cfg:         cfg,
		authority:   authority,
		httpClient:  httpClient,
		discovery:   discovery,
		cache:       cfg.Cache,
		interaction: cfg.Interaction,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		auditor:     cfg.Auditor,
		tracer:      cfg.Instrumentation.Tracer("authclient"),
		metrics:     cfg.Instrumentation.Metrics(),
	}, nil
}

// ClientID returns the configured client id.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// Authority returns the canonical authority.
func (c *Client) Authority() oidc.Authority {
	return c.authority
}

// InteractionStatus reports which interactive flow, if any, is running.
func (c *Client) InteractionStatus() identity.InteractionStatus {
	return c.interaction.Status()
}

// WaitForIdle blocks until no interactive flow is running.
func (c *Client) WaitForIdle(ctx context.Context) error {
	return c.interaction.WaitIdle(ctx)
}

// Initialize runs the startup interaction. When the cache holds an
// unfinished redirect interaction from a previous run, the client resumes
// in that interaction's status so HandleRedirect can complete it;
// otherwise it returns to InteractionNone.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.begin(ctx, identity.InteractionStartup, ""); err != nil {
		return err
	}

	pending, err := c.cache.PendingInteractions(ctx)
	if err != nil {
		c.interaction.End(identity.InteractionStartup)
		return fmt.Errorf("failed to read pending interactions: %w", err)
	}

	if len(pending) > 0 {
		resumed := pending[0].Kind
		if err := c.interaction.Transition(resumed, identity.InteractionStartup); err != nil {
			return err
		}
		c.logger.Info("Resumed redirect interaction from cache",
			"status", resumed,
			"pending", len(pending))
		return nil
	}

	c.interaction.End(identity.InteractionStartup)
	return nil
}

// Accounts lists every signed-in account known to the cache.
func (c *Client) Accounts(ctx context.Context) ([]identity.Account, error) {
	return c.cache.Accounts(ctx)
}

// ActiveAccount returns the active account or identity.ErrNoActiveAccount.
func (c *Client) ActiveAccount(ctx context.Context) (identity.Account, error) {
	return c.cache.ActiveAccount(ctx)
}

// SetActiveAccount makes a cached account the default for silent requests.
func (c *Client) SetActiveAccount(ctx context.Context, account identity.Account) error {
	if account.IsZero() {
		return fmt.Errorf("account has no home account id")
	}
	if err := c.cache.SetActiveAccount(ctx, account.HomeAccountID); err != nil {
		return err
	}

	c.auditor.LogEvent(security.Event{
		Type:     security.EventActiveAccountChanged,
		UserID:   account.HomeAccountID,
		ClientID: c.cfg.ClientID,
	})
	c.logger.Debug("Active account changed",
		"account", util.SafeTruncate(account.HomeAccountID, idLogLength))
	return nil
}

// resolveAccount returns requested, or the active account when nil.
func (c *Client) resolveAccount(ctx context.Context, requested *identity.Account) (identity.Account, error) {
	if requested != nil && !requested.IsZero() {
		return *requested, nil
	}
	return c.cache.ActiveAccount(ctx)
}

func (c *Client) endpoints(ctx context.Context) (*oidc.DiscoveryDocument, error) {
	doc, err := c.discovery.Discover(ctx, c.authority)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authority endpoints: %w", err)
	}
	return doc, nil
}

// begin enters status, recording the attempt.
func (c *Client) begin(ctx context.Context, status identity.InteractionStatus, interactionType identity.InteractionType) error {
	if err := c.interaction.Begin(status); err != nil {
		c.metrics.RecordInteractionConflict(ctx, string(status), string(c.interaction.Status()))
		c.logger.Debug("Interaction rejected",
			"requested", status,
			"current", c.interaction.Status())
		return err
	}
	c.metrics.RecordInteraction(ctx, string(status), string(interactionType))
	return nil
}

// isInteractionNeeded reports whether err can only be resolved by the user.
func isInteractionNeeded(err error) bool {
	return errors.Is(err, identity.ErrInteractionRequired) || errors.Is(err, identity.ErrNoActiveAccount)
}
