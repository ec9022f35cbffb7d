package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/welkome/identity"
	"github.com/welkome/identity/cache"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/providers/oidc"
	"github.com/welkome/identity/security"
)

const (
	// DefaultHTTPTimeout bounds every call to the identity provider.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultPopupTimeout bounds how long a popup login waits for the callback.
	DefaultPopupTimeout = 5 * time.Minute

	// clientSKU identifies this library on token requests (x-client-SKU).
	clientSKU = "welkome.identity.go"
)

// FallbackPolicy decides what AcquireToken does when silent acquisition
// needs user interaction.
type FallbackPolicy string

const (
	// FallbackInteractive starts an interactive flow (the default).
	FallbackInteractive FallbackPolicy = "interactive"

	// FallbackNone returns the silent error unchanged.
	FallbackNone FallbackPolicy = "none"
)

// Navigator sends the user to a URL: opens a popup window, a system browser
// or replaces the current page. It must return once the URL is handed off.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Config configures a Client.
type Config struct {
	// ClientID is the application (client) id of the public client (required).
	ClientID string

	// Authority is https://<host>/<tenant-id> (required).
	Authority string

	// RedirectURI receives authorization responses (required). For popup
	// logins on a loopback host, port 0 picks a free port per login.
	RedirectURI string

	// PostLogoutRedirectURI is where the provider sends the user after logout.
	PostLogoutRedirectURI string

	// Scopes are requested on Login when the request names none.
	Scopes []string

	// Cache holds accounts and tokens (required).
	Cache *cache.Cache

	// Navigator opens authorize and logout URLs (required for interactive flows).
	Navigator Navigator

	// HTTPClient is used for discovery and token calls. Its transport is
	// wrapped to add correlation headers. Default: 30s timeout.
	HTTPClient *http.Client

	// Discovery resolves the authority's endpoints. Default: a new client
	// sharing HTTPClient.
	Discovery *oidc.DiscoveryClient

	// FallbackPolicy applies to AcquireToken. Default: FallbackInteractive.
	FallbackPolicy FallbackPolicy

	// PopupTimeout bounds popup waits. Default: 5 minutes.
	PopupTimeout time.Duration

	// Interaction is the status holder. Default: a new holder per client.
	Interaction *Interaction

	Clock           security.Clock
	Logger          *slog.Logger
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// applyDefaults fills unset optional fields.
func applyDefaults(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if cfg.FallbackPolicy == "" {
		cfg.FallbackPolicy = FallbackInteractive
	}
	if cfg.PopupTimeout <= 0 {
		cfg.PopupTimeout = DefaultPopupTimeout
	}
	if cfg.Interaction == nil {
		cfg.Interaction = NewInteraction()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = instrumentation.Noop()
	}
	cfg.Clock = security.ClockOrDefault(cfg.Clock)
	cfg.Scopes = identity.ResourceScopes(cfg.Scopes)
	return cfg
}

func (cfg Config) validate() error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if cfg.Authority == "" {
		return fmt.Errorf("authority is required")
	}
	if cfg.RedirectURI == "" {
		return fmt.Errorf("redirect URI is required")
	}
	if err := oidc.ValidateRedirectURI(cfg.RedirectURI); err != nil {
		return err
	}
	if cfg.PostLogoutRedirectURI != "" {
		if err := oidc.ValidateRedirectURI(cfg.PostLogoutRedirectURI); err != nil {
			return fmt.Errorf("post logout %w", err)
		}
	}
	if cfg.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	switch cfg.FallbackPolicy {
	case FallbackInteractive, FallbackNone:
	default:
		return fmt.Errorf("unknown fallback policy %q", cfg.FallbackPolicy)
	}
	return nil
}
