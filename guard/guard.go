// Package guard authorizes requests by the scopes of an already validated
// access token.
//
// The check mirrors an "any of" scope requirement: a request passes when the
// token carries at least one of the accepted scopes. Delegated tokens carry
// scopes in the scp claim; application tokens carry app roles in roles.
// Both count.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/welkome/identity"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/internal/httputil"
	"github.com/welkome/identity/security"
)

// ErrNoAcceptedScopes is returned when a guard is built without scopes.
var ErrNoAcceptedScopes = errors.New("no accepted scopes configured")

// InsufficientScopeError reports that a token carries none of the accepted
// scopes. It matches identity.ErrInsufficientScope.
type InsufficientScopeError struct {
	Accepted []string
	Granted  []string
}

func (e *InsufficientScopeError) Error() string {
	return fmt.Sprintf("token carries none of the accepted scopes [%s]", strings.Join(e.Accepted, " "))
}

// Is lets errors.Is match identity.ErrInsufficientScope.
func (e *InsufficientScopeError) Is(target error) bool {
	return target == identity.ErrInsufficientScope
}

// Verify returns nil when tokenScopes and accepted share at least one
// scope. Scopes compare exactly.
func Verify(accepted, tokenScopes []string) error {
	if len(accepted) == 0 {
		return ErrNoAcceptedScopes
	}

	granted := make(map[string]struct{}, len(tokenScopes))
	for _, s := range tokenScopes {
		granted[s] = struct{}{}
	}
	for _, a := range accepted {
		if _, ok := granted[a]; ok {
			return nil
		}
	}

	return &InsufficientScopeError{
		Accepted: append([]string(nil), accepted...),
		Granted:  append([]string(nil), tokenScopes...),
	}
}

// Config configures the HTTP guard.
type Config struct {
	// Realm and ResourceMetadataURL are echoed in WWW-Authenticate challenges.
	Realm               string
	ResourceMetadataURL string

	// TrustProxy and TrustedProxyCount control client IP extraction for
	// audit records.
	TrustProxy        bool
	TrustedProxyCount int

	Logger          *slog.Logger
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// Guard is HTTP middleware requiring any of a set of scopes.
type Guard struct {
	accepted []string
	cfg      Config
	metrics  *instrumentation.Metrics
}

// New creates a guard accepting any of the given scopes.
func New(cfg Config, accepted ...string) (*Guard, error) {
	scopes := make([]string, 0, len(accepted))
	for _, s := range accepted {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return nil, ErrNoAcceptedScopes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = instrumentation.Noop()
	}

	return &Guard{
		accepted: scopes,
		cfg:      cfg,
		metrics:  cfg.Instrumentation.Metrics(),
	}, nil
}

// RequireAnyScope returns middleware built by New. It panics when no scope
// is given, which is a programming error in route setup.
func RequireAnyScope(cfg Config, accepted ...string) func(http.Handler) http.Handler {
	g, err := New(cfg, accepted...)
	if err != nil {
		panic(fmt.Sprintf("guard: %v", err))
	}
	return g.Middleware
}

// Accepted returns a copy of the accepted scopes.
func (g *Guard) Accepted() []string {
	return append([]string(nil), g.accepted...)
}

// Middleware rejects requests without a principal with 401 and requests
// whose principal lacks every accepted scope with 403.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal, ok := identity.PrincipalFromContext(ctx)
		if !ok {
			g.metrics.RecordScopeDecision(ctx, instrumentation.DecisionUnauthenticated)
			g.cfg.Logger.Warn("Scope check without authenticated principal", "path", r.URL.Path)
			oauthErr := identity.ErrBadToken("Authentication required")
			httputil.WriteError(w, oauthErr.Status, oauthErr.Code, oauthErr.Description,
				httputil.FormatWWWAuthenticate(g.cfg.Realm, g.cfg.ResourceMetadataURL, "", oauthErr.Code, ""))
			return
		}

		granted := principal.Permissions()
		if err := Verify(g.accepted, granted); err != nil {
			clientIP := security.GetClientIP(r, g.cfg.TrustProxy, g.cfg.TrustedProxyCount)
			g.metrics.RecordScopeDecision(ctx, instrumentation.DecisionDenied)
			g.cfg.Auditor.LogScopeDenied(principal.Subject, clientIP, g.accepted, granted)
			g.cfg.Logger.Warn("Insufficient scope",
				"path", r.URL.Path,
				"accepted", g.accepted,
				"granted", granted,
				"ip", clientIP)

			scope := strings.Join(g.accepted, " ")
			oauthErr := identity.ErrScopeNotGranted("The access token does not carry any of the scopes required by this endpoint")
			httputil.WriteError(w, oauthErr.Status, oauthErr.Code, oauthErr.Description,
				httputil.FormatWWWAuthenticate(g.cfg.Realm, g.cfg.ResourceMetadataURL, scope, oauthErr.Code, oauthErr.Description))
			return
		}

		g.metrics.RecordScopeDecision(ctx, instrumentation.DecisionAllowed)
		next.ServeHTTP(w, r)
	})
}
