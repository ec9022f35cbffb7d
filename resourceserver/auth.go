package resourceserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/welkome/identity"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/internal/httputil"
	"github.com/welkome/identity/internal/util"
	"github.com/welkome/identity/security"
)

// keysRetryAfter is the Retry-After value, in seconds, sent when signing
// keys cannot be loaded.
const keysRetryAfter = "30"

// AuthConfig configures Authenticate.
type AuthConfig struct {
	// Realm and ResourceMetadataURL are echoed in WWW-Authenticate challenges.
	Realm               string
	ResourceMetadataURL string

	TrustProxy        bool
	TrustedProxyCount int

	Logger          *slog.Logger
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// Authenticate validates the bearer token of every request with v and stores
// the resulting principal in the request context. Requests without a valid
// token get 401 with a Bearer challenge. When the signing keys cannot be
// loaded the token is not judged and the request gets 503.
func Authenticate(v Validator, cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = instrumentation.Noop()
	}
	metrics := cfg.Instrumentation.Metrics()

	unauthorized := func(w http.ResponseWriter, description string) {
		oauthErr := identity.ErrBadToken(description)
		httputil.WriteError(w, oauthErr.Status, oauthErr.Code, oauthErr.Description,
			httputil.FormatWWWAuthenticate(cfg.Realm, cfg.ResourceMetadataURL, "", oauthErr.Code, oauthErr.Description))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientIP := security.GetClientIP(r, cfg.TrustProxy, cfg.TrustedProxyCount)

			token, reason := extractBearerToken(r)
			if reason != "" {
				metrics.RecordTokenValidation(ctx, false)
				cfg.Logger.Debug("Request without usable bearer token", "ip", clientIP, "reason", reason)
				unauthorized(w, reason)
				return
			}

			principal, err := v.Validate(ctx, token)
			if err != nil {
				metrics.RecordTokenValidation(ctx, false)
				cfg.Auditor.LogAuthFailure("", "", clientIP, "token validation failed")
				if isKeyError(err) {
					cfg.Logger.Error("Signing keys unavailable", "ip", clientIP, "error", err)
					oauthErr := identity.ErrTemporarilyUnavailable("Token signing keys are unavailable")
					w.Header().Set("Retry-After", keysRetryAfter)
					httputil.WriteError(w, oauthErr.Status, oauthErr.Code, oauthErr.Description, "")
					return
				}
				cfg.Logger.Warn("Token validation failed", "ip", clientIP, "error", err)
				unauthorized(w, "Token validation failed")
				return
			}

			metrics.RecordTokenValidation(ctx, true)
			cfg.Logger.Debug("Token validated",
				"subject", util.SafeTruncate(principal.Subject, 8),
				"request_id", security.GetRequestID(ctx))
			next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(ctx, principal)))
		})
	}
}

// extractBearerToken returns the token of a "Bearer <token>" Authorization
// header, or a description of what is wrong with the header.
func extractBearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Missing Authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", "Invalid Authorization header format"
	}
	return strings.TrimSpace(parts[1]), ""
}
