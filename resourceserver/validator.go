package resourceserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/welkome/identity"
	"github.com/welkome/identity/providers/oidc"
	"github.com/welkome/identity/security"
)

// Validator turns a raw bearer token into a principal.
type Validator interface {
	Validate(ctx context.Context, rawToken string) (*identity.Principal, error)
}

// ValidatorConfig configures a JWKSValidator.
type ValidatorConfig struct {
	// Issuer is the exact iss claim expected, e.g.
	// https://login.microsoftonline.com/<tenant>/v2.0 (required).
	Issuer string

	// Audiences lists accepted aud values, typically api://<app-id> and the
	// bare app id (required).
	Audiences []string

	// ClockSkew is tolerated on exp and nbf. Default:
	// security.DefaultClockSkewGracePeriod.
	ClockSkew time.Duration

	Clock  security.Clock
	Logger *slog.Logger
}

// JWKSValidator validates RS256 access tokens against a provider key set.
type JWKSValidator struct {
	keys      func(ctx context.Context) (jwk.Set, error)
	issuer    string
	audiences map[string]struct{}
	skew      time.Duration
	clock     security.Clock
	logger    *slog.Logger
	cancel    context.CancelFunc
}

func newValidator(cfg ValidatorConfig) (*JWKSValidator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if len(cfg.Audiences) == 0 {
		return nil, fmt.Errorf("at least one audience is required")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = security.DefaultClockSkewGracePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	audiences := make(map[string]struct{}, len(cfg.Audiences))
	for _, a := range cfg.Audiences {
		if a = strings.TrimSpace(a); a != "" {
			audiences[a] = struct{}{}
		}
	}

	return &JWKSValidator{
		issuer:    cfg.Issuer,
		audiences: audiences,
		skew:      cfg.ClockSkew,
		clock:     security.ClockOrDefault(cfg.Clock),
		logger:    cfg.Logger,
	}, nil
}

// NewJWKSValidator fetches the key set at jwksURL and keeps it fresh in the
// background until Close is called.
func NewJWKSValidator(ctx context.Context, jwksURL string, cfg ValidatorConfig) (*JWKSValidator, error) {
	v, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}

	cacheCtx, cancel := context.WithCancel(context.Background())
	cache, err := jwk.NewCache(cacheCtx, httprc.NewClient())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create key set cache: %w", err)
	}
	if err := cache.Register(ctx, jwksURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register key set %s: %w", jwksURL, err)
	}

	v.cancel = cancel
	v.keys = func(ctx context.Context) (jwk.Set, error) {
		return cache.Lookup(ctx, jwksURL)
	}
	v.logger.Info("Token validator ready", "jwks_uri", jwksURL, "issuer", cfg.Issuer)
	return v, nil
}

// NewValidatorFromDiscovery resolves the key set location and issuer of
// authority through OpenID Connect discovery. cfg.Issuer, when set,
// overrides the discovered issuer.
func NewValidatorFromDiscovery(ctx context.Context, discovery *oidc.DiscoveryClient, authority string, cfg ValidatorConfig) (*JWKSValidator, error) {
	a, err := oidc.ParseAuthority(authority)
	if err != nil {
		return nil, err
	}
	doc, err := discovery.Discover(ctx, a)
	if err != nil {
		return nil, err
	}
	if doc.JWKSUri == "" {
		return nil, fmt.Errorf("authority %s publishes no jwks_uri", a)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = doc.Issuer
	}
	return NewJWKSValidator(ctx, doc.JWKSUri, cfg)
}

// NewStaticValidator validates against a fixed key set.
func NewStaticValidator(keys jwk.Set, cfg ValidatorConfig) (*JWKSValidator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key set is required")
	}
	v, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}
	v.keys = func(context.Context) (jwk.Set, error) { return keys, nil }
	return v, nil
}

// Close stops background key set refreshes.
func (v *JWKSValidator) Close() {
	if v.cancel != nil {
		v.cancel()
	}
}

// Validate checks signature, issuer, audience and lifetime, and maps the
// claims to a principal. Every failure matches identity.ErrInvalidToken.
func (v *JWKSValidator) Validate(ctx context.Context, rawToken string) (*identity.Principal, error) {
	keys, err := v.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	token, err := jwt.Parse([]byte(rawToken),
		jwt.WithKeySet(keys, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.clock.Now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}

	audiences, _ := token.Audience()
	if !v.acceptsAudience(audiences) {
		return nil, fmt.Errorf("%w: audience %v not accepted", identity.ErrInvalidToken, audiences)
	}

	return principalFromToken(token), nil
}

func (v *JWKSValidator) acceptsAudience(audiences []string) bool {
	for _, a := range audiences {
		if _, ok := v.audiences[a]; ok {
			return true
		}
	}
	return false
}

func principalFromToken(token jwt.Token) *identity.Principal {
	p := &identity.Principal{}
	p.Subject, _ = token.Subject()
	p.Issuer, _ = token.Issuer()
	p.Audience, _ = token.Audience()
	p.ExpiresAt, _ = token.Expiration()

	p.ObjectID = stringClaim(token, "oid")
	p.TenantID = stringClaim(token, "tid")
	p.Name = stringClaim(token, "name")
	p.Username = stringClaim(token, "preferred_username")
	p.Scopes = identity.ParseScope(stringClaim(token, "scp"))
	p.Roles = stringListClaim(token, "roles")
	return p
}

func stringClaim(token jwt.Token, name string) string {
	var s string
	if err := token.Get(name, &s); err != nil {
		return ""
	}
	return s
}

func stringListClaim(token jwt.Token, name string) []string {
	var raw any
	if err := token.Get(name, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	}
	return nil
}

// isKeyError reports whether err came from loading keys rather than from
// the token itself.
func isKeyError(err error) bool {
	return err != nil && !errors.Is(err, identity.ErrInvalidToken)
}
