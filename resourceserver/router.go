package resourceserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/welkome/identity"
	"github.com/welkome/identity/guard"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/security"
	"github.com/welkome/identity/weather"
)

const (
	// MetadataPathProtectedResource is the RFC 9728 metadata location.
	MetadataPathProtectedResource = "/.well-known/oauth-protected-resource"

	// DefaultMetricsPath serves Prometheus metrics.
	DefaultMetricsPath = "/metrics"

	// ScopeAccessAsUser is the delegated permission the forecast endpoint
	// requires.
	ScopeAccessAsUser = "access_as_user"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Validator checks bearer tokens (required).
	Validator Validator

	// Forecasts produces the forecast payload (required).
	Forecasts *weather.Generator

	// ResourceURL is the public base URL of this API, e.g.
	// https://localhost:7268. It names the resource in RFC 9728 metadata
	// and in challenges.
	ResourceURL string

	// AuthorizationServers are advertised in the metadata document.
	AuthorizationServers []string

	// AcceptedScopes guard the forecast endpoint. Default: access_as_user.
	AcceptedScopes []string

	// MetricsPath defaults to /metrics. Metrics are served only when
	// Metrics is set.
	MetricsPath string
	Metrics     *HTTPMetrics

	// RateLimiter limits requests per client IP. Nil disables limiting.
	RateLimiter *security.RateLimiter

	TrustProxy        bool
	TrustedProxyCount int

	Logger          *slog.Logger
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// NewRouter builds the resource server's HTTP handler.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Forecasts == nil {
		return nil, fmt.Errorf("forecast generator is required")
	}
	if len(cfg.AcceptedScopes) == 0 {
		cfg.AcceptedScopes = []string{ScopeAccessAsUser}
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ResourceURL = strings.TrimSuffix(cfg.ResourceURL, "/")

	var metadataURL string
	if cfg.ResourceURL != "" {
		metadataURL = cfg.ResourceURL + MetadataPathProtectedResource
	}

	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware(cfg.TrustProxy, cfg.TrustedProxyCount, cfg.Auditor))
	}
	r.Use(security.SecurityHeadersMiddleware(cfg.ResourceURL))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Get(MetadataPathProtectedResource, protectedResourceMetadata(cfg))

	authenticate := Authenticate(cfg.Validator, AuthConfig{
		Realm:               cfg.ResourceURL,
		ResourceMetadataURL: metadataURL,
		TrustProxy:          cfg.TrustProxy,
		TrustedProxyCount:   cfg.TrustedProxyCount,
		Logger:              cfg.Logger,
		Auditor:             cfg.Auditor,
		Instrumentation:     cfg.Instrumentation,
	})
	scopes, err := guard.New(guard.Config{
		Realm:               cfg.ResourceURL,
		ResourceMetadataURL: metadataURL,
		TrustProxy:          cfg.TrustProxy,
		TrustedProxyCount:   cfg.TrustedProxyCount,
		Logger:              cfg.Logger,
		Auditor:             cfg.Auditor,
		Instrumentation:     cfg.Instrumentation,
	}, cfg.AcceptedScopes...)
	if err != nil {
		return nil, err
	}

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(scopes.Middleware)
		r.Method(http.MethodGet, weather.ForecastPath, weather.Handler(cfg.Forecasts, cfg.Logger))
	})

	return r, nil
}

// protectedResourceMetadata serves the RFC 9728 document describing how to
// obtain tokens for this API.
func protectedResourceMetadata(cfg RouterConfig) http.HandlerFunc {
	metadata := identity.ProtectedResourceMetadata{
		Resource:               cfg.ResourceURL,
		AuthorizationServers:   cfg.AuthorizationServers,
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        cfg.AcceptedScopes,
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metadata)
	}
}
