// Package interceptor attaches bearer tokens to outbound HTTP requests
// bound for protected resources.
//
// A Transport consults a scopemap.Map for every request. Requests to
// unprotected URLs pass through untouched; requests to protected URLs get
// an access token for the mapped scopes, acquired silently when possible
// and through an interactive login otherwise. A protected request is never
// sent without a token.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/welkome/identity"
	"github.com/welkome/identity/instrumentation"
	"github.com/welkome/identity/scopemap"
)

// TokenAcquirer is the part of authclient.Client the transport needs.
type TokenAcquirer interface {
	AcquireTokenSilent(ctx context.Context, req identity.TokenRequest) (*identity.AuthenticationResult, error)
	Login(ctx context.Context, req identity.LoginRequest) (*identity.AuthenticationResult, error)
}

// Config configures a Transport.
type Config struct {
	// Base sends the request. Default: http.DefaultTransport.
	Base http.RoundTripper

	// Scopes maps resource URLs to the scopes their tokens need (required).
	Scopes *scopemap.Map

	// Tokens acquires tokens (required).
	Tokens TokenAcquirer

	// InteractionType is used when a login is needed. Default: redirect.
	InteractionType identity.InteractionType

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

// Transport is an http.RoundTripper that authorizes requests to protected
// resources. It is safe for concurrent use.
type Transport struct {
	base            http.RoundTripper
	scopes          *scopemap.Map
	tokens          TokenAcquirer
	interactionType identity.InteractionType
	logger          *slog.Logger
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics
}

// New validates cfg and creates a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Scopes == nil {
		return nil, fmt.Errorf("scope map is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token acquirer is required")
	}
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}
	if cfg.InteractionType == "" {
		cfg.InteractionType = identity.InteractionRedirect
	}
	if !cfg.InteractionType.Valid() {
		return nil, fmt.Errorf("unknown interaction type %q", cfg.InteractionType)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = instrumentation.Noop()
	}

	return &Transport{
		base:            cfg.Base,
		scopes:          cfg.Scopes,
		tokens:          cfg.Tokens,
		interactionType: cfg.InteractionType,
		logger:          cfg.Logger,
		tracer:          cfg.Instrumentation.Tracer("interceptor"),
		metrics:         cfg.Instrumentation.Metrics(),
	}, nil
}

// Client returns an *http.Client that sends through t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	scopes, ok := t.scopes.Lookup(req.URL)
	if !ok {
		t.metrics.RecordInterceptedRequest(req.Context(), instrumentation.OutcomePassthrough)
		return t.base.RoundTrip(req)
	}

	ctx, span := t.tracer.Start(req.Context(), "interceptor.attach_token")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attrResource(req.URL.Scheme+"://"+req.URL.Host+req.URL.Path))

	token, err := t.token(ctx, scopes)
	if err != nil {
		instrumentation.RecordError(span, err)
		t.metrics.RecordInterceptedRequest(ctx, instrumentation.OutcomeError)
		closeBody(req)
		return nil, err
	}

	t.metrics.RecordInterceptedRequest(ctx, instrumentation.OutcomeAttached)
	instrumentation.SetSpanSuccess(span)

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(out)
}

// token returns an access token for scopes, signing the user in when
// silent acquisition needs interaction.
func (t *Transport) token(ctx context.Context, scopes []string) (string, error) {
	result, err := t.tokens.AcquireTokenSilent(ctx, identity.TokenRequest{Scopes: scopes})
	if err == nil {
		return result.AccessToken, nil
	}
	if !errors.Is(err, identity.ErrInteractionRequired) && !errors.Is(err, identity.ErrNoActiveAccount) {
		return "", fmt.Errorf("failed to acquire token for protected resource: %w", err)
	}

	t.logger.Debug("Protected request needs login",
		"interaction_type", t.interactionType,
		"reason", err)
	t.metrics.RecordInterceptedRequest(ctx, instrumentation.OutcomeLogin)

	_, err = t.tokens.Login(ctx, identity.LoginRequest{
		InteractionType: t.interactionType,
		Scopes:          scopes,
	})
	if err != nil {
		if errors.Is(err, identity.ErrNavigationStarted) {
			return "", fmt.Errorf("request abandoned: %w", err)
		}
		return "", fmt.Errorf("login for protected resource failed: %w", err)
	}

	result, err = t.tokens.AcquireTokenSilent(ctx, identity.TokenRequest{Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("failed to acquire token after login: %w", err)
	}
	return result.AccessToken, nil
}

// closeBody honors the RoundTripper contract of closing the request body
// even when the request is not sent.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func attrResource(resource string) attribute.KeyValue {
	return attribute.String(instrumentation.AttrResource, resource)
}
