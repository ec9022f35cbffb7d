package instrumentation

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Never set token values on spans, only metadata.
const (
	AttrClientID        = "identity.client_id"
	AttrAuthority       = "identity.authority"
	AttrScope           = "identity.scope"
	AttrInteractionType = "identity.interaction.type"
	AttrInteraction     = "identity.interaction.status"
	AttrTokenSource     = "identity.token.source" //nolint:gosec // attribute name, not a credential
	AttrAccountHash     = "identity.account_hash"
	AttrCorrelationID   = "identity.correlation_id"
	AttrResource        = "identity.resource"
	AttrError           = "identity.error"

	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddTokenRequestAttributes annotates a token acquisition span.
func AddTokenRequestAttributes(span trace.Span, clientID, authority string, scopes []string) {
	SetSpanAttributes(span,
		attribute.String(AttrClientID, clientID),
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrScope, strings.Join(scopes, " ")),
	)
}

// AddInteractionAttributes annotates an interactive flow span.
func AddInteractionAttributes(span trace.Span, status, interactionType string) {
	SetSpanAttributes(span,
		attribute.String(AttrInteraction, status),
		attribute.String(AttrInteractionType, interactionType),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
