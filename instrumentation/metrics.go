package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Token acquisition sources.
const (
	SourceCache       = "cache"
	SourceRefresh     = "refresh"
	SourceInteractive = "interactive"
)

// Interceptor outcomes.
const (
	OutcomeAttached    = "attached"
	OutcomePassthrough = "passthrough"
	OutcomeLogin       = "login"
	OutcomeError       = "error"
)

// Scope guard decisions.
const (
	DecisionAllowed         = "allowed"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
)

// Metrics holds all metric instruments of the module.
type Metrics struct {
	// Client side
	TokenAcquisitions    metric.Int64Counter
	TokenAcquireDuration metric.Float64Histogram
	RefreshFailures      metric.Int64Counter
	InteractionsStarted  metric.Int64Counter
	InteractionConflicts metric.Int64Counter
	InterceptedRequests  metric.Int64Counter

	// Resource server side
	TokenValidations metric.Int64Counter
	ScopeDecisions   metric.Int64Counter
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	client := inst.Meter("authclient")
	server := inst.Meter("resourceserver")

	var err error
	if m.TokenAcquisitions, err = client.Int64Counter(
		"identity.token.acquisitions",
		metric.WithDescription("Access tokens handed out, by source"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.acquisitions counter: %w", err)
	}

	if m.TokenAcquireDuration, err = client.Float64Histogram(
		"identity.token.acquire.duration",
		metric.WithDescription("Time to obtain an access token in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.acquire.duration histogram: %w", err)
	}

	if m.RefreshFailures, err = client.Int64Counter(
		"identity.token.refresh.failures",
		metric.WithDescription("Silent refresh attempts that failed"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.refresh.failures counter: %w", err)
	}

	if m.InteractionsStarted, err = client.Int64Counter(
		"identity.interaction.started",
		metric.WithDescription("Interactive flows started"),
		metric.WithUnit("{interaction}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create interaction.started counter: %w", err)
	}

	if m.InteractionConflicts, err = client.Int64Counter(
		"identity.interaction.conflicts",
		metric.WithDescription("Interactive flows rejected because another was running"),
		metric.WithUnit("{interaction}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create interaction.conflicts counter: %w", err)
	}

	if m.InterceptedRequests, err = client.Int64Counter(
		"identity.interceptor.requests",
		metric.WithDescription("Outbound requests seen by the interceptor, by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create interceptor.requests counter: %w", err)
	}

	if m.TokenValidations, err = server.Int64Counter(
		"identity.token.validations",
		metric.WithDescription("Inbound bearer tokens validated, by result"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token.validations counter: %w", err)
	}

	if m.ScopeDecisions, err = server.Int64Counter(
		"identity.scope.decisions",
		metric.WithDescription("Scope guard decisions, by result"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create scope.decisions counter: %w", err)
	}

	return m, nil
}

// RecordTokenAcquisition records a successful acquisition and its latency.
func (m *Metrics) RecordTokenAcquisition(ctx context.Context, source string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.TokenAcquisitions.Add(ctx, 1, attrs)
	m.TokenAcquireDuration.Record(ctx, durationMs, attrs)
}

// RecordRefreshFailure records a failed silent refresh.
func (m *Metrics) RecordRefreshFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.RefreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInteraction records the start of an interactive flow.
func (m *Metrics) RecordInteraction(ctx context.Context, status, interactionType string) {
	if m == nil {
		return
	}
	m.InteractionsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("interaction_type", interactionType),
	))
}

// RecordInteractionConflict records a rejected concurrent interaction.
func (m *Metrics) RecordInteractionConflict(ctx context.Context, requested, current string) {
	if m == nil {
		return
	}
	m.InteractionConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("requested", requested),
		attribute.String("current", current),
	))
}

// RecordInterceptedRequest records what the interceptor did with a request.
func (m *Metrics) RecordInterceptedRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.InterceptedRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTokenValidation records an inbound token validation result.
func (m *Metrics) RecordTokenValidation(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.TokenValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordScopeDecision records a scope guard outcome.
func (m *Metrics) RecordScopeDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.ScopeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
