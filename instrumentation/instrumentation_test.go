package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"disabled", Config{Enabled: false}},
		{"enabled with names", Config{Enabled: true, ServiceName: "weather-api", ServiceVersion: "1.0.0"}},
		{"enabled with defaults", Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if inst.Metrics() == nil {
				t.Error("Metrics() should not be nil")
			}
			if inst.TracerProvider() == nil || inst.MeterProvider() == nil {
				t.Error("providers should be initialized")
			}
			if inst.Enabled() != tt.config.Enabled {
				t.Errorf("Enabled() = %v, want %v", inst.Enabled(), tt.config.Enabled)
			}
		})
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestTracer_ExportsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{Enabled: true, SpanProcessors: []sdktrace.SpanProcessor{recorder}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Tracer("authclient").Start(context.Background(), "acquire_token_silent")
	AddTokenRequestAttributes(span, "client-id", "https://login.example.com/tenant", []string{"a", "b"})
	RecordError(span, errors.New("interaction required"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	got := ended[0]
	if got.Name() != "acquire_token_silent" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", got.Status().Code)
	}
	if got.InstrumentationScope().Name != instrumentationPrefix+"authclient" {
		t.Errorf("scope = %q", got.InstrumentationScope().Name)
	}

	found := false
	for _, kv := range got.Attributes() {
		if kv.Key == attribute.Key(AttrScope) && kv.Value.AsString() == "a b" {
			found = true
		}
	}
	if !found {
		t.Error("scope attribute missing from span")
	}
}

func TestSpanHelpers_NilSafe(t *testing.T) {
	RecordError(nil, errors.New("x"))
	SetSpanSuccess(nil)
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddInteractionAttributes(nil, "login", "popup")
	AddHTTPAttributes(nil, "GET", 200)
}

func TestMetrics_RecordNoop(t *testing.T) {
	m := Noop().Metrics()
	ctx := context.Background()

	m.RecordTokenAcquisition(ctx, SourceCache, 1.5)
	m.RecordRefreshFailure(ctx, "invalid_grant")
	m.RecordInteraction(ctx, "login", "popup")
	m.RecordInteractionConflict(ctx, "login", "logout")
	m.RecordInterceptedRequest(ctx, OutcomeAttached)
	m.RecordTokenValidation(ctx, false)
	m.RecordScopeDecision(ctx, DecisionDenied)

	var nilMetrics *Metrics
	nilMetrics.RecordScopeDecision(ctx, DecisionAllowed)
}
