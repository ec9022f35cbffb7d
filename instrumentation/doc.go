// Package instrumentation provides OpenTelemetry tracing and metrics for the
// client and resource server packages.
//
// With Enabled set, New builds an SDK tracer provider carrying the service
// resource, and any SpanProcessors in the Config receive finished spans.
// Metrics go to the Config's MeterProvider, which the host application owns.
// Disabled instrumentation uses no-op providers.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "weather-client",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		SpanProcessors: []sdktrace.SpanProcessor{sdktrace.NewBatchSpanProcessor(exporter)},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Metrics
//
//	identity.token.acquisitions     tokens handed out, by source (cache, refresh, interactive)
//	identity.token.acquire.duration latency of token acquisition in ms
//	identity.token.refresh.failures failed silent refreshes, by reason
//	identity.interaction.started    interactive flows, by status and interaction type
//	identity.interaction.conflicts  flows rejected because another was running
//	identity.interceptor.requests   outbound requests, by outcome
//	identity.token.validations      inbound tokens, by result
//	identity.scope.decisions        scope guard outcomes
//
// Span attributes never carry token values.
package instrumentation
