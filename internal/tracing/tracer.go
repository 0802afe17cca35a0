// Package tracing provides OpenTelemetry span helpers for the orchestrator
// and sibling client, so a pipeline run's stages and outbound calls show up
// as a single trace.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether tracing is active. A real deployment wires an
// exporter into the returned *sdktrace.TracerProvider before calling
// SetProvider; this package stays exporter-agnostic.
type Config struct {
	Enabled bool
}

// Setup installs either a real (caller-supplied) provider or a no-op
// provider as the global tracer provider.
func Setup(cfg Config, provider *sdktrace.TracerProvider) {
	if !cfg.Enabled || provider == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return
	}
	otel.SetTracerProvider(provider)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartPipelineRun opens the root span for a single pipeline run.
func StartPipelineRun(ctx context.Context, runID int64, accountID string, trigger string) (context.Context, trace.Span) {
	return Tracer("orchestrator").Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.Int64("run_id", runID),
			attribute.String("account_id", accountID),
			attribute.String("trigger", trigger),
		))
}

// StartStage opens a child span for a single pipeline stage.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer("orchestrator").Start(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage", stage)))
}

// StartSiblingCall opens a span for a single outbound sibling HTTP call.
func StartSiblingCall(ctx context.Context, sibling, operation string) (context.Context, trace.Span) {
	return Tracer("siblings").Start(ctx, "sibling.call",
		trace.WithAttributes(
			attribute.String("sibling", sibling),
			attribute.String("operation", operation),
		))
}
