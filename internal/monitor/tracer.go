package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Spans are named "<spanPrefix><stage>": harness.run, harness.invoke,
// harness.classify, harness.sort and harness.move.
const (
	instrumentationName = "bouncer-harness"
	spanPrefix          = "harness."
)

// Attribute keys shared by the harness stages.
var (
	AttrRunID      = attribute.Key("harness.run.id")
	AttrFile       = attribute.Key("harness.file")
	AttrPosition   = attribute.Key("harness.position")
	AttrOutcome    = attribute.Key("harness.outcome")
	AttrExitStatus = attribute.Key("harness.exit_status")
	AttrDurationMS = attribute.Key("harness.duration_ms")
	AttrCategory   = attribute.Key("harness.category")
)

// Tracer starts stage spans on the global TracerProvider. Without a
// configured provider the spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartSpan opens the span for stage under ctx.
func (t *Tracer) StartSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanPrefix+stage, trace.WithAttributes(attrs...))
}

// SpanFromContext returns the stage span carried by ctx.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
