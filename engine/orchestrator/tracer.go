package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer exposes Span as a scoped acquisition of a span with guaranteed
// release on every exit path. The default implementation is backed by the
// global OTel tracer, which itself degrades to a no-op when no SDK has been
// configured — matching "a no-op implementation is the default; a real
// backend is opt-in via configuration and must degrade to no-op on any
// setup failure."
type Tracer struct {
	name string
}

// NewTracer creates a Tracer scoped under the given name.
func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Span starts a span and returns a context carrying it plus a release
// function; callers must defer the release on every exit path.
func (t *Tracer) Span(ctx context.Context, name string, tags map[string]string) (context.Context, func()) {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	ctx, span := otel.Tracer(t.name).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}
