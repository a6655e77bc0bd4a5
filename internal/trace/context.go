package trace

import "context"

type tracerKey struct{}
type spanKey struct{}

// FromContext extracts the tracer carried by ctx, Nop when absent.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches a tracer to ctx. A nil tracer stores Nop so
// downstream FromContext callers never see nil.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// SpanContext carries the active span across goroutine boundaries so
// child spans can name their parent.
type SpanContext struct {
	SpanID uint64
}

// CurrentSpan retrieves the active span context, zero when absent.
func CurrentSpan(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	if sc, ok := ctx.Value(spanKey{}).(SpanContext); ok {
		return sc
	}
	return SpanContext{}
}

// WithSpanContext marks sc as the active span in ctx.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		return nil
	}
	return context.WithValue(ctx, spanKey{}, sc)
}
