package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frel-dev/frel/pkg/runtime"
)

// DefaultTracerName is the instrumentation name used when none is set.
const DefaultTracerName = "github.com/frel-dev/frel/pkg/middleware"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerName is the instrumentation name passed to the global provider.
	TracerName string

	// Tracer overrides the global provider's tracer.
	Tracer trace.Tracer

	// Filter reports whether an event is traced. Nil traces everything.
	Filter func(ev runtime.Event) bool

	// AttributeExtractor adds attributes to the event span.
	AttributeExtractor func(f *runtime.Frame, ev runtime.Event) []attribute.KeyValue
}

// TracingOption configures Tracing.
type TracingOption func(*TracingConfig)

// WithTracerName sets the instrumentation name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracer uses t instead of the global provider.
func WithTracer(t trace.Tracer) TracingOption {
	return func(c *TracingConfig) {
		c.Tracer = t
	}
}

// WithEventFilter traces only the events for which filter returns true.
func WithEventFilter(filter func(ev runtime.Event) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor adds custom span attributes.
func WithAttributeExtractor(extractor func(f *runtime.Frame, ev runtime.Event) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.AttributeExtractor = extractor
	}
}

// Tracing returns middleware that wraps each handler in a span. The span
// becomes the handler's Frame.Context for the duration of the call.
func Tracing(opts ...TracingOption) runtime.Middleware {
	cfg := TracingConfig{TracerName: DefaultTracerName}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(cfg.TracerName)
	}

	return func(next runtime.Handler) runtime.Handler {
		return func(f *runtime.Frame, ev runtime.Event) error {
			if cfg.Filter != nil && !cfg.Filter(ev) {
				return next(f, ev)
			}

			attrs := []attribute.KeyValue{
				attribute.String("frel.event.type", ev.Type),
				attribute.Int64("frel.event.seq", int64(ev.Seq)),
				attribute.Int64("frel.frame.seq", int64(f.Seq())),
			}
			if !ev.Target.IsZero() {
				attrs = append(attrs, attribute.String("frel.event.target", ev.Target.String()))
			}
			if cfg.AttributeExtractor != nil {
				attrs = append(attrs, cfg.AttributeExtractor(f, ev)...)
			}

			ctx, span := tracer.Start(f.Context(), spanName(ev),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...))
			defer span.End()
			f.SetContext(ctx)

			err := next(f, ev)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				if code := runtime.CodeOf(err); code != "" {
					span.SetAttributes(attribute.String("frel.error.code", code))
				}
				return err
			}
			span.SetStatus(codes.Ok, "")
			return nil
		}
	}
}

func spanName(ev runtime.Event) string {
	if ev.Type == "" {
		return "frel.event"
	}
	return "frel.event " + ev.Type
}

// SpanFromFrame returns the span carried by f's context: the event span
// inside a traced handler, the frame span otherwise.
func SpanFromFrame(f *runtime.Frame) trace.Span {
	return trace.SpanFromContext(f.Context())
}
