package runtime

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/frel-dev/frel/internal/config"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	maxIDs       uint64
	maxFragments int
	maxRounds    int
	pendingLimit int
	middleware   []Middleware
}

// WithLogger sets the logger for the runtime and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records frame metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for frame spans. The default is the
// global OpenTelemetry tracer provider's "frel" tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMiddleware wraps every handler dispatch in mw.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		for _, m := range mw {
			if m != nil {
				o.middleware = append(o.middleware, m)
			}
		}
	}
}

// WithMaxIdentities caps the reactive identity space.
func WithMaxIdentities(n uint64) Option {
	return func(o *options) {
		o.maxIDs = n
	}
}

// WithMaxFragments caps the number of live fragments.
func WithMaxFragments(n int) Option {
	return func(o *options) {
		o.maxFragments = n
	}
}

// WithMaxRounds bounds the number of drain rounds per frame.
func WithMaxRounds(n int) Option {
	return func(o *options) {
		o.maxRounds = n
	}
}

// WithPendingLimit bounds the pending event queue. Zero means unbounded.
func WithPendingLimit(n int) Option {
	return func(o *options) {
		o.pendingLimit = n
	}
}

// FromConfig applies the runtime section of frel.json.
func FromConfig(c config.RuntimeConfig) Option {
	return func(o *options) {
		if c.MaxIdentities > 0 {
			o.maxIDs = c.MaxIdentities
		}
		if c.MaxFragments > 0 {
			o.maxFragments = c.MaxFragments
		}
		if c.MaxRounds > 0 {
			o.maxRounds = c.MaxRounds
		}
		if c.PendingLimit > 0 {
			o.pendingLimit = c.PendingLimit
		}
	}
}
