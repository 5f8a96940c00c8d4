package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/runtime"
)

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metric namespace. The default is "frel".
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metric subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels adds constant labels to every collector.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry registers the collectors with registry instead of the
// default registerer.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "frel",
		// Handlers run inside a frame; most finish well under a millisecond.
		Buckets:  []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		Registry: prometheus.DefaultRegisterer,
	}
}

// Metrics holds the per-event collectors. One Metrics may be shared by any
// number of runtimes.
type Metrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// Event statuses.
const (
	statusOK    = "ok"
	statusError = "error"
)

// NewMetrics creates and registers the collectors. It panics if they are
// already registered with the same registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "events_total",
			Help:        "Total number of events handled",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event handler duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"type"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "event_errors_total",
			Help:        "Total number of handler errors",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type", "category"}),
	}
}

// Middleware returns the runtime middleware recording into m.
func (m *Metrics) Middleware() runtime.Middleware {
	return func(next runtime.Handler) runtime.Handler {
		return func(f *runtime.Frame, ev runtime.Event) error {
			start := time.Now()
			err := next(f, ev)
			m.duration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())
			if err != nil {
				m.events.WithLabelValues(ev.Type, statusError).Inc()
				m.errors.WithLabelValues(ev.Type, categorizeError(err)).Inc()
				return err
			}
			m.events.WithLabelValues(ev.Type, statusOK).Inc()
			return nil
		}
	}
}

// categorizeError maps err to a low-cardinality label. Runtime errors use
// their kind; anything else is attributed to the handler.
func categorizeError(err error) string {
	if k := errors.KindOf(err); k != errors.KindUnknown {
		return strings.ToLower(k.String())
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "handler"
	}
}
