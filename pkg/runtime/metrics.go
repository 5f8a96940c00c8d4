package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "frel").
	Namespace string

	// Subsystem is the metrics subsystem (default: "runtime").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for frame duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the frame duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "frel",
		Subsystem: "runtime",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the runtime's Prometheus collectors. One Metrics may be
// shared by many runtimes; gauges are maintained with deltas so each runtime
// contributes its own share.
//
// A nil *Metrics records nothing.
type Metrics struct {
	frames         *prometheus.CounterVec
	frameDuration  prometheus.Histogram
	events         prometheus.Counter
	patches        prometheus.Counter
	recomputations prometheus.Counter
	rounds         prometheus.Counter
	rejected       prometheus.Counter
	pending        prometheus.Gauge
	stores         prometheus.Gauge
	fragments      prometheus.Gauge
}

// NewMetrics creates and registers the runtime collectors:
//
//   - frel_runtime_frames_total: frames by status (committed, aborted)
//   - frel_runtime_frame_duration_seconds: frame duration
//   - frel_runtime_events_total: events dispatched by committed frames
//   - frel_runtime_patches_total: patches emitted
//   - frel_runtime_recomputations_total: computation recomputations
//   - frel_runtime_drain_rounds_total: drain rounds
//   - frel_runtime_events_rejected_total: events refused by a full pending queue
//   - frel_runtime_pending_events: events waiting for a frame
//   - frel_runtime_live_stores: live stores
//   - frel_runtime_live_fragments: live fragments
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of frames by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_duration_seconds",
			Help:        "Frame duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		events:         counter("events_total", "Total number of events dispatched by committed frames"),
		patches:        counter("patches_total", "Total number of patches emitted"),
		recomputations: counter("recomputations_total", "Total number of computation recomputations"),
		rounds:         counter("drain_rounds_total", "Total number of drain rounds"),
		rejected:       counter("events_rejected_total", "Total number of events refused by a full pending queue"),
		pending:        gauge("pending_events", "Number of events waiting for a frame"),
		stores:         gauge("live_stores", "Number of live stores"),
		fragments:      gauge("live_fragments", "Number of live fragments"),
	}
}

const (
	statusCommitted = "committed"
	statusAborted   = "aborted"
)

func (m *Metrics) observeFrame(status string, d time.Duration, res *Result) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(status).Inc()
	m.frameDuration.Observe(d.Seconds())
	if res == nil {
		return
	}
	m.events.Add(float64(res.Events))
	m.patches.Add(float64(len(res.Patches)))
	m.recomputations.Add(float64(res.Stats.Recomputations))
	m.rounds.Add(float64(res.Stats.Rounds))
}

func (m *Metrics) addPending(n int) {
	if m == nil || n == 0 {
		return
	}
	m.pending.Add(float64(n))
}

func (m *Metrics) reject(n int) {
	if m == nil {
		return
	}
	m.rejected.Add(float64(n))
}

func (m *Metrics) addLive(stores, fragments int) {
	if m == nil {
		return
	}
	if stores != 0 {
		m.stores.Add(float64(stores))
	}
	if fragments != 0 {
		m.fragments.Add(float64(fragments))
	}
}
