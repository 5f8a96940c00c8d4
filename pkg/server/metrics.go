package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics are the adapter-level collectors. Frame-level metrics live
// in runtime.Metrics.
type serverMetrics struct {
	sessions     prometheus.Gauge
	sessionsOpen prometheus.Counter
	inbound      *prometheus.CounterVec
	bytesSent    prometheus.Counter
	writeErrors  prometheus.Counter
}

// inbound event outcomes.
const (
	inboundAccepted    = "accepted"
	inboundRateLimited = "rate_limited"
	inboundQueueFull   = "queue_full"
	inboundInvalid     = "invalid"
)

func newServerMetrics(reg prometheus.Registerer, namespace string) *serverMetrics {
	factory := promauto.With(reg)
	const subsystem = "server"
	return &serverMetrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Number of open WebSocket sessions",
		}),
		sessionsOpen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened",
		}),
		inbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inbound_events_total",
			Help:      "Inbound event frames by outcome",
		}, []string{"outcome"}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sent_bytes_total",
			Help:      "Total number of bytes written to clients",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_errors_total",
			Help:      "Total number of failed writes",
		}),
	}
}
