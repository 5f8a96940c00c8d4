package server

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/pkg/runtime"
)

// Option configures a Server.
type Option func(*Server)

// WithConfig applies frel.json. The runtime section bounds every session's
// runtime.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg == nil {
			return
		}
		s.cfg = cfg.Server
		s.metricsCfg = cfg.Metrics
		s.runtimeOpts = append(s.runtimeOpts, runtime.FromConfig(cfg.Runtime))
	}
}

// WithLogger sets the server logger. Sessions log through it with their ID
// attached.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the Prometheus registry used for the server and runtime
// collectors and served on the metrics endpoint.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithMiddleware adds handler middleware to every session runtime. It runs
// inside the built-in tracing and metrics middleware.
func WithMiddleware(mw ...runtime.Middleware) Option {
	return func(s *Server) {
		s.handlerMW = append(s.handlerMW, mw...)
	}
}

// WithRuntimeOptions adds options applied to every session runtime.
func WithRuntimeOptions(opts ...runtime.Option) Option {
	return func(s *Server) {
		s.runtimeOpts = append(s.runtimeOpts, opts...)
	}
}
