// Package server exposes frel runtimes to remote clients over WebSocket.
//
// Every connection gets its own session: a fresh runtime mounted by the
// application factory, a worker serializing its frames, and an inbound rate
// limiter. Client events arrive as protocol event frames and are submitted to
// the runtime; every committed frame is written back as a patches frame.
// Refused or failed events are answered with error frames.
//
// Session runtimes carry the event metrics and logging middleware from
// pkg/middleware, plus tracing when server.tracing is set.
//
// The HTTP surface is a chi router:
//
//	GET /ws       WebSocket endpoint (configurable)
//	GET /metrics  Prometheus metrics (configurable, can be disabled)
//	GET /healthz  liveness probe
//
// Example:
//
//	srv := server.New(demo.Counter, server.WithConfig(cfg))
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
