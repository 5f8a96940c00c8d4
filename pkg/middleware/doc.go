// Package middleware provides handler middleware for the frel runtime.
//
// Middleware wraps every event handler a runtime dispatches. It runs inside
// the frame, so an error returned from middleware aborts the frame exactly
// like a handler error.
//
// # Tracing
//
// Tracing starts one OpenTelemetry span per event as a child of the frame
// span and hands it to the handler through Frame.Context:
//
//	rt := runtime.New(runtime.WithMiddleware(
//	    middleware.Tracing(
//	        middleware.WithTracerName("my-app"),
//	        middleware.WithEventFilter(func(ev runtime.Event) bool {
//	            return ev.Type != "tick"
//	        }),
//	    ),
//	))
//
// # Metrics
//
// Metrics records per-event Prometheus collectors:
//   - frel_events_total: events handled, by type and status
//   - frel_event_duration_seconds: handler duration, by type
//   - frel_event_errors_total: handler errors, by type and category
//
// Only events with a registered handler reach middleware, so the type label
// is bounded by the application's handler set.
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	rt.Use(m.Middleware())
//
// # Logging
//
// Logging writes one debug record per event and a warning for every failed
// handler.
package middleware
