package runtime

import (
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
)

// Event is one external input. The runtime never interprets Payload.
type Event struct {
	// Type selects the handler.
	Type string

	// Target is the fragment the event was raised on, if any.
	Target ident.FragmentKey

	// Payload is handler-defined data.
	Payload any

	// Seq is assigned when the event is accepted and reflects arrival order.
	Seq uint64
}

// Handler processes one event inside a frame. Returning an error aborts the
// frame.
type Handler func(f *Frame, ev Event) error

// Middleware wraps a Handler. Middleware registered first runs outermost.
type Middleware func(next Handler) Handler

// Result is the outcome of a committed frame.
type Result struct {
	// Seq is the frame sequence number.
	Seq uint64

	// Patches is the ordered patch batch.
	Patches []render.Patch

	// Events is the number of events dispatched.
	Events int

	// Deferred is the number of follow-up events queued for later frames.
	Deferred int

	// Stats describes the propagation work.
	Stats reactive.DrainStats
}
