package runtime

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/fragment"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/subscription"
)

const tracerName = "frel"

// State is the scheduler state.
type State int32

const (
	StateIdle State = iota
	StateInFrame
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFrame:
		return "in-frame"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Runtime owns one reactive graph and fragment tree and runs frames over
// them. Submit, Pending and State are safe for concurrent use; frames must
// be serialized by the caller (see Worker).
type Runtime struct {
	state atomic.Int32

	registry *subscription.Registry
	stores   *reactive.Stores
	arena    *fragment.Arena
	queue    *render.Queue
	gen      *render.Generator

	handlersMu sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware

	mu           sync.Mutex
	pending      []Event
	pendingLimit int
	eventSeq     uint64
	abortErr     error

	frameSeq  uint64
	wake      chan struct{}
	lastLive  [2]int
	closeOnce sync.Once

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates an idle runtime.
func New(opts ...Option) *Runtime {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	storeOpts := []reactive.Option{reactive.WithLogger(o.logger)}
	if o.maxIDs > 0 {
		storeOpts = append(storeOpts, reactive.WithMaxIdentities(o.maxIDs))
	}
	if o.maxRounds > 0 {
		storeOpts = append(storeOpts, reactive.WithMaxRounds(o.maxRounds))
	}
	arenaOpts := []fragment.Option{fragment.WithLogger(o.logger)}
	if o.maxFragments > 0 {
		arenaOpts = append(arenaOpts, fragment.WithMaxFragments(o.maxFragments))
	}

	reg := subscription.NewRegistry()
	stores := reactive.New(reg, storeOpts...)
	return &Runtime{
		registry:     reg,
		stores:       stores,
		arena:        fragment.NewArena(stores, arenaOpts...),
		queue:        render.NewQueue(),
		gen:          render.NewGenerator(render.WithLogger(o.logger)),
		handlers:     make(map[string]Handler),
		middleware:   o.middleware,
		pendingLimit: o.pendingLimit,
		wake:         make(chan struct{}, 1),
		logger:       o.logger,
		metrics:      o.metrics,
		tracer:       o.tracer,
	}
}

// Handle registers h for events of type eventType, replacing any previous
// handler. Events without a handler are ignored.
func (r *Runtime) Handle(eventType string, h Handler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	if h == nil {
		delete(r.handlers, eventType)
		return
	}
	r.handlers[eventType] = h
}

// Use appends handler middleware. It applies to events dispatched after
// the call.
func (r *Runtime) Use(mw ...Middleware) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	for _, m := range mw {
		if m != nil {
			r.middleware = append(r.middleware, m)
		}
	}
}

// handler returns the handler for eventType wrapped in the middleware
// chain, or nil when none is registered.
func (r *Runtime) handler(eventType string) Handler {
	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	h := r.handlers[eventType]
	if h == nil {
		return nil
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}

// State returns the current scheduler state.
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// AbortError returns the error that aborted the last frame while the
// runtime is Aborted, and nil otherwise.
func (r *Runtime) AbortError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortErr
}

// Submit appends events to the pending queue in order and assigns their
// sequence numbers. Either every event is accepted or none is.
func (r *Runtime) Submit(events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.Lock()
	if r.pendingLimit > 0 && len(r.pending)+len(events) > r.pendingLimit {
		n := len(r.pending)
		r.mu.Unlock()
		r.metrics.reject(len(events))
		return errors.New(errors.KindQueueFull, "runtime.Submit", nil).
			WithDetail("%d pending, limit %d", n, r.pendingLimit)
	}
	for _, ev := range events {
		r.eventSeq++
		ev.Seq = r.eventSeq
		r.pending = append(r.pending, ev)
	}
	r.mu.Unlock()

	r.metrics.addPending(len(events))
	r.signal()
	return nil
}

// Pending returns the number of events waiting for a frame.
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Wake is signalled whenever events are submitted.
func (r *Runtime) Wake() <-chan struct{} {
	return r.wake
}

func (r *Runtime) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) takePending() []Event {
	r.mu.Lock()
	events := r.pending
	r.pending = nil
	r.mu.Unlock()
	r.metrics.addPending(-len(events))
	return events
}

// enter moves the runtime from Idle to InFrame.
func (r *Runtime) enter(op string) error {
	if r.state.CompareAndSwap(int32(StateIdle), int32(StateInFrame)) {
		return nil
	}
	if r.State() == StateAborted {
		return errors.New(errors.KindFrameAborted, op, nil).Wrap(r.AbortError())
	}
	return errors.New(errors.KindFrameAlreadyRunning, op, nil)
}

// StartFrame runs one frame over events. Events without a sequence number
// are numbered as if they had been submitted.
func (r *Runtime) StartFrame(ctx context.Context, events []Event) (*Result, error) {
	if err := r.enter("runtime.StartFrame"); err != nil {
		return nil, err
	}
	batch := make([]Event, len(events))
	r.mu.Lock()
	for i, ev := range events {
		if ev.Seq == 0 {
			r.eventSeq++
			ev.Seq = r.eventSeq
		}
		batch[i] = ev
	}
	r.mu.Unlock()
	return r.run(ctx, batch, nil)
}

// RunPending runs one frame over every pending event. It returns a nil
// Result and no error when nothing is pending.
func (r *Runtime) RunPending(ctx context.Context) (*Result, error) {
	if err := r.enter("runtime.RunPending"); err != nil {
		return nil, err
	}
	events := r.takePending()
	if len(events) == 0 {
		r.state.Store(int32(StateIdle))
		return nil, nil
	}
	return r.run(ctx, events, nil)
}

// Build runs a frame whose only step is fn. Tree builders use it to mount
// fragments, since the graph may only be mutated inside a frame.
func (r *Runtime) Build(ctx context.Context, fn func(f *Frame) error) (*Result, error) {
	if err := r.enter("runtime.Build"); err != nil {
		return nil, err
	}
	return r.run(ctx, nil, fn)
}

// Acknowledge returns an Aborted runtime to Idle. err must be the error the
// frame aborted with.
func (r *Runtime) Acknowledge(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateAborted {
		return nil
	}
	if err == nil || !errors.Is(err, r.abortErr) {
		return errors.New(errors.KindFrameAborted, "runtime.Acknowledge", nil).
			WithDetail("error does not match the abort error").Wrap(r.abortErr)
	}
	r.abortErr = nil
	r.state.Store(int32(StateIdle))
	r.logger.Debug("abort acknowledged")
	return nil
}

func (r *Runtime) run(ctx context.Context, events []Event, build func(*Frame) error) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	r.frameSeq++
	seq := r.frameSeq

	ctx, span := r.tracer.Start(ctx, "frel.frame",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("frel.frame.seq", int64(seq)),
			attribute.Int("frel.frame.events", len(events)),
		))
	defer span.End()

	r.begin()
	f := &Frame{rt: r, ctx: ctx, frameCtx: ctx, seq: seq}
	res, err := r.execute(f, events, build)
	f.closed = true
	elapsed := time.Since(start)

	if err != nil {
		r.rollback()
		r.mu.Lock()
		r.abortErr = err
		r.state.Store(int32(StateAborted))
		r.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.observeFrame(statusAborted, elapsed, nil)
		r.logger.Warn("frame aborted",
			slog.Uint64("frame", seq),
			slog.Int("events", len(events)),
			slog.String("code", errors.CodeOf(err)),
			slog.Any("error", err))
		return nil, err
	}

	r.commit()
	res.Deferred = len(f.deferred)
	if len(f.deferred) > 0 {
		// Follow-ups are never refused; they were produced by accepted events.
		r.mu.Lock()
		for _, ev := range f.deferred {
			r.eventSeq++
			ev.Seq = r.eventSeq
			r.pending = append(r.pending, ev)
		}
		r.mu.Unlock()
		r.metrics.addPending(len(f.deferred))
		r.signal()
	}
	r.state.Store(int32(StateIdle))

	span.SetAttributes(
		attribute.Int("frel.frame.patches", len(res.Patches)),
		attribute.Int("frel.drain.rounds", res.Stats.Rounds),
		attribute.Int("frel.drain.recomputations", res.Stats.Recomputations),
	)
	span.SetStatus(codes.Ok, "")
	r.metrics.observeFrame(statusCommitted, elapsed, res)
	r.updateLive()
	r.logger.Debug("frame committed",
		slog.Uint64("frame", seq),
		slog.Int("events", res.Events),
		slog.Int("patches", len(res.Patches)),
		slog.Int("rounds", res.Stats.Rounds),
		slog.Duration("duration", elapsed))
	return res, nil
}

// execute runs the frame steps with panic recovery.
func (r *Runtime) execute(f *Frame, events []Event, build func(*Frame) error) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			r.logger.Error("frame panic",
				slog.Uint64("frame", f.seq),
				slog.String("event", f.event.Type),
				slog.Any("panic", p),
				slog.String("stack", string(stack)))
			res = nil
			err = &PanicError{Frame: f.seq, Event: f.event, Panic: p, Stack: stack}
		}
	}()

	if build != nil {
		if err := build(f); err != nil {
			return nil, err
		}
	}
	dispatched := 0
	for _, ev := range events {
		h := r.handler(ev.Type)
		if h == nil {
			r.logger.Debug("no handler for event", slog.String("type", ev.Type), slog.Uint64("seq", ev.Seq))
			continue
		}
		f.event = ev
		err := h(f, ev)
		f.ctx = f.frameCtx
		if err != nil {
			return nil, &HandlerError{Event: ev, Err: err}
		}
		dispatched++
	}
	f.event = Event{}

	stats, err := r.stores.Drain(r.queue)
	if err != nil {
		return nil, err
	}
	patches, err := r.gen.Flush(r.queue, r.arena, r.stores)
	if err != nil {
		return nil, err
	}
	return &Result{
		Seq:     f.seq,
		Patches: patches,
		Events:  dispatched,
		Stats:   stats,
	}, nil
}

func (r *Runtime) begin() {
	r.queue.Reset()
	r.stores.Begin()
	r.arena.Begin()
}

func (r *Runtime) commit() {
	r.arena.Commit()
	r.stores.Commit()
}

func (r *Runtime) rollback() {
	r.arena.Rollback()
	r.stores.Rollback()
	r.queue.Reset()
}

func (r *Runtime) updateLive() {
	s, f := r.stores.Len(), r.arena.Len()
	r.metrics.addLive(s-r.lastLive[0], f-r.lastLive[1])
	r.lastLive = [2]int{s, f}
}

// Close withdraws the runtime's share of the shared gauges. The runtime must
// not be used afterwards.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.metrics.addLive(-r.lastLive[0], -r.lastLive[1])
		r.lastLive = [2]int{}
		r.metrics.addPending(-r.Pending())
	})
}

// Read returns the committed value of a store. It must not be called
// concurrently with a frame.
func (r *Runtime) Read(id ident.ID) (any, error) {
	if r.State() == StateInFrame {
		return nil, errors.New(errors.KindFrameAlreadyRunning, "runtime.Read", id)
	}
	return r.stores.Read(id)
}

// Fragment returns a snapshot of a fragment. It must not be called
// concurrently with a frame.
func (r *Runtime) Fragment(key ident.FragmentKey) (fragment.Handle, error) {
	if r.State() == StateInFrame {
		return fragment.Handle{}, errors.New(errors.KindFrameAlreadyRunning, "runtime.Fragment", key)
	}
	return r.arena.Get(key)
}

// Stats counts the live objects of a runtime.
type Stats struct {
	Stores        int
	Fragments     int
	Subscriptions int
	Pending       int
}

// Stats returns live object counts. It must not be called concurrently with
// a frame.
func (r *Runtime) Stats() Stats {
	return Stats{
		Stores:        r.stores.Len(),
		Fragments:     r.arena.Len(),
		Subscriptions: r.registry.Len(),
		Pending:       r.Pending(),
	}
}
