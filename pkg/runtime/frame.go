package runtime

import (
	"context"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/fragment"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/subscription"
)

// Frame is the handler-facing view of a running frame. It is only valid
// until the frame ends; afterwards every method fails with ErrFrameClosed.
type Frame struct {
	rt       *Runtime
	ctx      context.Context
	frameCtx context.Context
	seq      uint64
	event    Event
	deferred []Event
	closed   bool
}

func (f *Frame) check(op string) error {
	if f.closed {
		return errors.New(errors.KindFrameClosed, op, f.seq)
	}
	return nil
}

// Context returns the frame's context. It carries the frame span and is not
// cancelled by the runtime.
func (f *Frame) Context() context.Context {
	return f.ctx
}

// SetContext replaces the context seen by the current handler. The frame
// context is restored when the handler returns. Middleware uses it to hand
// an event span to the handler it wraps.
func (f *Frame) SetContext(ctx context.Context) {
	if ctx != nil {
		f.ctx = ctx
	}
}

// Seq returns the frame sequence number.
func (f *Frame) Seq() uint64 {
	return f.seq
}

// Event returns the event being dispatched, or the zero Event outside
// handler dispatch.
func (f *Frame) Event() Event {
	return f.event
}

// Read returns the committed value of id. Writes staged in this frame are
// not visible until the frame drains.
func (f *Frame) Read(id ident.ID) (any, error) {
	if err := f.check("frame.Read"); err != nil {
		return nil, err
	}
	return f.rt.stores.Read(id)
}

// Write stages a value-only change.
func (f *Frame) Write(id ident.ID, v any) error {
	if err := f.check("frame.Write"); err != nil {
		return err
	}
	return f.rt.stores.Write(id, v)
}

// WriteStructural stages a change to the shape of the value.
func (f *Frame) WriteStructural(id ident.ID, v any) error {
	if err := f.check("frame.WriteStructural"); err != nil {
		return err
	}
	return f.rt.stores.WriteStructural(id, v)
}

// WriteKeyed stages a change to one keyed part of the value.
func (f *Frame) WriteKeyed(id ident.ID, key string, v any) error {
	if err := f.check("frame.WriteKeyed"); err != nil {
		return err
	}
	return f.rt.stores.WriteKeyed(id, key, v)
}

// validOwner accepts the root key or a live fragment.
func (f *Frame) validOwner(owner ident.FragmentKey) error {
	if owner.IsZero() {
		return nil
	}
	return f.rt.arena.Valid(owner)
}

// CreateWritable creates a writable store owned by owner. A zero owner is
// the process root: the store lives until the runtime does.
func (f *Frame) CreateWritable(owner ident.FragmentKey, initial any, opts ...reactive.StoreOption) (ident.ID, error) {
	if err := f.check("frame.CreateWritable"); err != nil {
		return 0, err
	}
	if err := f.validOwner(owner); err != nil {
		return 0, err
	}
	id, err := f.rt.stores.CreateWritable(owner, initial, opts...)
	if err != nil {
		return 0, err
	}
	if !owner.IsZero() {
		if err := f.rt.arena.AttachStore(owner, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// CreateComputation creates a computation owned by owner and evaluates it.
func (f *Frame) CreateComputation(owner ident.FragmentKey, deps []ident.ID, fn reactive.ComputeFunc, opts ...reactive.StoreOption) (ident.ID, error) {
	if err := f.check("frame.CreateComputation"); err != nil {
		return 0, err
	}
	if err := f.validOwner(owner); err != nil {
		return 0, err
	}
	id, err := f.rt.stores.CreateComputation(owner, deps, fn, opts...)
	if err != nil {
		return 0, err
	}
	if !owner.IsZero() {
		if err := f.rt.arena.AttachStore(owner, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Allocate creates a fragment for desc under parent (zero for a root
// fragment) and queues its first render.
func (f *Frame) Allocate(parent ident.FragmentKey, desc render.Descriptor) (ident.FragmentKey, error) {
	if err := f.check("frame.Allocate"); err != nil {
		return ident.FragmentKey{}, err
	}
	key, err := f.rt.arena.AllocateChild(parent, desc)
	if err != nil {
		return ident.FragmentKey{}, err
	}
	f.rt.queue.Enqueue(key)
	return key, nil
}

// Subscribe makes owner a subscriber of source. The owner is re-rendered
// when a change matching sel is drained, and cb (if any) is called with the
// matched change. The subscription is released when owner is destroyed.
func (f *Frame) Subscribe(owner ident.FragmentKey, source ident.ID, sel subscription.Selector, cb subscription.Callback) (ident.SubscriptionID, error) {
	if err := f.check("frame.Subscribe"); err != nil {
		return 0, err
	}
	if err := f.rt.arena.Valid(owner); err != nil {
		return 0, err
	}
	id, err := f.rt.stores.Subscribe(source, owner, sel, cb)
	if err != nil {
		return 0, err
	}
	if err := f.rt.arena.AttachSubscription(owner, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Unsubscribe removes a subscription. It reports whether it was present.
func (f *Frame) Unsubscribe(id ident.SubscriptionID) (bool, error) {
	if err := f.check("frame.Unsubscribe"); err != nil {
		return false, err
	}
	sub, ok := f.rt.stores.Registry().Get(id)
	if !ok {
		return false, nil
	}
	f.rt.stores.Unsubscribe(id)
	f.rt.arena.DetachSubscription(sub.Owner, id)
	return true, nil
}

// Destroy tears down key and everything it owns. Destroying a stale key is
// a no-op.
func (f *Frame) Destroy(key ident.FragmentKey) error {
	if err := f.check("frame.Destroy"); err != nil {
		return err
	}
	return f.rt.arena.Destroy(key)
}

// Invalidate queues key for a re-render without any store change.
func (f *Frame) Invalidate(key ident.FragmentKey) error {
	if err := f.check("frame.Invalidate"); err != nil {
		return err
	}
	if err := f.rt.arena.Valid(key); err != nil {
		return err
	}
	f.rt.queue.Enqueue(key)
	return nil
}

// Reconcile makes the children of parent match the keyed item list, building
// fragments for new items. The parent is queued for a re-render when its
// child list changed.
func (f *Frame) Reconcile(parent ident.FragmentKey, items []string, build fragment.BuildFunc) (fragment.Reconciliation, error) {
	if err := f.check("frame.Reconcile"); err != nil {
		return fragment.Reconciliation{}, err
	}
	rec, err := fragment.NewRepeat(f.rt.arena, parent).Reconcile(items, build)
	if err != nil {
		return rec, err
	}
	if rec.Changed() {
		f.rt.queue.Enqueue(parent)
	}
	return rec, nil
}

// Children returns the children of key in order.
func (f *Frame) Children(key ident.FragmentKey) ([]ident.FragmentKey, error) {
	if err := f.check("frame.Children"); err != nil {
		return nil, err
	}
	return f.rt.arena.Children(key)
}

// Fragment returns a snapshot of key.
func (f *Frame) Fragment(key ident.FragmentKey) (fragment.Handle, error) {
	if err := f.check("frame.Fragment"); err != nil {
		return fragment.Handle{}, err
	}
	return f.rt.arena.Get(key)
}

// Defer queues ev for a later frame. Deferred events are dropped if this
// frame aborts.
func (f *Frame) Defer(ev Event) error {
	if err := f.check("frame.Defer"); err != nil {
		return err
	}
	ev.Seq = 0
	f.deferred = append(f.deferred, ev)
	return nil
}
