package reactive

import (
	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/subscription"
)

type read struct {
	source ident.ID
	sel    subscription.Selector
}

// Tracker is handed to a ComputeFunc. Every read made through it becomes a
// dependency of the computation being evaluated. A Tracker is only valid for
// the duration of the call it was passed to.
type Tracker struct {
	stores *Stores
	self   *entry
	reads  []read
	seen   map[read]struct{}
	err    error
}

// Get reads id and depends on every change to it.
func (t *Tracker) Get(id ident.ID) (any, error) {
	return t.Track(id, subscription.Everything())
}

// Track reads id and depends on the changes sel matches. Reading a
// computation that a change in the current wave may reach settles it first,
// so the value returned is never stale.
func (t *Tracker) Track(id ident.ID, sel subscription.Selector) (any, error) {
	const op = "reactive.Track"
	if !sel.Valid() {
		return nil, t.fail(errors.New(errors.KindInvalidIdentity, op, id).WithDetail("invalid selector"))
	}
	e, err := t.stores.lookup(id, op)
	if err != nil {
		return nil, t.fail(err)
	}
	if e.computing {
		return nil, t.fail(errors.New(errors.KindCycleDetected, op, id).
			WithDetail("%s read %s while it was being computed", t.self.label(), e.label()))
	}
	if w := t.stores.wave; w != nil && e.kind == KindComputation && w.stale(e.id) {
		if err := w.settle(e); err != nil {
			return nil, t.fail(err)
		}
	}
	r := read{source: id, sel: sel}
	if _, ok := t.seen[r]; !ok {
		t.seen[r] = struct{}{}
		t.reads = append(t.reads, r)
	}
	return e.value, nil
}

// fail keeps the first error so a compute function that swallows it still
// fails the recompute.
func (t *Tracker) fail(err error) error {
	if t.err == nil {
		t.err = err
	}
	return err
}
