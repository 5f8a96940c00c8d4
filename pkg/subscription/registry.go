package subscription

import (
	"slices"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/internal/undo"
	"github.com/frel-dev/frel/pkg/ident"
)

// TargetKind is the closed set of subscriber kinds.
type TargetKind uint8

const (
	TargetComputation TargetKind = iota + 1
	TargetFragment
)

// String returns the human-readable name of the kind.
func (k TargetKind) String() string {
	switch k {
	case TargetComputation:
		return "Computation"
	case TargetFragment:
		return "Fragment"
	default:
		return "Unknown"
	}
}

// Target is the notified side of a subscription.
type Target struct {
	Kind     TargetKind
	Store    ident.ID          // set for TargetComputation
	Fragment ident.FragmentKey // set for TargetFragment
}

// ComputationTarget returns a target naming a computation.
func ComputationTarget(id ident.ID) Target {
	return Target{Kind: TargetComputation, Store: id}
}

// FragmentTarget returns a target naming a fragment.
func FragmentTarget(key ident.FragmentKey) Target {
	return Target{Kind: TargetFragment, Fragment: key}
}

// String returns the target formatted for logs.
func (t Target) String() string {
	switch t.Kind {
	case TargetComputation:
		return t.Store.String()
	case TargetFragment:
		return t.Fragment.String()
	default:
		return "invalid"
	}
}

// Callback is invoked by the drain when a subscription's selector matches a
// change at its source.
type Callback func(source ident.ID, change Change)

// Subscription is one registered edge. Subscriptions are immutable once
// registered.
type Subscription struct {
	ID       ident.SubscriptionID
	Source   ident.ID
	Target   Target
	Selector Selector
	// Owner is the fragment responsible for releasing this edge. Computation
	// edges are owned by the fragment that owns the computation.
	Owner    ident.FragmentKey
	Callback Callback
}

// Registry maps each source to its subscribers in creation order.
//
// A Registry is not safe for concurrent use; the runtime owns it exclusively.
type Registry struct {
	subs     map[ident.SubscriptionID]*Subscription
	bySource map[ident.ID][]ident.SubscriptionID
	next     ident.SubscriptionID

	subLog    undo.Log[ident.SubscriptionID, *Subscription]
	sourceLog undo.Log[ident.ID, []ident.SubscriptionID]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:     make(map[ident.SubscriptionID]*Subscription),
		bySource: make(map[ident.ID][]ident.SubscriptionID),
	}
}

// Subscribe registers an edge from source to target and returns its ID.
func (r *Registry) Subscribe(source ident.ID, target Target, sel Selector, owner ident.FragmentKey, cb Callback) (ident.SubscriptionID, error) {
	if source.IsZero() {
		return 0, errors.New(errors.KindInvalidIdentity, "subscription.Subscribe", source)
	}
	switch target.Kind {
	case TargetComputation:
		if target.Store.IsZero() {
			return 0, errors.New(errors.KindInvalidIdentity, "subscription.Subscribe", target)
		}
	case TargetFragment:
		if target.Fragment.IsZero() {
			return 0, errors.New(errors.KindInvalidKey, "subscription.Subscribe", target)
		}
	default:
		return 0, errors.New(errors.KindInvalidIdentity, "subscription.Subscribe", target).
			WithDetail("unknown target kind %d", target.Kind)
	}
	if !sel.Valid() {
		return 0, errors.New(errors.KindInvalidIdentity, "subscription.Subscribe", source).
			WithDetail("invalid selector")
	}

	r.next++
	s := &Subscription{
		ID:       r.next,
		Source:   source,
		Target:   target,
		Selector: sel,
		Owner:    owner,
		Callback: cb,
	}

	r.subLog.Touch(s.ID, nil, false)
	r.subs[s.ID] = s
	r.touchSource(source)
	r.bySource[source] = append(r.bySource[source], s.ID)
	return s.ID, nil
}

// Unsubscribe removes an edge. It returns false if the edge was not
// registered, which is not an error.
func (r *Registry) Unsubscribe(id ident.SubscriptionID) bool {
	s, ok := r.subs[id]
	if !ok {
		return false
	}

	r.subLog.Touch(id, s, true)
	delete(r.subs, id)

	r.touchSource(s.Source)
	list := r.bySource[s.Source]
	if i := slices.Index(list, id); i >= 0 {
		list = slices.Delete(slices.Clone(list), i, i+1)
	}
	if len(list) == 0 {
		delete(r.bySource, s.Source)
	} else {
		r.bySource[s.Source] = list
	}
	return true
}

// SubscribersOf returns the subscribers of source in creation order.
// The returned slice is a copy.
func (r *Registry) SubscribersOf(source ident.ID) []Subscription {
	ids := r.bySource[source]
	if len(ids) == 0 {
		return nil
	}
	out := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.subs[id])
	}
	return out
}

// RemoveSource unsubscribes every edge whose source is source and returns
// the removed edges in creation order.
func (r *Registry) RemoveSource(source ident.ID) []Subscription {
	removed := r.SubscribersOf(source)
	for _, s := range removed {
		r.Unsubscribe(s.ID)
	}
	return removed
}

// Get returns the subscription with the given ID.
func (r *Registry) Get(id ident.SubscriptionID) (Subscription, bool) {
	s, ok := r.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *s, true
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Each calls fn for every subscription in creation order until fn returns false.
func (r *Registry) Each(fn func(Subscription) bool) {
	ids := make([]ident.SubscriptionID, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !fn(*r.subs[id]) {
			return
		}
	}
}

// Begin starts journaling so Rollback can restore the current state.
// Subscription IDs are never reused, even across a rollback.
func (r *Registry) Begin() {
	r.subLog.Begin()
	r.sourceLog.Begin()
}

// Commit keeps every change made since Begin.
func (r *Registry) Commit() {
	r.subLog.Commit()
	r.sourceLog.Commit()
}

// Rollback restores the state at Begin.
func (r *Registry) Rollback() {
	r.subLog.Rollback(func(id ident.SubscriptionID, s *Subscription, present bool) {
		if present {
			r.subs[id] = s
		} else {
			delete(r.subs, id)
		}
	})
	r.sourceLog.Rollback(func(src ident.ID, ids []ident.SubscriptionID, present bool) {
		if present {
			r.bySource[src] = ids
		} else {
			delete(r.bySource, src)
		}
	})
}

// touchSource journals the subscriber list of src. Lists are only appended to
// past their length or replaced, so the saved slice stays intact.
func (r *Registry) touchSource(src ident.ID) {
	ids, ok := r.bySource[src]
	r.sourceLog.Touch(src, ids, ok)
}
