package reactive

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/internal/undo"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/subscription"
)

// Kind distinguishes the two store variants.
type Kind uint8

const (
	KindWritable Kind = iota + 1
	KindComputation
)

func (k Kind) String() string {
	switch k {
	case KindWritable:
		return "writable"
	case KindComputation:
		return "computation"
	default:
		return "unknown"
	}
}

// ComputeFunc derives a computation's value. Reads through the Tracker become
// dependency edges.
type ComputeFunc func(t *Tracker) (any, error)

// Enqueuer receives fragments whose subscriptions matched during a drain.
// Enqueue must be idempotent and report whether the key was newly queued.
type Enqueuer interface {
	Enqueue(key ident.FragmentKey) bool
}

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Rounds         int
	Recomputations int
	Notifications  int
	Enqueued       int
}

// edge is one dependency of a computation, backed by a registry subscription.
type edge struct {
	source ident.ID
	sel    subscription.Selector
	sub    ident.SubscriptionID
}

type entry struct {
	id    ident.ID
	kind  Kind
	name  string
	owner ident.FragmentKey

	value     any
	staged    any
	hasStaged bool
	equal     EqualFunc

	compute   ComputeFunc
	declared  []ident.ID
	deps      []edge
	rank      int
	computing bool
}

func (e *entry) clone() *entry {
	c := *e
	c.declared = slices.Clone(e.declared)
	c.deps = slices.Clone(e.deps)
	return &c
}

func (e *entry) equals(a, b any) bool {
	if e.equal != nil {
		return e.equal(a, b)
	}
	return DefaultEquals(a, b)
}

func (e *entry) label() string {
	if e.name != "" {
		return fmt.Sprintf("%s(%s)", e.id, e.name)
	}
	return e.id.String()
}

// Stores is the table of every live writable and computation. It is not safe
// for concurrent use; the runtime confines it to the frame goroutine.
type Stores struct {
	reg     *subscription.Registry
	entries map[ident.ID]*entry
	last    ident.ID
	maxIDs  uint64

	dirty   []ident.ID
	changes map[ident.ID][]subscription.Change

	maxRounds int
	logger    *slog.Logger
	wave      *wave

	log          undo.Log[ident.ID, *entry]
	savedDirty   []ident.ID
	savedChanges map[ident.ID][]subscription.Change
}

// New creates an empty store table backed by reg.
func New(reg *subscription.Registry, opts ...Option) *Stores {
	if reg == nil {
		reg = subscription.NewRegistry()
	}
	s := &Stores{
		reg:       reg,
		entries:   make(map[ident.ID]*entry),
		changes:   make(map[ident.ID][]subscription.Change),
		maxIDs:    DefaultMaxIdentities,
		maxRounds: DefaultMaxRounds,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the subscription registry the stores propagate through.
func (s *Stores) Registry() *subscription.Registry {
	return s.reg
}

func (s *Stores) allocate(op string) (ident.ID, error) {
	if uint64(s.last) >= s.maxIDs {
		return 0, errors.New(errors.KindResourceExhausted, op, nil).
			WithDetail("identity space of %d exhausted", s.maxIDs)
	}
	s.last++
	return s.last, nil
}

func (s *Stores) lookup(id ident.ID, op string) (*entry, error) {
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	if id != 0 && id <= s.last {
		return nil, errors.New(errors.KindUseAfterFree, op, id)
	}
	return nil, errors.New(errors.KindInvalidIdentity, op, id)
}

// touch journals e before its first mutation in the current transaction.
func (s *Stores) touch(e *entry) {
	if s.log.Active() && !s.log.Touched(e.id) {
		s.log.Touch(e.id, e.clone(), true)
	}
}

func (s *Stores) insert(e *entry) {
	s.log.Touch(e.id, nil, false)
	s.entries[e.id] = e
}

// CreateWritable creates a writable store holding initial.
func (s *Stores) CreateWritable(owner ident.FragmentKey, initial any, opts ...StoreOption) (ident.ID, error) {
	id, err := s.allocate("reactive.CreateWritable")
	if err != nil {
		return 0, err
	}
	e := &entry{id: id, kind: KindWritable, owner: owner, value: initial}
	for _, opt := range opts {
		opt(e)
	}
	s.insert(e)
	return id, nil
}

// CreateComputation creates a computation and evaluates it immediately.
// Every declared dependency is tracked with the Everything selector in
// addition to the reads fn makes. If the first evaluation fails the
// computation is discarded.
func (s *Stores) CreateComputation(owner ident.FragmentKey, deps []ident.ID, fn ComputeFunc, opts ...StoreOption) (ident.ID, error) {
	const op = "reactive.CreateComputation"
	if fn == nil {
		return 0, errors.New(errors.KindInvalidIdentity, op, nil).WithDetail("nil compute function")
	}
	for _, d := range deps {
		if _, err := s.lookup(d, op); err != nil {
			return 0, err
		}
	}
	id, err := s.allocate(op)
	if err != nil {
		return 0, err
	}
	e := &entry{
		id:       id,
		kind:     KindComputation,
		owner:    owner,
		compute:  fn,
		declared: slices.Clone(deps),
	}
	for _, opt := range opts {
		opt(e)
	}
	s.insert(e)
	if _, err := s.recompute(e); err != nil {
		delete(s.entries, id)
		return 0, err
	}
	return id, nil
}

// Read returns the last committed value of id. Staged writes are not visible
// until the frame drains.
func (s *Stores) Read(id ident.ID) (any, error) {
	e, err := s.lookup(id, "reactive.Read")
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// Write stages v for id, tagged as a carried (value-only) change.
func (s *Stores) Write(id ident.ID, v any) error {
	return s.write("reactive.Write", id, v, subscription.Carried())
}

// WriteStructural stages v for id, tagged as a structural change.
func (s *Stores) WriteStructural(id ident.ID, v any) error {
	return s.write("reactive.WriteStructural", id, v, subscription.Structural())
}

// WriteKeyed stages v for id, tagged as a change to key.
func (s *Stores) WriteKeyed(id ident.ID, key string, v any) error {
	return s.write("reactive.WriteKeyed", id, v, subscription.Keyed(key))
}

func (s *Stores) write(op string, id ident.ID, v any, c subscription.Change) error {
	e, err := s.lookup(id, op)
	if err != nil {
		return err
	}
	if e.kind != KindWritable {
		return errors.New(errors.KindInvalidIdentity, op, id).WithDetail("%s is a computation", e.label())
	}
	s.touch(e)
	e.staged = v
	e.hasStaged = true
	s.markDirty(id, c)
	return nil
}

func (s *Stores) markDirty(id ident.ID, c subscription.Change) {
	cs, ok := s.changes[id]
	if !ok {
		s.dirty = append(s.dirty, id)
	}
	if !slices.Contains(cs, c) {
		s.changes[id] = append(cs, c)
	}
}

// Release removes id, its dependency edges and every subscription naming it
// as source. Computations that depended on id keep their last value and stop
// tracking it. Releasing an already released identity is a no-op.
func (s *Stores) Release(id ident.ID) error {
	const op = "reactive.Release"
	e, err := s.lookup(id, op)
	if err != nil {
		if errors.KindOf(err) == errors.KindUseAfterFree {
			return nil
		}
		return err
	}
	s.touch(e)
	for _, d := range e.deps {
		s.reg.Unsubscribe(d.sub)
	}
	for _, sub := range s.reg.RemoveSource(id) {
		if sub.Target.Kind != subscription.TargetComputation {
			continue
		}
		dep, ok := s.entries[sub.Target.Store]
		if !ok {
			continue
		}
		s.touch(dep)
		dep.deps = slices.DeleteFunc(dep.deps, func(d edge) bool { return d.sub == sub.ID })
		dep.declared = slices.DeleteFunc(dep.declared, func(d ident.ID) bool { return d == id })
	}
	delete(s.entries, id)
	if _, ok := s.changes[id]; ok {
		delete(s.changes, id)
		s.dirty = slices.DeleteFunc(s.dirty, func(d ident.ID) bool { return d == id })
	}
	if s.wave != nil {
		delete(s.wave.scheduled, id)
		delete(s.wave.check, id)
	}
	return nil
}

// Subscribe registers a fragment as a subscriber of source.
func (s *Stores) Subscribe(source ident.ID, key ident.FragmentKey, sel subscription.Selector, cb subscription.Callback) (ident.SubscriptionID, error) {
	if _, err := s.lookup(source, "reactive.Subscribe"); err != nil {
		return 0, err
	}
	return s.reg.Subscribe(source, subscription.FragmentTarget(key), sel, key, cb)
}

// Unsubscribe removes a subscription. It reports whether it was present.
func (s *Stores) Unsubscribe(id ident.SubscriptionID) bool {
	return s.reg.Unsubscribe(id)
}

// Kind reports the variant of id.
func (s *Stores) Kind(id ident.ID) (Kind, error) {
	e, err := s.lookup(id, "reactive.Kind")
	if err != nil {
		return 0, err
	}
	return e.kind, nil
}

// Owner reports the fragment that owns id. The zero key is the process root.
func (s *Stores) Owner(id ident.ID) (ident.FragmentKey, error) {
	e, err := s.lookup(id, "reactive.Owner")
	if err != nil {
		return ident.FragmentKey{}, err
	}
	return e.owner, nil
}

// Rank is the topological height of id: zero for writables, one more than the
// highest dependency for computations.
func (s *Stores) Rank(id ident.ID) (int, error) {
	e, err := s.lookup(id, "reactive.Rank")
	if err != nil {
		return 0, err
	}
	return e.rank, nil
}

// Dependencies lists the sources a computation currently depends on, in the
// order they were first read.
func (s *Stores) Dependencies(id ident.ID) ([]ident.ID, error) {
	e, err := s.lookup(id, "reactive.Dependencies")
	if err != nil {
		return nil, err
	}
	out := make([]ident.ID, 0, len(e.deps))
	for _, d := range e.deps {
		if !slices.Contains(out, d.source) {
			out = append(out, d.source)
		}
	}
	return out, nil
}

// Exists reports whether id is live.
func (s *Stores) Exists(id ident.ID) bool {
	_, ok := s.entries[id]
	return ok
}

// Len is the number of live stores.
func (s *Stores) Len() int {
	return len(s.entries)
}

// Dirty reports whether staged writes are waiting for a drain.
func (s *Stores) Dirty() bool {
	return len(s.dirty) > 0
}

// Begin starts journaling. Every mutation until Commit or Rollback can be
// undone, including the subscription registry's.
func (s *Stores) Begin() {
	s.log.Begin()
	s.reg.Begin()
	s.savedDirty = slices.Clone(s.dirty)
	s.savedChanges = maps.Clone(s.changes)
}

// Commit keeps every mutation since Begin.
func (s *Stores) Commit() {
	s.log.Commit()
	s.reg.Commit()
	s.savedDirty, s.savedChanges = nil, nil
}

// Rollback restores the table to its state at Begin. Identities allocated
// since then are not handed out again.
func (s *Stores) Rollback() {
	s.log.Rollback(func(id ident.ID, e *entry, present bool) {
		if present {
			s.entries[id] = e
		} else {
			delete(s.entries, id)
		}
	})
	s.reg.Rollback()
	s.dirty = s.savedDirty
	s.changes = s.savedChanges
	if s.changes == nil {
		s.changes = make(map[ident.ID][]subscription.Change)
	}
	s.savedDirty, s.savedChanges = nil, nil
	s.wave = nil
}
