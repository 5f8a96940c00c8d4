package fragment

import (
	"log/slog"
	"math"
	"slices"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/internal/undo"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/subscription"
)

// DefaultMaxFragments bounds the number of live fragments.
const DefaultMaxFragments = math.MaxUint32 - 1

// Handle is a read-only view of a live fragment.
type Handle struct {
	Key           ident.FragmentKey
	Parent        ident.FragmentKey
	Item          string
	Descriptor    render.Descriptor
	Stores        []ident.ID
	Subscriptions []ident.SubscriptionID
	Children      []ident.FragmentKey
	Renders       int
}

type handle struct {
	parent   ident.FragmentKey
	item     string
	desc     render.Descriptor
	stores   []ident.ID
	subs     []ident.SubscriptionID
	children []ident.FragmentKey
	renders  int
}

func (h *handle) clone() *handle {
	if h == nil {
		return nil
	}
	c := *h
	c.stores = slices.Clone(h.stores)
	c.subs = slices.Clone(h.subs)
	c.children = slices.Clone(h.children)
	return &c
}

// slot is one arena cell. hw is the highest generation ever issued for the
// slot; it only grows, even across rollbacks, so a key handed out once can
// never name a different handle later.
type slot struct {
	gen uint32 // generation of the live handle, 0 when free
	hw  uint32
	h   *handle
}

func (s *slot) retired() bool {
	return s.gen == 0 && s.hw == math.MaxUint32
}

type slotState struct {
	gen uint32
	h   *handle
}

// Option configures an Arena.
type Option func(*Arena)

// WithMaxFragments caps the number of live fragments.
func WithMaxFragments(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.max = n
		}
	}
}

// WithLogger sets the arena's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.logger = l
		}
	}
}

// Arena owns every fragment handle. Keys are generation tagged, so a key kept
// after its fragment was destroyed is reported as UseAfterFree instead of
// aliasing a newer fragment in the same slot.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	stores *reactive.Stores
	slots  []slot
	free   []uint32
	live   int
	max    int
	logger *slog.Logger

	log       undo.Log[uint32, slotState]
	savedFree []uint32
	savedLive int
}

// NewArena creates an arena whose fragments own stores in stores.
func NewArena(stores *reactive.Stores, opts ...Option) *Arena {
	a := &Arena{
		stores: stores,
		max:    DefaultMaxFragments,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arena) touch(i uint32, present bool) {
	if !a.log.Active() || a.log.Touched(i) {
		return
	}
	if !present {
		a.log.Touch(i, slotState{}, false)
		return
	}
	s := a.slots[i]
	a.log.Touch(i, slotState{gen: s.gen, h: s.h.clone()}, true)
}

func (a *Arena) lookup(key ident.FragmentKey, op string) (*handle, error) {
	if key.IsZero() || int(key.Index) >= len(a.slots) {
		return nil, errors.New(errors.KindInvalidKey, op, key)
	}
	s := &a.slots[key.Index]
	if s.gen != 0 && s.gen == key.Generation {
		return s.h, nil
	}
	if key.Generation != 0 && key.Generation <= s.hw {
		return nil, errors.New(errors.KindUseAfterFree, op, key)
	}
	return nil, errors.New(errors.KindInvalidKey, op, key)
}

// Allocate creates a parentless fragment for desc.
func (a *Arena) Allocate(desc render.Descriptor) (ident.FragmentKey, error) {
	const op = "fragment.Allocate"
	if a.live >= a.max {
		return ident.FragmentKey{}, errors.New(errors.KindResourceExhausted, op, nil).
			WithDetail("fragment limit of %d reached", a.max)
	}
	for n := len(a.free); n > 0 && a.slots[a.free[n-1]].hw == math.MaxUint32; n-- {
		a.free = a.free[:n-1]
	}
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
		a.touch(i, true)
	} else {
		if len(a.slots) >= math.MaxUint32 {
			return ident.FragmentKey{}, errors.New(errors.KindResourceExhausted, op, nil).
				WithDetail("slot space exhausted")
		}
		i = uint32(len(a.slots))
		a.touch(i, false)
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[i]
	s.hw++
	s.gen = s.hw
	s.h = &handle{desc: desc}
	a.live++
	return ident.FragmentKey{Index: i, Generation: s.gen}, nil
}

// AllocateChild creates a fragment for desc owned by parent. A zero parent
// allocates a root fragment.
func (a *Arena) AllocateChild(parent ident.FragmentKey, desc render.Descriptor) (ident.FragmentKey, error) {
	if !parent.IsZero() {
		if _, err := a.lookup(parent, "fragment.AllocateChild"); err != nil {
			return ident.FragmentKey{}, err
		}
	}
	key, err := a.Allocate(desc)
	if err != nil {
		return ident.FragmentKey{}, err
	}
	if parent.IsZero() {
		return key, nil
	}
	if err := a.AttachChild(parent, key); err != nil {
		return ident.FragmentKey{}, err
	}
	return key, nil
}

// AttachStore records that key owns the store id. The store is released when
// the fragment is destroyed.
func (a *Arena) AttachStore(key ident.FragmentKey, id ident.ID) error {
	h, err := a.lookup(key, "fragment.AttachStore")
	if err != nil {
		return err
	}
	if _, err := a.stores.Kind(id); err != nil {
		return err
	}
	if slices.Contains(h.stores, id) {
		return nil
	}
	a.touch(key.Index, true)
	h.stores = append(h.stores, id)
	return nil
}

// AttachSubscription records that key owns the subscription id.
func (a *Arena) AttachSubscription(key ident.FragmentKey, id ident.SubscriptionID) error {
	const op = "fragment.AttachSubscription"
	h, err := a.lookup(key, op)
	if err != nil {
		return err
	}
	if _, ok := a.stores.Registry().Get(id); !ok {
		return errors.New(errors.KindInvalidIdentity, op, id)
	}
	if slices.Contains(h.subs, id) {
		return nil
	}
	a.touch(key.Index, true)
	h.subs = append(h.subs, id)
	return nil
}

// DetachSubscription forgets that key owns the subscription id. Stale keys
// and ids key never owned are ignored.
func (a *Arena) DetachSubscription(key ident.FragmentKey, id ident.SubscriptionID) {
	h, err := a.lookup(key, "fragment.DetachSubscription")
	if err != nil || !slices.Contains(h.subs, id) {
		return
	}
	a.touch(key.Index, true)
	h.subs = slices.DeleteFunc(h.subs, func(s ident.SubscriptionID) bool { return s == id })
}

// AttachChild makes child owned by key. The child must be live, have no
// parent, and must not be key or one of its ancestors.
func (a *Arena) AttachChild(key, child ident.FragmentKey) error {
	const op = "fragment.AttachChild"
	h, err := a.lookup(key, op)
	if err != nil {
		return err
	}
	ch, err := a.lookup(child, op)
	if err != nil {
		return err
	}
	if !ch.parent.IsZero() {
		return errors.New(errors.KindInvalidKey, op, child).WithDetail("already owned by %s", ch.parent)
	}
	for cur := key; !cur.IsZero(); {
		if cur == child {
			return errors.New(errors.KindInvalidKey, op, child).WithDetail("%s is an ancestor of %s", child, key)
		}
		cur = a.slots[cur.Index].h.parent
	}
	a.touch(key.Index, true)
	a.touch(child.Index, true)
	h.children = append(h.children, child)
	ch.parent = key
	return nil
}

// SetItem tags key with the item key it renders inside a keyed list.
func (a *Arena) SetItem(key ident.FragmentKey, item string) error {
	h, err := a.lookup(key, "fragment.SetItem")
	if err != nil {
		return err
	}
	a.touch(key.Index, true)
	h.item = item
	return nil
}

// Reorder replaces the child order of key. order must be a permutation of the
// current children.
func (a *Arena) Reorder(key ident.FragmentKey, order []ident.FragmentKey) error {
	const op = "fragment.Reorder"
	h, err := a.lookup(key, op)
	if err != nil {
		return err
	}
	if len(order) != len(h.children) {
		return errors.New(errors.KindInvalidKey, op, key).
			WithDetail("order has %d children, fragment has %d", len(order), len(h.children))
	}
	seen := make(map[ident.FragmentKey]bool, len(order))
	for _, c := range order {
		if seen[c] || !slices.Contains(h.children, c) {
			return errors.New(errors.KindInvalidKey, op, c).WithDetail("not a child of %s", key)
		}
		seen[c] = true
	}
	a.touch(key.Index, true)
	h.children = slices.Clone(order)
	return nil
}

// Destroy tears key down: children first (depth first, in child order), then
// owned subscriptions, then owned stores; finally the fragment is detached
// from its parent and its slot freed. Destroying a stale key is a no-op.
func (a *Arena) Destroy(key ident.FragmentKey) error {
	if _, err := a.lookup(key, "fragment.Destroy"); err != nil {
		if errors.KindOf(err) == errors.KindUseAfterFree {
			return nil
		}
		return err
	}
	return a.destroy(key)
}

func (a *Arena) destroy(key ident.FragmentKey) error {
	h := a.slots[key.Index].h
	for _, c := range slices.Clone(h.children) {
		if err := a.destroy(c); err != nil {
			return err
		}
	}
	for _, id := range h.subs {
		a.stores.Unsubscribe(id)
	}
	for _, id := range h.stores {
		watchers := a.stores.Registry().SubscribersOf(id)
		if err := a.stores.Release(id); err != nil {
			return err
		}
		for _, sub := range watchers {
			if sub.Target.Kind == subscription.TargetFragment {
				a.DetachSubscription(sub.Owner, sub.ID)
			}
		}
	}
	if !h.parent.IsZero() {
		if ph, err := a.lookup(h.parent, "fragment.Destroy"); err == nil {
			a.touch(h.parent.Index, true)
			ph.children = slices.DeleteFunc(ph.children, func(c ident.FragmentKey) bool { return c == key })
		}
	}

	a.touch(key.Index, true)
	s := &a.slots[key.Index]
	s.gen = 0
	s.h = nil
	a.live--
	if s.retired() {
		a.logger.Debug("fragment slot retired", slog.Uint64("index", uint64(key.Index)))
	} else {
		a.free = append(a.free, key.Index)
	}
	return nil
}

// Valid returns nil if key names a live fragment.
func (a *Arena) Valid(key ident.FragmentKey) error {
	_, err := a.lookup(key, "fragment.Valid")
	return err
}

// Get returns a snapshot of the fragment.
func (a *Arena) Get(key ident.FragmentKey) (Handle, error) {
	h, err := a.lookup(key, "fragment.Get")
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		Key:           key,
		Parent:        h.parent,
		Item:          h.item,
		Descriptor:    h.desc,
		Stores:        slices.Clone(h.stores),
		Subscriptions: slices.Clone(h.subs),
		Children:      slices.Clone(h.children),
		Renders:       h.renders,
	}, nil
}

// Children returns the children of key in order.
func (a *Arena) Children(key ident.FragmentKey) ([]ident.FragmentKey, error) {
	h, err := a.lookup(key, "fragment.Children")
	if err != nil {
		return nil, err
	}
	return slices.Clone(h.children), nil
}

// Descriptor returns the descriptor of key.
func (a *Arena) Descriptor(key ident.FragmentKey) (render.Descriptor, error) {
	h, err := a.lookup(key, "fragment.Descriptor")
	if err != nil {
		return nil, err
	}
	return h.desc, nil
}

// MarkRendered counts a render of key and reports whether it was the first.
func (a *Arena) MarkRendered(key ident.FragmentKey) (bool, error) {
	h, err := a.lookup(key, "fragment.MarkRendered")
	if err != nil {
		return false, err
	}
	a.touch(key.Index, true)
	h.renders++
	return h.renders == 1, nil
}

// Len returns the number of live fragments.
func (a *Arena) Len() int {
	return a.live
}

// Begin starts journaling arena mutations.
func (a *Arena) Begin() {
	a.log.Begin()
	a.savedFree = slices.Clone(a.free)
	a.savedLive = a.live
}

// Commit keeps every mutation since Begin.
func (a *Arena) Commit() {
	a.log.Commit()
	a.savedFree = nil
}

// Rollback restores every slot touched since Begin. Keys issued during the
// transaction stay invalid: slot generations are never reissued.
func (a *Arena) Rollback() {
	if !a.log.Active() {
		return
	}
	var added []uint32
	a.log.Rollback(func(i uint32, st slotState, present bool) {
		s := &a.slots[i]
		s.gen, s.h = st.gen, st.h
		if !present {
			added = append(added, i)
		}
	})
	a.free = a.savedFree
	slices.Sort(added)
	for i := len(added) - 1; i >= 0; i-- {
		if !a.slots[added[i]].retired() {
			a.free = append(a.free, added[i])
		}
	}
	a.live = a.savedLive
	a.savedFree = nil
}
