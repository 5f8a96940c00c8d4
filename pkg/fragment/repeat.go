package fragment

import (
	"slices"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
)

// Repeat reconciles the children of a container fragment against a keyed
// item list. It keeps no state of its own: item keys live on the child
// handles, so a rolled back frame leaves the list consistent.
type Repeat struct {
	arena  *Arena
	parent ident.FragmentKey
}

// NewRepeat returns a reconciler for the children of parent.
func NewRepeat(arena *Arena, parent ident.FragmentKey) *Repeat {
	return &Repeat{arena: arena, parent: parent}
}

// Reconciliation describes what one Reconcile call changed.
type Reconciliation struct {
	Order   []ident.FragmentKey // children after reconciliation, in item order
	Added   []ident.FragmentKey
	Removed []ident.FragmentKey
	Moved   bool // kept children changed relative order
}

// Changed reports whether the child list changed shape.
func (r Reconciliation) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || r.Moved
}

// BuildFunc creates the fragment for a new item. The returned fragment may
// already be a child of the container; if it has no parent it is attached.
type BuildFunc func(item string) (ident.FragmentKey, error)

// Items returns the item keys of the current children, in order.
func (r *Repeat) Items() ([]string, error) {
	children, err := r.arena.Children(r.parent)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, r.arena.slots[c.Index].h.item)
	}
	return out, nil
}

// Reconcile makes the container's children match items: children whose item
// disappeared are destroyed, new items are built, kept children are reused,
// and the child order is set to the item order.
func (r *Repeat) Reconcile(items []string, build BuildFunc) (Reconciliation, error) {
	const op = "fragment.Reconcile"
	var rec Reconciliation

	children, err := r.arena.Children(r.parent)
	if err != nil {
		return rec, err
	}
	wanted := make(map[string]bool, len(items))
	for _, it := range items {
		if wanted[it] {
			return rec, errors.New(errors.KindInvalidKey, op, r.parent).WithDetail("duplicate item key %q", it)
		}
		wanted[it] = true
	}

	existing := make(map[string]ident.FragmentKey, len(children))
	var keptBefore []string
	for _, c := range children {
		item := r.arena.slots[c.Index].h.item
		if !wanted[item] {
			if err := r.arena.Destroy(c); err != nil {
				return rec, err
			}
			rec.Removed = append(rec.Removed, c)
			continue
		}
		existing[item] = c
		keptBefore = append(keptBefore, item)
	}

	var keptAfter []string
	for _, it := range items {
		if c, ok := existing[it]; ok {
			rec.Order = append(rec.Order, c)
			keptAfter = append(keptAfter, it)
			continue
		}
		c, err := build(it)
		if err != nil {
			return rec, err
		}
		h, err := r.arena.lookup(c, op)
		if err != nil {
			return rec, err
		}
		if h.parent.IsZero() {
			if err := r.arena.AttachChild(r.parent, c); err != nil {
				return rec, err
			}
		} else if h.parent != r.parent {
			return rec, errors.New(errors.KindInvalidKey, op, c).WithDetail("built fragment is owned by %s", h.parent)
		}
		if err := r.arena.SetItem(c, it); err != nil {
			return rec, err
		}
		rec.Order = append(rec.Order, c)
		rec.Added = append(rec.Added, c)
	}
	rec.Moved = !slices.Equal(keptBefore, keptAfter)

	if err := r.arena.Reorder(r.parent, rec.Order); err != nil {
		return rec, err
	}
	return rec, nil
}
