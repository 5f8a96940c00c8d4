package demo

import (
	"fmt"
	"slices"

	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/runtime"
	"github.com/frel-dev/frel/pkg/subscription"
)

// Todo events.
const (
	EventAdd     = "add"
	EventRemove  = "remove"
	EventReverse = "reverse"
	EventClear   = "clear"
)

type todo struct {
	items ident.ID // []string item keys
	next  ident.ID // int64, last issued item number
	order ident.ID // []ident.FragmentKey, children of list
	list  ident.FragmentKey

	itemDraft frameLocal[[]string]
	nextDraft frameLocal[int64]
}

// Todo is a keyed list. add appends an item labelled with the payload,
// remove drops the item whose key is the payload, reverse flips the order
// and clear empties the list. Item fragments survive reorders; the list
// fragment renders "count" and one move patch per child giving its
// position.
func Todo(rt *runtime.Runtime) func(f *runtime.Frame) error {
	t := &todo{}
	rt.Handle(EventAdd, func(f *runtime.Frame, ev runtime.Event) error {
		label, ok := ev.Payload.(string)
		if !ok || label == "" {
			return fmt.Errorf("demo: add needs a label, got %T", ev.Payload)
		}
		n, err := t.nextDraft.get(f, func() (int64, error) {
			v, err := f.Read(t.next)
			if err != nil {
				return 0, err
			}
			return v.(int64), nil
		})
		if err != nil {
			return err
		}
		n++
		t.nextDraft.set(f, n)
		if err := f.Write(t.next, n); err != nil {
			return err
		}

		key := fmt.Sprintf("item-%d", n)
		items, err := t.current(f)
		if err != nil {
			return err
		}
		return t.update(f, append(slices.Clip(items), key), map[string]string{key: label})
	})
	rt.Handle(EventRemove, func(f *runtime.Frame, ev runtime.Event) error {
		key, _ := ev.Payload.(string)
		items, err := t.current(f)
		if err != nil {
			return err
		}
		i := slices.Index(items, key)
		if i < 0 {
			return nil
		}
		return t.update(f, slices.Delete(slices.Clone(items), i, i+1), nil)
	})
	rt.Handle(EventReverse, func(f *runtime.Frame, _ runtime.Event) error {
		items, err := t.current(f)
		if err != nil {
			return err
		}
		rev := slices.Clone(items)
		slices.Reverse(rev)
		return t.update(f, rev, nil)
	})
	rt.Handle(EventClear, func(f *runtime.Frame, _ runtime.Event) error {
		return t.update(f, []string{}, nil)
	})
	return t.mount
}

func (t *todo) mount(f *runtime.Frame) error {
	var err error
	if t.items, err = f.CreateWritable(ident.Root, []string{}, reactive.WithName("items")); err != nil {
		return err
	}
	if t.next, err = f.CreateWritable(ident.Root, int64(0), reactive.WithName("next")); err != nil {
		return err
	}
	if t.order, err = f.CreateWritable(ident.Root, []ident.FragmentKey{}, reactive.WithName("order")); err != nil {
		return err
	}
	if t.list, err = f.Allocate(ident.Root, render.DescriptorFunc(t.renderList)); err != nil {
		return err
	}
	_, err = f.Subscribe(t.list, t.order, subscription.StructuralOnly(), nil)
	return err
}

func (t *todo) renderList(dc *render.DiffContext) ([]render.Patch, error) {
	v, err := dc.Read(t.order)
	if err != nil {
		return nil, err
	}
	order := v.([]ident.FragmentKey)
	patches := make([]render.Patch, 0, len(order)+1)
	patches = append(patches, render.ContentPatch("count", int64(len(order))))
	for i, key := range order {
		patches = append(patches, render.StructurePatch(render.OpMove, i, key))
	}
	return patches, nil
}

func (t *todo) current(f *runtime.Frame) ([]string, error) {
	return t.itemDraft.get(f, func() ([]string, error) {
		v, err := f.Read(t.items)
		if err != nil {
			return nil, err
		}
		return v.([]string), nil
	})
}

// update stages the new item list and reconciles the list's children with
// it. labels supplies the labels of items added by this call.
func (t *todo) update(f *runtime.Frame, items []string, labels map[string]string) error {
	t.itemDraft.set(f, items)
	if err := f.WriteStructural(t.items, items); err != nil {
		return err
	}
	rec, err := f.Reconcile(t.list, items, func(item string) (ident.FragmentKey, error) {
		return t.buildItem(f, labels[item])
	})
	if err != nil {
		return err
	}
	if !rec.Changed() {
		return nil
	}
	return f.WriteStructural(t.order, slices.Clone(rec.Order))
}

// buildItem allocates an item fragment owning its label store.
func (t *todo) buildItem(f *runtime.Frame, label string) (ident.FragmentKey, error) {
	var text ident.ID
	key, err := f.Allocate(t.list, render.DescriptorFunc(func(dc *render.DiffContext) ([]render.Patch, error) {
		v, err := dc.Read(text)
		if err != nil {
			return nil, err
		}
		return []render.Patch{render.ContentPatch("label", v)}, nil
	}))
	if err != nil {
		return ident.FragmentKey{}, err
	}
	if text, err = f.CreateWritable(key, label, reactive.WithName("label")); err != nil {
		return ident.FragmentKey{}, err
	}
	if _, err := f.Subscribe(key, text, subscription.Everything(), nil); err != nil {
		return ident.FragmentKey{}, err
	}
	return key, nil
}
