package demo

import (
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/reactive"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/runtime"
	"github.com/frel-dev/frel/pkg/subscription"
)

// Counter events.
const (
	EventIncrement = "increment"
	EventDecrement = "decrement"
	EventSet       = "set"
	EventReset     = "reset"
)

type counter struct {
	count   ident.ID
	doubled ident.ID
	view    ident.FragmentKey
	draft   frameLocal[int64]
}

// Counter is a single counter with a derived doubled value. Its fragment
// renders the content slots "count" and "doubled" and the "negative"
// instruction.
//
// increment and decrement take an optional integer step, set takes the new
// value, reset takes nothing.
func Counter(rt *runtime.Runtime) func(f *runtime.Frame) error {
	c := &counter{}
	rt.Handle(EventIncrement, func(f *runtime.Frame, ev runtime.Event) error {
		return c.add(f, ev.Payload, 1)
	})
	rt.Handle(EventDecrement, func(f *runtime.Frame, ev runtime.Event) error {
		return c.add(f, ev.Payload, -1)
	})
	rt.Handle(EventSet, func(f *runtime.Frame, ev runtime.Event) error {
		n, err := toInt(ev.Payload)
		if err != nil {
			return err
		}
		return c.set(f, n)
	})
	rt.Handle(EventReset, func(f *runtime.Frame, _ runtime.Event) error {
		return c.set(f, 0)
	})
	return c.mount
}

func (c *counter) mount(f *runtime.Frame) error {
	var err error
	c.count, err = f.CreateWritable(ident.Root, int64(0), reactive.WithName("count"))
	if err != nil {
		return err
	}
	c.doubled, err = f.CreateComputation(ident.Root, []ident.ID{c.count}, func(t *reactive.Tracker) (any, error) {
		v, err := t.Get(c.count)
		if err != nil {
			return nil, err
		}
		return v.(int64) * 2, nil
	}, reactive.WithName("doubled"))
	if err != nil {
		return err
	}

	c.view, err = f.Allocate(ident.Root, render.DescriptorFunc(c.render))
	if err != nil {
		return err
	}
	if _, err := f.Subscribe(c.view, c.count, subscription.Everything(), nil); err != nil {
		return err
	}
	_, err = f.Subscribe(c.view, c.doubled, subscription.CarriedOnly(), nil)
	return err
}

func (c *counter) render(dc *render.DiffContext) ([]render.Patch, error) {
	n, err := dc.Read(c.count)
	if err != nil {
		return nil, err
	}
	d, err := dc.Read(c.doubled)
	if err != nil {
		return nil, err
	}
	return []render.Patch{
		render.ContentPatch("count", n),
		render.ContentPatch("doubled", d),
		render.InstructionPatch("negative", n.(int64) < 0),
	}, nil
}

func (c *counter) current(f *runtime.Frame) (int64, error) {
	return c.draft.get(f, func() (int64, error) {
		v, err := f.Read(c.count)
		if err != nil {
			return 0, err
		}
		return v.(int64), nil
	})
}

func (c *counter) add(f *runtime.Frame, payload any, sign int64) error {
	step := int64(1)
	if payload != nil {
		n, err := toInt(payload)
		if err != nil {
			return err
		}
		step = n
	}
	n, err := c.current(f)
	if err != nil {
		return err
	}
	return c.set(f, n+sign*step)
}

func (c *counter) set(f *runtime.Frame, n int64) error {
	c.draft.set(f, n)
	return f.Write(c.count, n)
}
