package demo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/runtime"
)

func mount(t *testing.T, app App) (*runtime.Runtime, *runtime.Result) {
	t.Helper()
	rt := runtime.New(runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	res, err := rt.Build(context.Background(), app(rt))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return rt, res
}

func frame(t *testing.T, rt *runtime.Runtime, events ...runtime.Event) *runtime.Result {
	t.Helper()
	res, err := rt.StartFrame(context.Background(), events)
	if err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	return res
}

// slot returns the value of the named non-structural patch.
func slot(t *testing.T, patches []render.Patch, name string) any {
	t.Helper()
	for _, p := range patches {
		if p.Kind != render.PatchStructure && p.Name == name {
			return p.Value
		}
	}
	t.Fatalf("no %q patch in %v", name, patches)
	return nil
}

func moves(patches []render.Patch) []ident.FragmentKey {
	var out []ident.FragmentKey
	for _, p := range patches {
		if p.Kind == render.PatchStructure && p.Name == render.OpMove {
			out = append(out, p.Value.(ident.FragmentKey))
		}
	}
	return out
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := Lookup("nope"); err == nil {
		t.Error("Lookup accepted an unknown app")
	}
}

func TestCounterInitialRender(t *testing.T) {
	_, res := mount(t, Counter)
	if len(res.Patches) != 3 {
		t.Fatalf("patches = %v", res.Patches)
	}
	if got := slot(t, res.Patches, "count"); got != int64(0) {
		t.Errorf("count = %v, want 0", got)
	}
	if got := slot(t, res.Patches, "negative"); got != false {
		t.Errorf("negative = %v, want false", got)
	}
}

func TestCounterEventsAccumulateWithinFrame(t *testing.T) {
	rt, _ := mount(t, Counter)
	res := frame(t, rt,
		runtime.Event{Type: EventIncrement},
		runtime.Event{Type: EventIncrement, Payload: int64(4)},
		runtime.Event{Type: EventDecrement, Payload: int64(2)},
	)
	if got := slot(t, res.Patches, "count"); got != int64(3) {
		t.Fatalf("count = %v, want 3", got)
	}
	if got := slot(t, res.Patches, "doubled"); got != int64(6) {
		t.Fatalf("doubled = %v, want 6", got)
	}
	if res.Stats.Recomputations != 1 {
		t.Errorf("recomputations = %d, want 1", res.Stats.Recomputations)
	}

	res = frame(t, rt, runtime.Event{Type: EventDecrement, Payload: int64(5)})
	if got := slot(t, res.Patches, "negative"); got != true {
		t.Errorf("negative = %v, want true", got)
	}

	res = frame(t, rt, runtime.Event{Type: EventSet, Payload: int64(-2)})
	if len(res.Patches) != 0 {
		t.Errorf("setting the current value produced %v", res.Patches)
	}
}

func TestCounterBadPayloadAborts(t *testing.T) {
	rt, _ := mount(t, Counter)
	frame(t, rt, runtime.Event{Type: EventSet, Payload: int64(7)})

	_, err := rt.StartFrame(context.Background(), []runtime.Event{
		{Type: EventIncrement},
		{Type: EventSet, Payload: "seven"},
	})
	var he *runtime.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HandlerError", err)
	}
	if err := rt.Acknowledge(err); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	res := frame(t, rt, runtime.Event{Type: EventIncrement})
	if got := slot(t, res.Patches, "count"); got != int64(8) {
		t.Errorf("count = %v, want 8 (the aborted frame must not count)", got)
	}
}

func TestTodoKeepsItemsAcrossReorder(t *testing.T) {
	rt, res := mount(t, Todo)
	if got := slot(t, res.Patches, "count"); got != int64(0) {
		t.Fatalf("initial count = %v", got)
	}

	res = frame(t, rt,
		runtime.Event{Type: EventAdd, Payload: "milk"},
		runtime.Event{Type: EventAdd, Payload: "eggs"},
		runtime.Event{Type: EventAdd, Payload: "bread"},
	)
	if got := slot(t, res.Patches, "count"); got != int64(3) {
		t.Fatalf("count = %v, want 3", got)
	}
	order := moves(res.Patches)
	if len(order) != 3 {
		t.Fatalf("order = %v", order)
	}
	labels := map[ident.FragmentKey]any{}
	for _, p := range res.Patches {
		if p.Name == "label" {
			labels[p.Fragment] = p.Value
		}
	}
	if labels[order[0]] != "milk" || labels[order[2]] != "bread" {
		t.Fatalf("labels = %v for order %v", labels, order)
	}

	res = frame(t, rt, runtime.Event{Type: EventReverse})
	rev := moves(res.Patches)
	if len(rev) != 3 || rev[0] != order[2] || rev[2] != order[0] {
		t.Fatalf("reversed order = %v, want reverse of %v", rev, order)
	}
	for _, p := range res.Patches {
		if p.Name == "label" {
			t.Errorf("reorder re-rendered item %s", p.Fragment)
		}
	}

	res = frame(t, rt, runtime.Event{Type: EventRemove, Payload: "item-2"})
	if got := slot(t, res.Patches, "count"); got != int64(2) {
		t.Fatalf("count = %v, want 2", got)
	}
	if _, err := rt.Fragment(order[1]); !errors.Is(err, runtime.ErrUseAfterFree) {
		t.Errorf("removed item err = %v, want ErrUseAfterFree", err)
	}

	res = frame(t, rt, runtime.Event{Type: EventRemove, Payload: "item-9"})
	if len(res.Patches) != 0 {
		t.Errorf("removing a missing item produced %v", res.Patches)
	}
}

func TestTodoClearReleasesItemStores(t *testing.T) {
	rt, _ := mount(t, Todo)
	base := rt.Stats()

	frame(t, rt,
		runtime.Event{Type: EventAdd, Payload: "a"},
		runtime.Event{Type: EventAdd, Payload: "b"},
	)
	if got := rt.Stats().Stores; got != base.Stores+2 {
		t.Fatalf("stores = %d, want %d", got, base.Stores+2)
	}

	frame(t, rt, runtime.Event{Type: EventClear})
	st := rt.Stats()
	if st.Stores != base.Stores || st.Fragments != base.Fragments {
		t.Fatalf("after clear stats = %+v, want %+v", st, base)
	}
}

func TestTodoAddRejectsEmptyLabel(t *testing.T) {
	rt, _ := mount(t, Todo)
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: EventAdd}}); err == nil {
		t.Fatal("add without a label committed")
	}
}
