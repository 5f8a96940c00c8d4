package render

import (
	stderrors "errors"
	"slices"
	"testing"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
)

// fakeSource is a map-backed Source. Keys missing from descs are treated as
// destroyed.
type fakeSource struct {
	descs    map[ident.FragmentKey]Descriptor
	rendered map[ident.FragmentKey]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		descs:    make(map[ident.FragmentKey]Descriptor),
		rendered: make(map[ident.FragmentKey]int),
	}
}

func (s *fakeSource) Descriptor(k ident.FragmentKey) (Descriptor, error) {
	d, ok := s.descs[k]
	if !ok {
		return nil, errors.New(errors.KindUseAfterFree, "fake.Descriptor", k)
	}
	return d, nil
}

func (s *fakeSource) MarkRendered(k ident.FragmentKey) (bool, error) {
	s.rendered[k]++
	return s.rendered[k] == 1, nil
}

type values map[ident.ID]any

func (v values) Read(id ident.ID) (any, error) {
	return v[id], nil
}

func label(text string) Descriptor {
	return DescriptorFunc(func(dc *DiffContext) ([]Patch, error) {
		return []Patch{ContentPatch("text", text)}, nil
	})
}

func TestFlushOrderAndStamp(t *testing.T) {
	src := newFakeSource()
	src.descs[key(1)] = label("one")
	src.descs[key(2)] = DescriptorFunc(func(dc *DiffContext) ([]Patch, error) {
		return []Patch{
			InstructionPatch("class", "a"),
			StructurePatch(OpInsert, 0, "child"),
		}, nil
	})

	q := NewQueue()
	q.Enqueue(key(2))
	q.Enqueue(key(1))
	q.Enqueue(key(2))

	patches, err := NewGenerator().Flush(q, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []Patch{
		{Fragment: key(2), Kind: PatchInstruction, Name: "class", Value: "a"},
		{Fragment: key(2), Kind: PatchStructure, Name: OpInsert, Index: 0, Value: "child"},
		{Fragment: key(1), Kind: PatchContent, Name: "text", Value: "one"},
	}
	if !slices.Equal(patches, want) {
		t.Errorf("patches = %v\nwant %v", patches, want)
	}
	if q.Len() != 0 {
		t.Errorf("queue not cleared: %d", q.Len())
	}
}

func TestFlushSkipsDestroyed(t *testing.T) {
	src := newFakeSource()
	src.descs[key(1)] = label("one")
	q := NewQueue()
	q.Enqueue(key(9))
	q.Enqueue(key(1))

	patches, err := NewGenerator().Flush(q, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 1 || patches[0].Fragment != key(1) {
		t.Errorf("patches = %v", patches)
	}
}

func TestFlushInitialFlagAndReader(t *testing.T) {
	src := newFakeSource()
	var initial []bool
	src.descs[key(1)] = DescriptorFunc(func(dc *DiffContext) ([]Patch, error) {
		initial = append(initial, dc.Initial)
		v, err := dc.Read(7)
		if err != nil {
			return nil, err
		}
		return []Patch{ContentPatch("text", v)}, nil
	})
	r := values{7: "hello"}
	g := NewGenerator()
	q := NewQueue()

	for i := 0; i < 2; i++ {
		q.Enqueue(key(1))
		patches, err := g.Flush(q, src, r)
		if err != nil {
			t.Fatal(err)
		}
		if len(patches) != 1 || patches[0].Value != "hello" {
			t.Fatalf("patches = %v", patches)
		}
	}
	if !slices.Equal(initial, []bool{true, false}) {
		t.Errorf("Initial = %v, want [true false]", initial)
	}
}

func TestFlushDiffError(t *testing.T) {
	boom := stderrors.New("boom")
	src := newFakeSource()
	src.descs[key(1)] = DescriptorFunc(func(*DiffContext) ([]Patch, error) { return nil, boom })
	q := NewQueue()
	q.Enqueue(key(1))

	patches, err := NewGenerator().Flush(q, src, nil)
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if patches != nil {
		t.Errorf("patches = %v, want nil on error", patches)
	}
}

func TestFlushNilDescriptor(t *testing.T) {
	src := newFakeSource()
	src.descs[key(1)] = nil
	q := NewQueue()
	q.Enqueue(key(1))
	patches, err := NewGenerator().Flush(q, src, nil)
	if err != nil || len(patches) != 0 {
		t.Errorf("Flush = %v, %v", patches, err)
	}
	if src.rendered[key(1)] != 1 {
		t.Error("nil descriptor fragment not marked rendered")
	}
}

func TestDiffContextWithoutReader(t *testing.T) {
	dc := &DiffContext{Key: key(1)}
	if _, err := dc.Read(1); !errors.Is(err, errors.ErrInvalidIdentity) {
		t.Errorf("err = %v", err)
	}
}
