package reactive

import (
	stderrors "errors"
	"testing"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/subscription"
)

// queue records enqueued fragments the way the render queue does.
type queue struct {
	keys []ident.FragmentKey
	seen map[ident.FragmentKey]bool
}

func (q *queue) Enqueue(key ident.FragmentKey) bool {
	if q.seen == nil {
		q.seen = make(map[ident.FragmentKey]bool)
	}
	if q.seen[key] {
		return false
	}
	q.seen[key] = true
	q.keys = append(q.keys, key)
	return true
}

func (q *queue) reset() {
	q.keys = nil
	q.seen = nil
}

var (
	frag1 = ident.FragmentKey{Index: 1, Generation: 1}
	frag2 = ident.FragmentKey{Index: 2, Generation: 1}
)

func newStores(opts ...Option) *Stores {
	return New(subscription.NewRegistry(), opts...)
}

func mustWritable(t *testing.T, s *Stores, v any) ident.ID {
	t.Helper()
	id, err := s.CreateWritable(ident.Root, v)
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}
	return id
}

func mustRead(t *testing.T, s *Stores, id ident.ID) any {
	t.Helper()
	v, err := s.Read(id)
	if err != nil {
		t.Fatalf("Read(%s): %v", id, err)
	}
	return v
}

func double(src ident.ID) ComputeFunc {
	return func(t *Tracker) (any, error) {
		v, err := t.Get(src)
		if err != nil {
			return nil, err
		}
		return v.(int) * 2, nil
	}
}

func TestWritableReadWrite(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)

	if got := mustRead(t, s, a); got != 1 {
		t.Errorf("initial value = %v, want 1", got)
	}
	if err := s.Write(a, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := mustRead(t, s, a); got != 1 {
		t.Errorf("staged write visible before drain: %v", got)
	}
	if !s.Dirty() {
		t.Error("Dirty() = false after write")
	}
	if _, err := s.Drain(nil); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := mustRead(t, s, a); got != 2 {
		t.Errorf("value after drain = %v, want 2", got)
	}
	if s.Dirty() {
		t.Error("Dirty() = true after drain")
	}
}

func TestLastWriteWins(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 0)
	for i := 1; i <= 3; i++ {
		if err := s.Write(a, i); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Drain(nil); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, s, a); got != 3 {
		t.Errorf("value = %v, want 3", got)
	}
}

func TestIdentityErrors(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 0)
	b, err := s.CreateComputation(ident.Root, nil, double(a))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Release(a); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"read zero", func() error { _, err := s.Read(0); return err }(), errors.ErrInvalidIdentity},
		{"read unknown", func() error { _, err := s.Read(999); return err }(), errors.ErrInvalidIdentity},
		{"read released", func() error { _, err := s.Read(a); return err }(), errors.ErrUseAfterFree},
		{"write released", s.Write(a, 1), errors.ErrUseAfterFree},
		{"write computation", s.Write(b, 1), errors.ErrInvalidIdentity},
		{"write unknown", s.WriteKeyed(999, "k", 1), errors.ErrInvalidIdentity},
		{"release unknown", s.Release(999), errors.ErrInvalidIdentity},
		{"release released", s.Release(a), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == nil {
				if tt.err != nil {
					t.Errorf("err = %v, want nil", tt.err)
				}
				return
			}
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("err = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestIdentityLimit(t *testing.T) {
	s := newStores(WithMaxIdentities(2))
	mustWritable(t, s, 0)
	mustWritable(t, s, 0)
	_, err := s.CreateWritable(ident.Root, 0)
	if !errors.Is(err, errors.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ResourceExhausted", err)
	}
	if _, err := s.CreateComputation(ident.Root, nil, func(*Tracker) (any, error) { return 1, nil }); !errors.Is(err, errors.ErrResourceExhausted) {
		t.Errorf("computation err = %v, want ResourceExhausted", err)
	}
}

func TestIdentitiesNotReused(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 0)
	if err := s.Release(a); err != nil {
		t.Fatal(err)
	}
	b := mustWritable(t, s, 0)
	if b == a {
		t.Fatalf("released identity %s was reused", a)
	}
}

func TestComputationEager(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 3)
	calls := 0
	b, err := s.CreateComputation(ident.Root, nil, func(t *Tracker) (any, error) {
		calls++
		v, err := t.Get(a)
		if err != nil {
			return nil, err
		}
		return v.(int) + 1, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := mustRead(t, s, b); got != 4 {
		t.Errorf("value = %v, want 4", got)
	}
	if k, _ := s.Kind(b); k != KindComputation {
		t.Errorf("Kind = %v", k)
	}
	if r, _ := s.Rank(b); r != 1 {
		t.Errorf("Rank = %d, want 1", r)
	}
	deps, _ := s.Dependencies(b)
	if len(deps) != 1 || deps[0] != a {
		t.Errorf("Dependencies = %v, want [%s]", deps, a)
	}
}

func TestComputationDeclaredDeps(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)
	b := mustWritable(t, s, 2)
	c, err := s.CreateComputation(ident.Root, []ident.ID{a}, func(t *Tracker) (any, error) {
		return t.Get(b)
	})
	if err != nil {
		t.Fatal(err)
	}
	deps, _ := s.Dependencies(c)
	if len(deps) != 2 || deps[0] != a || deps[1] != b {
		t.Errorf("Dependencies = %v, want [%s %s]", deps, a, b)
	}

	if _, err := s.CreateComputation(ident.Root, []ident.ID{999}, double(a)); !errors.Is(err, errors.ErrInvalidIdentity) {
		t.Errorf("unknown declared dep err = %v", err)
	}
}

func TestComputationFailureLeavesNoTrace(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)
	boom := stderrors.New("boom")
	storesBefore, subsBefore := s.Len(), s.Registry().Len()

	id, err := s.CreateComputation(ident.Root, nil, func(t *Tracker) (any, error) {
		if _, err := t.Get(a); err != nil {
			return nil, err
		}
		return nil, boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if id != 0 {
		t.Errorf("id = %s, want zero", id)
	}
	if s.Len() != storesBefore || s.Registry().Len() != subsBefore {
		t.Errorf("failed computation left state: stores %d->%d subs %d->%d",
			storesBefore, s.Len(), subsBefore, s.Registry().Len())
	}
}

func TestReleaseRemovesEdges(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)
	b, err := s.CreateComputation(ident.Root, []ident.ID{a}, double(a))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe(a, frag1, subscription.Everything(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(a, 5); err != nil {
		t.Fatal(err)
	}

	if err := s.Release(a); err != nil {
		t.Fatal(err)
	}
	s.Registry().Each(func(sub subscription.Subscription) bool {
		if sub.Source == a {
			t.Errorf("subscription %s still names released source", sub.ID)
		}
		return true
	})
	deps, _ := s.Dependencies(b)
	if len(deps) != 0 {
		t.Errorf("Dependencies after release = %v", deps)
	}
	if s.Dirty() {
		t.Error("released store still dirty")
	}
	if got := mustRead(t, s, b); got != 2 {
		t.Errorf("dependent value = %v, want last value 2", got)
	}

	if err := s.Release(b); err != nil {
		t.Fatal(err)
	}
	if s.Registry().Len() != 0 {
		t.Errorf("registry Len = %d, want 0", s.Registry().Len())
	}
}

func TestSubscribeValidatesSource(t *testing.T) {
	s := newStores()
	if _, err := s.Subscribe(7, frag1, subscription.Everything(), nil); !errors.Is(err, errors.ErrInvalidIdentity) {
		t.Errorf("err = %v, want InvalidIdentity", err)
	}
	a := mustWritable(t, s, 0)
	id, err := s.Subscribe(a, frag1, subscription.Everything(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Unsubscribe(id) {
		t.Error("Unsubscribe = false")
	}
	if s.Unsubscribe(id) {
		t.Error("second Unsubscribe = true")
	}
}

func TestRollback(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)
	b, err := s.CreateComputation(ident.Root, nil, double(a))
	if err != nil {
		t.Fatal(err)
	}
	subsBefore := s.Registry().Len()

	s.Begin()
	if err := s.Write(a, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drain(nil); err != nil {
		t.Fatal(err)
	}
	c := mustWritable(t, s, 0)
	if _, err := s.Subscribe(a, frag1, subscription.Everything(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(c, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(b); err != nil {
		t.Fatal(err)
	}
	s.Rollback()

	if got := mustRead(t, s, a); got != 1 {
		t.Errorf("a = %v, want 1", got)
	}
	if got := mustRead(t, s, b); got != 2 {
		t.Errorf("b = %v, want 2", got)
	}
	if _, err := s.Read(c); !errors.Is(err, errors.ErrUseAfterFree) {
		t.Errorf("rolled back store read err = %v, want UseAfterFree", err)
	}
	if s.Dirty() {
		t.Error("dirty after rollback")
	}
	if s.Registry().Len() != subsBefore {
		t.Errorf("registry Len = %d, want %d", s.Registry().Len(), subsBefore)
	}
	if d := mustWritable(t, s, 0); d <= c {
		t.Errorf("identity %s handed out again after rollback", d)
	}

	// The restored graph still propagates.
	if err := s.Write(a, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drain(nil); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, s, b); got != 8 {
		t.Errorf("b after rollback and write = %v, want 8", got)
	}
}

func TestCommitKeepsChanges(t *testing.T) {
	s := newStores()
	a := mustWritable(t, s, 1)
	s.Begin()
	if err := s.Write(a, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drain(nil); err != nil {
		t.Fatal(err)
	}
	s.Commit()
	s.Rollback()
	if got := mustRead(t, s, a); got != 2 {
		t.Errorf("a = %v, want committed 2", got)
	}
}

func TestDefaultEquals(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{1, 1, true},
		{1, int64(1), false},
		{"x", "x", true},
		{"x", "y", false},
		{[]string{"a"}, []string{"a"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{map[string]int{"a": 1}, map[string]int{"a": 1}, true},
		{nil, 0, false},
	}
	for _, tt := range tests {
		if got := DefaultEquals(tt.a, tt.b); got != tt.want {
			t.Errorf("DefaultEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
