package render

import "github.com/frel-dev/frel/pkg/ident"

// Queue is the ordered set of fragments to diff at the end of a frame.
// It is not safe for concurrent use.
type Queue struct {
	keys []ident.FragmentKey
	set  map[ident.FragmentKey]struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{set: make(map[ident.FragmentKey]struct{})}
}

// Enqueue adds key unless it is already queued. It reports whether key was
// added.
func (q *Queue) Enqueue(key ident.FragmentKey) bool {
	if q.set == nil {
		q.set = make(map[ident.FragmentKey]struct{})
	}
	if _, ok := q.set[key]; ok {
		return false
	}
	q.set[key] = struct{}{}
	q.keys = append(q.keys, key)
	return true
}

// Contains reports whether key is queued.
func (q *Queue) Contains(key ident.FragmentKey) bool {
	_, ok := q.set[key]
	return ok
}

// Len returns the number of queued fragments.
func (q *Queue) Len() int {
	return len(q.keys)
}

// Keys returns the queued fragments in enqueue order.
func (q *Queue) Keys() []ident.FragmentKey {
	out := make([]ident.FragmentKey, len(q.keys))
	copy(out, q.keys)
	return out
}

// Reset empties the queue.
func (q *Queue) Reset() {
	q.keys = q.keys[:0]
	clear(q.set)
}
