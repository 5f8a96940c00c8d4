package reactive

import (
	"container/heap"
	"fmt"
	"log/slog"
	"slices"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/subscription"
)

// Drain commits staged writes and propagates them until no store is dirty.
//
// Each round commits the writes staged so far, notifies subscribers in
// subscription-creation order and settles every affected computation in
// (rank, identity) order, so no computation runs before a dirty dependency
// has settled. Writes made by subscription callbacks are staged for the next
// round. Running more than the configured number of rounds is reported as
// CycleDetected.
func (s *Stores) Drain(q Enqueuer) (DrainStats, error) {
	var stats DrainStats
	for len(s.dirty) > 0 {
		if stats.Rounds >= s.maxRounds {
			return stats, errors.New(errors.KindCycleDetected, "reactive.Drain", nil).
				WithDetail("writes did not settle after %d rounds", s.maxRounds)
		}
		stats.Rounds++
		if err := s.round(q, &stats); err != nil {
			return stats, err
		}
	}
	if stats.Rounds > 0 {
		s.logger.Debug("drain settled",
			slog.Int("rounds", stats.Rounds),
			slog.Int("recomputations", stats.Recomputations),
			slog.Int("notifications", stats.Notifications),
			slog.Int("enqueued", stats.Enqueued))
	}
	return stats, nil
}

func (s *Stores) round(q Enqueuer, stats *DrainStats) error {
	ids, changes := s.dirty, s.changes
	s.dirty = nil
	s.changes = make(map[ident.ID][]subscription.Change)

	w := &wave{
		stores:    s,
		q:         q,
		stats:     stats,
		scheduled: make(map[ident.ID]bool),
		check:     make(map[ident.ID]bool),
	}
	s.wave = w
	defer func() { s.wave = nil }()

	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok || !e.hasStaged {
			continue
		}
		s.touch(e)
		v := e.staged
		e.staged, e.hasStaged = nil, false
		if e.equals(e.value, v) {
			continue
		}
		e.value = v
		w.notify(id, changes[id])
	}

	for {
		e := w.next()
		if e == nil {
			return nil
		}
		if err := w.settle(e); err != nil {
			return err
		}
	}
}

// wave is the set of computations scheduled during one round. scheduled
// holds computations a matching change reached. check holds every computation
// downstream of a scheduled one, which may or may not change.
type wave struct {
	stores    *Stores
	q         Enqueuer
	stats     *DrainStats
	heap      waveHeap
	scheduled map[ident.ID]bool
	check     map[ident.ID]bool
}

// notify visits the subscribers of source whose selector matches one of
// changes.
func (w *wave) notify(source ident.ID, changes []subscription.Change) {
	for _, sub := range w.stores.reg.SubscribersOf(source) {
		c, ok := sub.Selector.MatchFirst(changes)
		if !ok {
			continue
		}
		w.stats.Notifications++
		switch sub.Target.Kind {
		case subscription.TargetComputation:
			if e, ok := w.stores.entries[sub.Target.Store]; ok {
				w.schedule(e)
			}
		case subscription.TargetFragment:
			if w.q != nil && w.q.Enqueue(sub.Target.Fragment) {
				w.stats.Enqueued++
			}
		}
		if sub.Callback != nil {
			sub.Callback(source, c)
		}
	}
}

func (w *wave) schedule(e *entry) {
	if w.scheduled[e.id] {
		return
	}
	w.scheduled[e.id] = true
	heap.Push(&w.heap, waveItem{e: e, rank: e.rank})
	w.mark(e.id)
}

// mark flags every computation downstream of id as possibly stale.
func (w *wave) mark(id ident.ID) {
	for _, sub := range w.stores.reg.SubscribersOf(id) {
		if sub.Target.Kind != subscription.TargetComputation || w.check[sub.Target.Store] {
			continue
		}
		w.check[sub.Target.Store] = true
		w.mark(sub.Target.Store)
	}
}

func (w *wave) stale(id ident.ID) bool {
	return w.scheduled[id] || w.check[id]
}

// next pops the lowest scheduled computation. Items whose rank was raised
// after they were pushed are pushed again with the new rank.
func (w *wave) next() *entry {
	for w.heap.Len() > 0 {
		it := heap.Pop(&w.heap).(waveItem)
		if !w.scheduled[it.e.id] {
			continue
		}
		cur, ok := w.stores.entries[it.e.id]
		if !ok {
			delete(w.scheduled, it.e.id)
			continue
		}
		if cur.rank != it.rank {
			heap.Push(&w.heap, waveItem{e: cur, rank: cur.rank})
			continue
		}
		return cur
	}
	return nil
}

// settle brings e up to date for the current round. Possibly stale
// computation dependencies are settled first; e itself is recomputed only if
// a change reached it.
func (w *wave) settle(e *entry) error {
	if !w.stale(e.id) {
		return nil
	}
	delete(w.check, e.id)
	for _, d := range slices.Clone(e.deps) {
		src, ok := w.stores.entries[d.source]
		if !ok || src.kind != KindComputation {
			continue
		}
		if err := w.settle(src); err != nil {
			return err
		}
	}
	if !w.scheduled[e.id] {
		return nil
	}
	delete(w.scheduled, e.id)
	w.stats.Recomputations++
	changed, err := w.stores.recompute(e)
	if err != nil {
		return err
	}
	if changed {
		w.notify(e.id, []subscription.Change{subscription.Carried()})
	}
	return nil
}

// recompute evaluates e, rebinds its dependency edges and stores the new
// value. It reports whether the value changed.
func (s *Stores) recompute(e *entry) (bool, error) {
	if e.computing {
		return false, errors.New(errors.KindCycleDetected, "reactive.recompute", e.id).
			WithDetail("%s re-entered its own computation", e.label())
	}
	s.touch(e)
	t := &Tracker{stores: s, self: e, seen: make(map[read]struct{})}

	v, err := s.evaluate(t, e)
	if t.err != nil {
		return false, t.err
	}
	if err != nil {
		if errors.KindOf(err) != errors.KindUnknown {
			return false, err
		}
		return false, fmt.Errorf("reactive: compute %s: %w", e.label(), err)
	}
	if err := s.rebind(e, t.reads); err != nil {
		return false, err
	}
	changed := !e.equals(e.value, v)
	e.value = v
	return changed, nil
}

func (s *Stores) evaluate(t *Tracker, e *entry) (any, error) {
	e.computing = true
	defer func() { e.computing = false }()
	for _, d := range e.declared {
		if _, err := t.Get(d); err != nil {
			return nil, err
		}
	}
	return e.compute(t)
}

// rebind replaces e's dependency edges with reads. Edges read again keep
// their subscription, dropped edges are unsubscribed and new edges are
// subscribed after checking that they do not close a cycle. On error no edge
// has been changed.
func (s *Stores) rebind(e *entry, reads []read) error {
	old := make(map[read]edge, len(e.deps))
	for _, d := range e.deps {
		old[read{source: d.source, sel: d.sel}] = d
	}

	for _, r := range reads {
		if _, ok := old[r]; ok {
			continue
		}
		if s.reaches(r.source, e.id) {
			src := s.entries[r.source]
			return errors.New(errors.KindCycleDetected, "reactive.rebind", e.id).
				WithDetail("%s depends on %s, which depends on it", e.label(), src.label())
		}
	}

	deps := make([]edge, 0, len(reads))
	var added []ident.SubscriptionID
	rank := 1
	for _, r := range reads {
		d, ok := old[r]
		if ok {
			delete(old, r)
		} else {
			id, err := s.reg.Subscribe(r.source, subscription.ComputationTarget(e.id), r.sel, e.owner, nil)
			if err != nil {
				for _, sub := range added {
					s.reg.Unsubscribe(sub)
				}
				return err
			}
			added = append(added, id)
			d = edge{source: r.source, sel: r.sel, sub: id}
		}
		deps = append(deps, d)
		if src := s.entries[r.source]; src.rank+1 > rank {
			rank = src.rank + 1
		}
	}
	for _, d := range e.deps {
		if _, dropped := old[read{source: d.source, sel: d.sel}]; dropped {
			s.reg.Unsubscribe(d.sub)
		}
	}
	e.deps = deps
	e.rank = rank
	s.raise(e)
	return nil
}

// reaches reports whether target is reachable from id by following
// dependency edges, including id == target.
func (s *Stores) reaches(id, target ident.ID) bool {
	visited := make(map[ident.ID]bool)
	stack := []ident.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if e, ok := s.entries[cur]; ok {
			for _, d := range e.deps {
				stack = append(stack, d.source)
			}
		}
	}
	return false
}

// raise keeps every dependent of e ranked above it.
func (s *Stores) raise(e *entry) {
	for _, sub := range s.reg.SubscribersOf(e.id) {
		if sub.Target.Kind != subscription.TargetComputation {
			continue
		}
		dep, ok := s.entries[sub.Target.Store]
		if !ok || dep.rank > e.rank {
			continue
		}
		s.touch(dep)
		dep.rank = e.rank + 1
		s.raise(dep)
	}
}

type waveItem struct {
	e    *entry
	rank int
}

// waveHeap orders computations by rank, then by identity. Identities are
// allocated monotonically, so the tie break is creation order.
type waveHeap []waveItem

func (h waveHeap) Len() int { return len(h) }

func (h waveHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].e.id < h[j].e.id
}

func (h waveHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *waveHeap) Push(x any) { *h = append(*h, x.(waveItem)) }

func (h *waveHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
