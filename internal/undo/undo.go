// Package undo provides a first-touch journal used to roll runtime tables
// back to the state they had when a frame began.
package undo

// saved is the pre-transaction state of one key.
type saved[V any] struct {
	value   V
	present bool
}

// Log records, for each key touched during a transaction, the value it held
// before the first touch. Later touches of the same key are ignored, so a
// rollback restores the state at Begin no matter how often a key changed.
//
// A Log is not safe for concurrent use.
type Log[K comparable, V any] struct {
	active bool
	saved  map[K]saved[V]
	order  []K
}

// Begin starts recording. Any previous journal is discarded.
func (l *Log[K, V]) Begin() {
	l.active = true
	l.saved = make(map[K]saved[V])
	l.order = l.order[:0]
}

// Active reports whether a transaction is being recorded.
func (l *Log[K, V]) Active() bool {
	return l.active
}

// Touch records the current state of key unless it was already recorded.
// Call it before mutating the entry. Outside a transaction it is a no-op.
func (l *Log[K, V]) Touch(key K, current V, present bool) {
	if !l.active {
		return
	}
	if _, ok := l.saved[key]; ok {
		return
	}
	l.saved[key] = saved[V]{value: current, present: present}
	l.order = append(l.order, key)
}

// Touched reports whether key was recorded in the current transaction.
func (l *Log[K, V]) Touched(key K) bool {
	_, ok := l.saved[key]
	return ok
}

// Len returns the number of recorded keys.
func (l *Log[K, V]) Len() int {
	return len(l.order)
}

// Commit stops recording and drops the journal.
func (l *Log[K, V]) Commit() {
	l.active = false
	l.saved = nil
	l.order = l.order[:0]
}

// Rollback calls restore for every recorded key, most recent first, with the
// value it held at Begin, then stops recording.
func (l *Log[K, V]) Rollback(restore func(key K, value V, present bool)) {
	for i := len(l.order) - 1; i >= 0; i-- {
		k := l.order[i]
		s := l.saved[k]
		restore(k, s.value, s.present)
	}
	l.Commit()
}
