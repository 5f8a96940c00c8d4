// Package ident defines the keys the runtime hands out: reactive identities,
// subscription identities, and generation-tagged fragment keys.
//
// Keys are plain values. They never point into runtime tables, so a key held
// after its target is gone is detected on use instead of dangling.
package ident

import "fmt"

// ID names one reactive value (a writable store or a computation).
// Zero means "no identity".
type ID uint64

// String returns the identity formatted as "s<n>".
func (id ID) String() string {
	return fmt.Sprintf("s%d", uint64(id))
}

// IsZero reports whether id is the zero identity.
func (id ID) IsZero() bool {
	return id == 0
}

// SubscriptionID names one subscription edge. IDs are allocated in creation
// order, so comparing two IDs compares their creation order.
type SubscriptionID uint64

// String returns the subscription formatted as "sub<n>".
func (id SubscriptionID) String() string {
	return fmt.Sprintf("sub%d", uint64(id))
}

// FragmentKey names one arena slot at one generation. Generations start at 1,
// so the zero key never names a live fragment and is used for "no owner"
// (the process root).
type FragmentKey struct {
	Index      uint32
	Generation uint32
}

// Root is the zero key, used as the owner of process-wide stores.
var Root = FragmentKey{}

// IsZero reports whether k is the zero key.
func (k FragmentKey) IsZero() bool {
	return k == FragmentKey{}
}

// String returns the key formatted as "f<index>.<generation>".
func (k FragmentKey) String() string {
	if k.IsZero() {
		return "root"
	}
	return fmt.Sprintf("f%d.%d", k.Index, k.Generation)
}

// Uint64 packs the key into a single integer (generation in the high bits).
func (k FragmentKey) Uint64() uint64 {
	return uint64(k.Generation)<<32 | uint64(k.Index)
}

// KeyFromUint64 unpacks a key produced by Uint64.
func KeyFromUint64(v uint64) FragmentKey {
	return FragmentKey{Index: uint32(v), Generation: uint32(v >> 32)}
}
