// Package fragment owns the lifecycle of fragments, the runtime records for
// instantiated UI nodes.
//
// A fragment owns its children, the stores it created for its bindings, and
// the subscriptions it registered. Destroy tears all three down in a fixed
// order: children first, depth first in child order, then subscriptions,
// then stores. A child therefore never observes its parent's stores being
// released while it is still alive, and no subscription outlives either of
// its endpoints.
//
// Keys are generation tagged. Once a fragment is destroyed its key is stale
// forever: lookups report UseAfterFree and destroying it again is a no-op.
//
// Repeat reconciles a container's children against a keyed item list, which
// is how dynamic lists are built.
package fragment
