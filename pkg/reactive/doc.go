// Package reactive implements the store subsystem of the frel runtime:
// writable stores, computations derived from them, and the drain algorithm
// that propagates changes through the dependency graph.
//
// # Stores
//
// A writable store holds a value mutated by event handlers. Writes are staged
// and only committed when the frame drains, so several writes in one handler
// phase produce a single propagation wave:
//
//	a, _ := stores.CreateWritable(ident.Root, 0)
//	stores.Write(a, 5)
//	stores.Read(a) // still 0 until Drain commits the write
//
// A computation derives its value from other stores. Reads made through the
// Tracker record dependency edges, and the recorded set is rebound after every
// recomputation:
//
//	b, _ := stores.CreateComputation(ident.Root, nil, func(t *reactive.Tracker) (any, error) {
//	    v, err := t.Get(a)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return v.(int) * 2, nil
//	})
//
// Computations are evaluated eagerly on creation, so the first read is valid.
//
// # Drain
//
// Drain commits staged writes, walks the subscription registry in
// subscription-creation order, recomputes affected computations in
// topological order (rank, then creation order), and enqueues fragment
// subscribers into the render queue. A computation whose new value equals the
// old one does not notify its subscribers.
//
// # Transactions
//
// Begin, Commit and Rollback journal every table touched during a frame, so an
// aborted frame leaves no partial state behind.
package reactive
