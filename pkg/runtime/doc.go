// Package runtime is the frame scheduler of frel. It turns batches of
// external events into ordered patch batches.
//
// A frame is a transactional unit of work:
//
//  1. Every event of the batch is dispatched, in arrival order, to the
//     handler registered for its type. Handlers mutate stores and fragments
//     through the Frame they receive.
//  2. The store subsystem drains: staged writes are committed and propagated
//     through computations to subscribed fragments.
//  3. The render generator diffs every dirtied fragment into patches.
//
// If any step fails (a handler error or panic, a cycle, an exhausted
// resource, a failed diff) the frame aborts. Every store, subscription and
// fragment is rolled back to its state before the frame, no patches are
// returned, and the runtime enters the Aborted state until the caller
// acknowledges the error.
//
// Frames never nest. Events submitted while a frame runs wait in a FIFO
// pending queue for the next frame:
//
//	rt := runtime.New(runtime.WithLogger(logger))
//	rt.Handle("increment", func(f *runtime.Frame, ev runtime.Event) error {
//	    v, err := f.Read(count)
//	    if err != nil {
//	        return err
//	    }
//	    return f.Write(count, v.(int)+1)
//	})
//	rt.Submit(runtime.Event{Type: "increment"})
//	res, err := rt.RunPending(ctx)
//
// Handlers can be wrapped in Middleware (see Use and WithMiddleware), which
// runs inside the frame like the handler itself.
//
// Multi-threaded hosts serialize frames through a Worker.
package runtime
