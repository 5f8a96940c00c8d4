// Package errors provides the structured error kinds of the frel runtime.
//
// Every failure surfaced by the core carries a Kind (what went wrong), the
// operation that failed (Op), and the identity or key it was applied to
// (Subject). Kinds map to stable codes so adapters can forward them over the
// wire without string matching.
//
// # Error Kinds
//
//   - InvalidIdentity / InvalidKey: stale or unknown reference
//   - UseAfterFree: access after release or destruction
//   - CycleDetected: propagation cannot settle; aborts the frame
//   - ResourceExhausted: identity or slot space exhausted
//   - FrameAlreadyRunning: reentrant frame start
//   - FrameAborted / FrameClosed / QueueFull: scheduler misuse
//
// # Usage
//
//	err := errors.New(errors.KindUseAfterFree, "reactive.Write", id)
//	if errors.Is(err, errors.ErrUseAfterFree) {
//	    // ...
//	}
//
//	fmt.Println(errors.Format(err))
//	// ERROR R003: use after free
//	//   op:      reactive.Write
//	//   subject: 7
package errors
