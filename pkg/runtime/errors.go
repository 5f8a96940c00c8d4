package runtime

import (
	"fmt"

	"github.com/frel-dev/frel/internal/errors"
)

// Error kinds reported by the runtime and its components. Match them with
// errors.Is.
var (
	ErrInvalidIdentity     = errors.ErrInvalidIdentity
	ErrInvalidKey          = errors.ErrInvalidKey
	ErrUseAfterFree        = errors.ErrUseAfterFree
	ErrCycleDetected       = errors.ErrCycleDetected
	ErrResourceExhausted   = errors.ErrResourceExhausted
	ErrFrameAlreadyRunning = errors.ErrFrameAlreadyRunning
	ErrFrameAborted        = errors.ErrFrameAborted
	ErrFrameClosed         = errors.ErrFrameClosed
	ErrQueueFull           = errors.ErrQueueFull
)

// Error is the structured error type returned by the runtime.
type Error = errors.Error

// CodeOf returns the stable error code of err (e.g., "R004"), or "" if err
// carries none.
func CodeOf(err error) string {
	return errors.CodeOf(err)
}

// HandlerError wraps an error returned by an event handler.
type HandlerError struct {
	Event Event
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("runtime: handler %q (event %d): %v", e.Event.Type, e.Event.Seq, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic recovered during a frame.
type PanicError struct {
	Frame uint64
	Event Event
	Panic any
	Stack []byte
}

func (e *PanicError) Error() string {
	if e.Event.Type == "" {
		return fmt.Sprintf("runtime: panic in frame %d: %v", e.Frame, e.Panic)
	}
	return fmt.Sprintf("runtime: panic in frame %d, event %q: %v", e.Frame, e.Event.Type, e.Panic)
}
