package runtime

import (
	"context"
	"log/slog"
)

// Sink receives the outcome of every frame a Worker runs.
type Sink func(res *Result, err error)

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithAbortPolicy decides, for each aborted frame, whether the worker
// acknowledges the error and keeps running. Without a policy an abort stops
// the worker and Run returns the error.
func WithAbortPolicy(fn func(err error) bool) WorkerOption {
	return func(w *Worker) {
		w.acknowledge = fn
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// Worker runs the frames of one runtime on a single goroutine. Other
// goroutines only Submit events.
type Worker struct {
	rt          *Runtime
	sink        Sink
	acknowledge func(error) bool
	logger      *slog.Logger
}

// NewWorker creates a worker reporting to sink. A nil sink discards results.
func NewWorker(rt *Runtime, sink Sink, opts ...WorkerOption) *Worker {
	w := &Worker{rt: rt, sink: sink, logger: rt.logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes pending events until ctx is done or a frame aborts without
// being acknowledged.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.rt.Wake():
		}
	}
}

// drain runs frames while events are pending.
func (w *Worker) drain(ctx context.Context) error {
	for w.rt.Pending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := w.rt.RunPending(ctx)
		if res == nil && err == nil {
			continue
		}
		if w.sink != nil {
			w.sink(res, err)
		}
		if err == nil {
			continue
		}
		if w.rt.State() != StateAborted {
			return err
		}
		if w.acknowledge == nil || !w.acknowledge(err) {
			w.logger.Warn("worker stopped on aborted frame", slog.Any("error", err))
			return err
		}
		if ackErr := w.rt.Acknowledge(err); ackErr != nil {
			return ackErr
		}
	}
	return nil
}
