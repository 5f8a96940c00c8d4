package runtime

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"
)

type collect struct {
	mu      sync.Mutex
	results []*Result
	errs    []error
	done    chan struct{}
	want    int
}

func newCollect(want int) *collect {
	return &collect{done: make(chan struct{}), want: want}
}

func (c *collect) sink(res *Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs = append(c.errs, err)
	} else {
		c.results = append(c.results, res)
	}
	if len(c.results)+len(c.errs) == c.want {
		close(c.done)
	}
}

func (c *collect) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frames")
	}
}

func TestWorkerProcessesSubmittedEvents(t *testing.T) {
	rt := newRuntime()
	c := mountCounter(t, rt, 0)
	out := newCollect(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewWorker(rt, out.sink).Run(ctx) }()

	if err := rt.Submit(Event{Type: "set", Payload: 4}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out.wait(t)

	cancel()
	if err := <-done; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if v, _ := rt.Read(c.store); v != 4 {
		t.Fatalf("store = %v, want 4", v)
	}
	if len(out.results) != 1 || len(out.results[0].Patches) != 1 {
		t.Fatalf("results = %v", out.results)
	}
}

func TestWorkerAcknowledgesByPolicy(t *testing.T) {
	rt := newRuntime()
	c := mountCounter(t, rt, 0)
	boom := stderrors.New("boom")
	rt.Handle("fail", func(*Frame, Event) error { return boom })

	if err := rt.Submit(Event{Type: "fail"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := rt.Submit(Event{Type: "set", Payload: 2}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := newCollect(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	w := NewWorker(rt, out.sink,
		WithAbortPolicy(func(err error) bool { return stderrors.Is(err, boom) }),
		WithWorkerLogger(quietLogger()))
	go func() { done <- w.Run(ctx) }()

	// Both events were pending, so they share the aborted frame.
	out.wait(t)
	if err := rt.Submit(Event{Type: "set", Payload: 3}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		out.mu.Lock()
		n := len(out.results)
		out.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the frame after the abort")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(out.errs) != 1 || !stderrors.Is(out.errs[0], boom) {
		t.Fatalf("errs = %v", out.errs)
	}
	if v, _ := rt.Read(c.store); v != 3 {
		t.Fatalf("store = %v, want 3", v)
	}
}

func TestWorkerStopsWithoutPolicy(t *testing.T) {
	rt := newRuntime()
	boom := stderrors.New("boom")
	rt.Handle("fail", func(*Frame, Event) error { return boom })
	if err := rt.Submit(Event{Type: "fail"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err := NewWorker(rt, nil, WithWorkerLogger(quietLogger())).Run(context.Background())
	if !stderrors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	if rt.State() != StateAborted {
		t.Fatalf("state = %s, want aborted", rt.State())
	}
}
