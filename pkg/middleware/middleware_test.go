package middleware

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/runtime"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDenied = stderrors.New("denied")

// newRuntime mounts one writable store with "set" and "fail" handlers.
func newRuntime(t *testing.T, mw ...runtime.Middleware) (*runtime.Runtime, ident.ID) {
	t.Helper()
	rt := runtime.New(runtime.WithLogger(quietLogger()), runtime.WithMiddleware(mw...))
	var store ident.ID
	_, err := rt.Build(context.Background(), func(f *runtime.Frame) error {
		var err error
		store, err = f.CreateWritable(ident.Root, 0)
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rt.Handle("set", func(f *runtime.Frame, ev runtime.Event) error {
		return f.Write(store, ev.Payload)
	})
	rt.Handle("fail", func(f *runtime.Frame, ev runtime.Event) error {
		return errDenied
	})
	return rt, store
}

// recordingTracer captures started spans.
type recordingTracer struct {
	noop.Tracer
	spans []*recordedSpan
}

type recordedSpan struct {
	noop.Span
	name   string
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) SetStatus(c codes.Code, _ string) {
	s.status = c
}

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.attrs = append(s.attrs, kv...)
}

func (s *recordedSpan) End(...trace.SpanEndOption) {
	s.ended = true
}

func (s *recordedSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordedSpan{name: name, attrs: cfg.Attributes()}
	r.spans = append(r.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

func TestTracingStartsSpanPerEvent(t *testing.T) {
	tracer := &recordingTracer{}
	var seen trace.Span
	rt, _ := newRuntime(t, Tracing(
		WithTracer(tracer),
		WithAttributeExtractor(func(*runtime.Frame, runtime.Event) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	rt.Handle("peek", func(f *runtime.Frame, ev runtime.Event) error {
		seen = SpanFromFrame(f)
		return nil
	})

	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 1}, {Type: "peek"}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	if len(tracer.spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(tracer.spans))
	}
	first := tracer.spans[0]
	if first.name != "frel.event set" {
		t.Errorf("span name = %q", first.name)
	}
	if v, ok := first.attr("frel.event.type"); !ok || v.AsString() != "set" {
		t.Errorf("frel.event.type = %v", v)
	}
	if v, ok := first.attr("test.attr"); !ok || v.AsString() != "ok" {
		t.Errorf("test.attr = %v", v)
	}
	if !first.ended || first.status != codes.Ok {
		t.Errorf("span ended=%v status=%v", first.ended, first.status)
	}
	if seen != tracer.spans[1] {
		t.Error("handler did not see its event span")
	}
}

func TestTracingRecordsHandlerError(t *testing.T) {
	tracer := &recordingTracer{}
	rt, _ := newRuntime(t, Tracing(WithTracer(tracer)))

	_, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "fail"}})
	if !stderrors.Is(err, errDenied) {
		t.Fatalf("err = %v, want %v", err, errDenied)
	}
	span := tracer.spans[0]
	if span.status != codes.Error || len(span.errs) != 1 {
		t.Errorf("status=%v errs=%v", span.status, span.errs)
	}
}

func TestTracingFilterSkipsEvents(t *testing.T) {
	tracer := &recordingTracer{}
	rt, _ := newRuntime(t, Tracing(
		WithTracer(tracer),
		WithEventFilter(func(ev runtime.Event) bool { return ev.Type != "set" }),
	))
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 2}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	if len(tracer.spans) != 0 {
		t.Errorf("filtered event produced %d spans", len(tracer.spans))
	}
}

func TestTracingUsesGlobalProviderByDefault(t *testing.T) {
	rt, _ := newRuntime(t, Tracing())
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 3}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
}

func TestSpanName(t *testing.T) {
	if got := spanName(runtime.Event{}); got != "frel.event" {
		t.Errorf("spanName(empty) = %q", got)
	}
	if got := spanName(runtime.Event{Type: "add"}); got != "frel.event add" {
		t.Errorf("spanName(add) = %q", got)
	}
}

func TestMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))
	rt, _ := newRuntime(t)
	rt.Use(m.Middleware())

	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 1}, {Type: "set", Payload: 2}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "fail"}}); err == nil {
		t.Fatal("expected abort")
	}

	if got := testutil.ToFloat64(m.events.WithLabelValues("set", statusOK)); got != 2 {
		t.Errorf("set ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("fail", statusError)); got != 1 {
		t.Errorf("fail error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("fail", "handler")); got != 1 {
		t.Errorf("fail errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
	if n, err := testutil.GatherAndCount(reg, "test_events_total"); err != nil || n != 2 {
		t.Errorf("gathered test_events_total = %d, %v", n, err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errDenied, "handler"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New(errors.KindUseAfterFree, "read", ident.ID(3)), "useafterfree"},
		{runtime.ErrQueueFull, "queuefull"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rt, _ := newRuntime(t, Logging(logger))

	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 1}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "fail"}}); err == nil {
		t.Fatal("expected abort")
	}
	out := buf.String()
	if !strings.Contains(out, "event handled") || !strings.Contains(out, "event=set") {
		t.Errorf("missing debug record: %s", out)
	}
	if !strings.Contains(out, "handler failed") || !strings.Contains(out, "denied") {
		t.Errorf("missing warning: %s", out)
	}
}

func TestMiddlewareChainOrder(t *testing.T) {
	tracer := &recordingTracer{}
	var spanInMetrics bool
	probe := func(next runtime.Handler) runtime.Handler {
		return func(f *runtime.Frame, ev runtime.Event) error {
			spanInMetrics = len(tracer.spans) == 1 && SpanFromFrame(f) == tracer.spans[0]
			return next(f, ev)
		}
	}
	rt, _ := newRuntime(t, Tracing(WithTracer(tracer)), probe)
	if _, err := rt.StartFrame(context.Background(), []runtime.Event{{Type: "set", Payload: 1}}); err != nil {
		t.Fatalf("StartFrame: %v", err)
	}
	if !spanInMetrics {
		t.Error("inner middleware did not see the event span")
	}
}
