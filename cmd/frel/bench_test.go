package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestBenchOptionsResolve(t *testing.T) {
	opts := benchOptions{Profile: "fast", Clients: 3}
	if err := opts.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if opts.Clients != 3 || opts.Duration != 10*time.Second || opts.RPS != 2 {
		t.Errorf("options = %+v", opts)
	}
	if opts.EventTimeout != 5*time.Second {
		t.Errorf("event timeout = %s, want 5s", opts.EventTimeout)
	}

	bad := benchOptions{Profile: "huge"}
	if err := bad.resolve(); err == nil {
		t.Error("resolve accepted an unknown profile")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{0.5, 5},
		{0.95, 10},
		{1, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil) = %d", got)
	}
}

func TestRunBench(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	opts := benchOptions{Profile: "fast", Clients: 2, Duration: 300 * time.Millisecond, RPS: 50}
	if err := opts.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	report, err := runBench(context.Background(), opts)
	if err != nil {
		t.Fatalf("runBench: %v", err)
	}
	if report.Throughput.EventsTotal == 0 {
		t.Fatal("no events completed")
	}
	if report.Errors.Total != 0 {
		t.Errorf("errors = %+v", report.Errors)
	}

	var out bytes.Buffer
	writeSummary(&out, report)
	if !strings.Contains(out.String(), "p50") {
		t.Errorf("summary missing latency:\n%s", out.String())
	}
}
