package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	goruntime "runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/internal/demo"
	"github.com/frel-dev/frel/pkg/protocol"
	"github.com/frel-dev/frel/pkg/render"
	"github.com/frel-dev/frel/pkg/server"
)

type benchProfile struct {
	Clients  int
	Duration time.Duration
	RPS      float64
}

var benchProfiles = map[string]benchProfile{
	"fast":     {Clients: 50, Duration: 10 * time.Second, RPS: 2},
	"standard": {Clients: 200, Duration: 30 * time.Second, RPS: 5},
	"stress":   {Clients: 500, Duration: 60 * time.Second, RPS: 10},
}

type benchOptions struct {
	Profile      string
	Clients      int
	Duration     time.Duration
	RPS          float64
	EventTimeout time.Duration
}

type benchCounters struct {
	eventsSent     atomic.Uint64
	eventsComplete atomic.Uint64
	eventBytes     atomic.Uint64
	patchBytes     atomic.Uint64
	patchFrames    atomic.Uint64
	patchesTotal   atomic.Uint64

	dialFailures      atomic.Uint64
	writeFailures     atomic.Uint64
	decodeFailures    atomic.Uint64
	serverErrorFrames atomic.Uint64
	valueMissing      atomic.Uint64
}

type benchReport struct {
	Profile      string         `json:"profile"`
	Clients      int            `json:"clients"`
	DurationMS   int64          `json:"duration_ms"`
	RPSPerClient float64        `json:"rps_per_client"`
	Go           string         `json:"go"`
	CPUCount     int            `json:"cpu_count"`
	LatencyMS    latencyInfo    `json:"latency_ms"`
	Throughput   throughputInfo `json:"throughput"`
	Protocol     protocolInfo   `json:"protocol"`
	Errors       errorInfo      `json:"errors"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	EventsTotal  uint64  `json:"events_total"`
	EventsPerSec float64 `json:"events_per_sec"`
}

type protocolInfo struct {
	EventBytesTotal uint64  `json:"event_bytes_total"`
	PatchBytesTotal uint64  `json:"patch_bytes_total"`
	PatchFrames     uint64  `json:"patch_frames_total"`
	PatchesPerEvent float64 `json:"patches_per_event"`
}

type errorInfo struct {
	Total             uint64 `json:"total"`
	DialFailures      uint64 `json:"dial_failures"`
	WriteFailures     uint64 `json:"write_failures"`
	DecodeFailures    uint64 `json:"decode_failures"`
	ServerErrorFrames uint64 `json:"server_error_frames"`
	ValueMissing      uint64 `json:"value_missing"`
}

func benchCmd() *cobra.Command {
	var (
		opts     benchOptions
		jsonPath string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test an in-process server with the counter demo",
		Long: `Start an in-process server mounting the counter demo and drive it with
concurrent WebSocket clients. Each client sends set events at a fixed
rate and waits for the patch carrying its value, measuring the round
trip.

Examples:
  frel bench --profile fast
  frel bench --clients 20 --duration 5s --rps 50 --json report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(); err != nil {
				return err
			}
			report, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			writeSummary(cmd.ErrOrStderr(), report)
			if jsonPath == "" {
				return nil
			}
			return writeJSON(jsonPath, cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "fast", "Profile: fast|standard|stress")
	cmd.Flags().IntVar(&opts.Clients, "clients", 0, "Concurrent clients (default from profile)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Benchmark duration (default from profile)")
	cmd.Flags().Float64Var(&opts.RPS, "rps", 0, "Events per second per client (default from profile)")
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write a JSON report to this path ('-' for stdout)")
	return cmd
}

// resolve fills unset options from the profile and validates them.
func (o *benchOptions) resolve() error {
	base, ok := benchProfiles[o.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q", o.Profile)
	}
	if o.Clients == 0 {
		o.Clients = base.Clients
	}
	if o.Duration == 0 {
		o.Duration = base.Duration
	}
	if o.RPS == 0 {
		o.RPS = base.RPS
	}
	switch {
	case o.Clients < 0:
		return errors.New("--clients must be > 0")
	case o.Duration < 0:
		return errors.New("--duration must be > 0")
	case o.RPS < 0:
		return errors.New("--rps must be > 0")
	}
	if o.EventTimeout == 0 {
		o.EventTimeout = max(10*time.Duration(float64(time.Second)/o.RPS), 2*time.Second)
	}
	return nil
}

func runBench(ctx context.Context, opts benchOptions) (benchReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.New()
	cfg.Server.EventsPerSecond = 0 // unlimited
	cfg.Metrics.Disabled = true
	srv := server.New(demo.Counter,
		server.WithConfig(cfg),
		server.WithLogger(cfg.Log.Logger(io.Discard)))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{Handler: srv}
	go func() { _ = httpServer.Serve(ln) }()
	defer func() {
		_ = srv.Shutdown(context.Background())
		_ = httpServer.Shutdown(context.Background())
	}()

	url := "ws://" + ln.Addr().String() + cfg.Server.Path
	ctx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	var (
		counters  benchCounters
		mu        sync.Mutex
		latencies []time.Duration
		wg        sync.WaitGroup
	)
	start := time.Now()
	for range opts.Clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples := runClient(ctx, url, opts, &counters)
			mu.Lock()
			latencies = append(latencies, samples...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return buildReport(opts, elapsed, latencies, &counters), nil
}

// runClient sends set events with increasing values and waits for the count
// patch echoing each one. It returns the round-trip samples.
func runClient(ctx context.Context, url string, opts benchOptions, c *benchCounters) []time.Duration {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() == nil {
			c.dialFailures.Add(1)
		}
		return nil
	}
	defer conn.Close()

	// Mount frame.
	if _, _, err := conn.ReadMessage(); err != nil {
		c.decodeFailures.Add(1)
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RPS), 1)
	var samples []time.Duration
	for value := int64(1); ; value++ {
		if err := limiter.Wait(ctx); err != nil {
			return samples
		}
		msg, err := protocol.EventMessage(&protocol.EventFrame{
			Seq:     uint64(value),
			Type:    demo.EventSet,
			Payload: value,
		})
		if err != nil {
			c.writeFailures.Add(1)
			return samples
		}

		sent := time.Now()
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.writeFailures.Add(1)
			return samples
		}
		c.eventsSent.Add(1)
		c.eventBytes.Add(uint64(len(msg)))

		_ = conn.SetReadDeadline(time.Now().Add(opts.EventTimeout))
		if err := waitForValue(conn, value, c); err != nil {
			if ctx.Err() == nil {
				c.valueMissing.Add(1)
			}
			return samples
		}
		c.eventsComplete.Add(1)
		samples = append(samples, time.Since(sent))
	}
}

func waitForValue(conn *websocket.Conn, value int64, c *benchCounters) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			c.decodeFailures.Add(1)
			return err
		}
		switch frame.Type {
		case protocol.FramePatches:
			c.patchFrames.Add(1)
			c.patchBytes.Add(uint64(len(msg)))
			pf, err := protocol.DecodePatches(frame.Payload)
			if err != nil {
				c.decodeFailures.Add(1)
				return err
			}
			c.patchesTotal.Add(uint64(len(pf.Patches)))
			for _, p := range pf.Patches {
				if p.Kind == render.PatchContent && p.Name == "count" && p.Value == value {
					return nil
				}
			}
		case protocol.FrameError:
			c.serverErrorFrames.Add(1)
			ef, err := protocol.DecodeError(frame.Payload)
			if err != nil {
				return err
			}
			return ef
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func buildReport(opts benchOptions, elapsed time.Duration, latencies []time.Duration, c *benchCounters) benchReport {
	events := c.eventsComplete.Load()
	report := benchReport{
		Profile:      opts.Profile,
		Clients:      opts.Clients,
		DurationMS:   opts.Duration.Milliseconds(),
		RPSPerClient: opts.RPS,
		Go:           goruntime.Version(),
		CPUCount:     goruntime.NumCPU(),
		Throughput: throughputInfo{
			EventsTotal:  events,
			EventsPerSec: float64(events) / math.Max(0.001, elapsed.Seconds()),
		},
		Protocol: protocolInfo{
			EventBytesTotal: c.eventBytes.Load(),
			PatchBytesTotal: c.patchBytes.Load(),
			PatchFrames:     c.patchFrames.Load(),
		},
		Errors: errorInfo{
			DialFailures:      c.dialFailures.Load(),
			WriteFailures:     c.writeFailures.Load(),
			DecodeFailures:    c.decodeFailures.Load(),
			ServerErrorFrames: c.serverErrorFrames.Load(),
			ValueMissing:      c.valueMissing.Load(),
		},
	}
	e := report.Errors
	report.Errors.Total = e.DialFailures + e.WriteFailures + e.DecodeFailures + e.ServerErrorFrames + e.ValueMissing
	if events > 0 {
		report.Protocol.PatchesPerEvent = float64(c.patchesTotal.Load()) / float64(events)
	}
	if len(latencies) > 0 {
		report.LatencyMS = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}
	return report
}

func writeSummary(w io.Writer, r benchReport) {
	fmt.Fprintln(w, "=== frel bench ===")
	fmt.Fprintf(w, "Profile: %s, %d clients, %s at %.2f events/s each\n",
		r.Profile, r.Clients, time.Duration(r.DurationMS)*time.Millisecond, r.RPSPerClient)
	fmt.Fprintf(w, "Total events: %d (%.1f events/s)\n", r.Throughput.EventsTotal, r.Throughput.EventsPerSec)
	fmt.Fprintf(w, "Errors: %d\n", r.Errors.Total)
	if r.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
		return
	}
	fmt.Fprintln(w, "RTT (send -> frame -> patch decoded):")
	fmt.Fprintf(w, "  min: %.2f ms\n", r.LatencyMS.Min)
	fmt.Fprintf(w, "  p50: %.2f ms\n", r.LatencyMS.P50)
	fmt.Fprintf(w, "  p95: %.2f ms\n", r.LatencyMS.P95)
	fmt.Fprintf(w, "  p99: %.2f ms\n", r.LatencyMS.P99)
	fmt.Fprintf(w, "  max: %.2f ms\n", r.LatencyMS.Max)
	fmt.Fprintf(w, "Patches per event: %.2f\n", r.Protocol.PatchesPerEvent)
}

func writeJSON(path string, stdout io.Writer, report benchReport) error {
	out := stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
