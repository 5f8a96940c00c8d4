package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/internal/demo"
	"github.com/frel-dev/frel/pkg/runtime"
)

func demoCmd(load func() (*config.Config, error)) *cobra.Command {
	var batch bool

	cmd := &cobra.Command{
		Use:   "demo <app> [event[:payload]...]",
		Short: "Run a demo application locally and print its patches",
		Long: `Run a demo application in-process and print the patches of every frame.

Events are written as type or type:payload. Integer payloads are passed
as integers, anything else as a string. Each event runs in its own frame
unless --batch is set.

Examples:
  frel demo counter increment increment:5 set:-1
  frel demo todo add:milk add:eggs reverse remove:item-1
  frel demo counter --batch increment increment`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return demo.Names(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := demo.Lookup(args[0])
			if err != nil {
				return err
			}
			events := make([]runtime.Event, 0, len(args)-1)
			for _, arg := range args[1:] {
				events = append(events, parseEvent(arg))
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg, app, events, batch)
		},
	}

	cmd.Flags().BoolVarP(&batch, "batch", "b", false, "Run all events in a single frame")
	return cmd
}

func parseEvent(arg string) runtime.Event {
	typ, raw, ok := strings.Cut(arg, ":")
	ev := runtime.Event{Type: typ}
	if !ok {
		return ev
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		ev.Payload = n
	} else {
		ev.Payload = raw
	}
	return ev
}

func runDemo(ctx context.Context, out io.Writer, cfg *config.Config, app demo.App, events []runtime.Event, batch bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := runtime.New(
		runtime.FromConfig(cfg.Runtime),
		runtime.WithLogger(cfg.Log.Logger(os.Stderr)))
	defer rt.Close()

	res, err := rt.Build(ctx, app(rt))
	if err != nil {
		return err
	}
	printResult(out, "mount", res)

	run := func(label string, evs []runtime.Event) error {
		res, err := rt.StartFrame(ctx, evs)
		if err != nil {
			fmt.Fprintf(out, "frame %s aborted: %v\n", label, err)
			return rt.Acknowledge(err)
		}
		printResult(out, label, res)
		return nil
	}

	if batch && len(events) > 0 {
		return run(fmt.Sprintf("%d events", len(events)), events)
	}
	for _, ev := range events {
		if err := run(ev.Type, []runtime.Event{ev}); err != nil {
			return err
		}
	}
	return nil
}

func printResult(out io.Writer, label string, res *runtime.Result) {
	fmt.Fprintf(out, "frame %d (%s): %d patches, %d rounds, %d recomputations\n",
		res.Seq, label, len(res.Patches), res.Stats.Rounds, res.Stats.Recomputations)
	for _, p := range res.Patches {
		fmt.Fprintf(out, "  %s\n", p)
	}
}
