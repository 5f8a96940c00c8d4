package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/internal/demo"
	"github.com/frel-dev/frel/pkg/server"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		app   string
		addr  string
		trace bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo application over WebSocket",
		Long: `Serve a demo application over WebSocket.

Every connection gets its own runtime. Clients send event frames and
receive a patches frame for every committed frame.

Examples:
  frel serve
  frel serve --app todo --addr :9000
  frel serve --trace
  FREL_CONFIG=prod.json frel serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if trace {
				cfg.Server.Tracing = true
			}
			factory, err := demo.Lookup(app)
			if err != nil {
				return err
			}

			logger := cfg.Log.Logger(os.Stderr)
			if cfg.Name != "" {
				logger = logger.With("app", cfg.Name)
			}
			srv := server.New(server.AppFactory(factory),
				server.WithConfig(cfg),
				server.WithLogger(logger))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			success("Serving %s on ws://%s%s", app, cfg.Server.Addr, cfg.Server.Path)
			if !cfg.Metrics.Disabled {
				info("Metrics at http://%s%s", cfg.Server.Addr, cfg.Metrics.Path)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&app, "app", "a", "counter", "Demo application to serve")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from frel.json)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Start an OpenTelemetry span for every event")
	return cmd
}
