package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// configEnv names the environment variable holding the config file path.
const configEnv = "FREL_CONFIG"

func main() {
	if os.Getenv("NO_COLOR") != "" {
		errors.DisableColors()
	}
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "frel",
		Short: "Reactive runtime for fragment-based UIs",
		Long: `frel runs reactive fragment trees and streams their patches.

Applications are driven by events; each batch of events runs as one
frame that either commits a complete patch batch or rolls back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to frel.json (default $"+configEnv+", then ./frel.json)")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}
	root.AddCommand(
		serveCmd(load),
		demoCmd(load),
		benchCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig resolves the configuration: an explicit path, then the
// environment, then frel.json in the working directory, then defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if config.Exists(wd) {
		return config.Load(wd)
	}
	return config.New(), nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
