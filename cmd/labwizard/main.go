package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/cli/config"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var noColor bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "labwizard",
		Short: "Capability-based instrument resolution and measurement tooling",
		Long: `labwizard assembles laboratory measurements from instrument drivers.
It validates hardware topology descriptions, matches measurement requirements
against registered instrument capabilities, and composes live (or simulated)
driver bundles for execution.`,
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(instrumentsCmd)
	rootCmd.AddCommand(measurementsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger constructs the process logger from configuration.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func mustConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
