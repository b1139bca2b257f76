package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snspd-lab/labwizard/internal/cli/ui"
	"github.com/snspd-lab/labwizard/internal/instruments"
	"github.com/snspd-lab/labwizard/internal/topology"
)

var validateCmd = &cobra.Command{
	Use:   "validate [topology-file]",
	Short: "Validate a hardware topology description",
	Long: `Validate a topology file against the instrument registry: every entry must
name a registered implementation, satisfy its configuration schema, and
chassis modules must occupy unique slots. All problems are reported in one
pass.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := mustConfig()
		if err != nil {
			return err
		}
		path := cfg.Topology
		if len(args) == 1 {
			path = args[0]
		}

		reg := instruments.BuildRegistry(nil)
		opts := ui.Options{NoColor: noColor}

		raw, err := topology.LoadFile(path)
		if err != nil {
			return err
		}

		nodes, verrs := topology.Validate(raw, reg)
		if verrs != nil {
			ui.ValidationReport(os.Stderr, verrs, reg.List(), opts)
			return fmt.Errorf("%d validation error(s) in %s", verrs.Count(), path)
		}

		devices := 0
		for _, root := range nodes {
			root.Walk(func(*topology.DeviceNode) { devices++ })
		}
		ui.Success(os.Stdout, fmt.Sprintf("%s is valid (%d device(s))", path, devices), opts)
		return nil
	},
}
