package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snspd-lab/labwizard/internal/cli/ui"
	"github.com/snspd-lab/labwizard/internal/instruments"
	"github.com/snspd-lab/labwizard/internal/measurement"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List registered instrument implementations",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := instruments.BuildRegistry(nil)

		tbl := ui.NewTable([]string{"NAME", "CAPABILITIES", "OFFLINE", "SLOTS"},
			ui.Options{NoColor: noColor})
		for _, name := range reg.List() {
			d, _ := reg.Get(name)
			caps := make([]string, 0, len(d.Capabilities()))
			for _, c := range d.Capabilities() {
				caps = append(caps, c.Name())
			}
			offline := "no"
			if d.SupportsOffline() {
				offline = "yes"
			}
			slots := "-"
			if d.IsChassis() {
				slots = fmt.Sprintf("%d", d.ChassisSlots())
			}
			tbl.AddRow(name, strings.Join(caps, ", "), offline, slots)
		}
		tbl.Render(os.Stdout)
		return nil
	},
}

var measurementsCmd = &cobra.Command{
	Use:   "measurements",
	Short: "List the measurement catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := ui.Options{NoColor: noColor}
		for _, d := range measurement.All() {
			ui.Info(os.Stdout, fmt.Sprintf("%s - %s", d.Name, d.Description), opts)
			for _, req := range d.Requirements {
				fmt.Printf("    requires %-16s (%s)\n", req.AttributeName, req.Contract.Name)
			}
			for _, f := range d.Params.Fields() {
				required := "optional"
				if f.Required {
					required = "required"
				}
				fmt.Printf("    param    %-16s %s, %s\n", f.Name, f.Type, required)
			}
		}
		return nil
	},
}
