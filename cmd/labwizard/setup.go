package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snspd-lab/labwizard/internal/cli/ui"
	"github.com/snspd-lab/labwizard/internal/compose"
	"github.com/snspd-lab/labwizard/internal/instruments"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/resolve"
	"github.com/snspd-lab/labwizard/internal/schema"
	"github.com/snspd-lab/labwizard/internal/topology"
)

var setupOutput string

func init() {
	setupCmd.Flags().StringVarP(&setupOutput, "output", "o", "topology.yml", "Topology file to write")
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively describe a bench for a measurement",
	Long: `Walk through building a topology file: pick a measurement, choose an
implementation for each requirement from the compatible candidates, and fill
in each device's configuration. The resulting bench is verified with a
simulated composition before the file is written. The chosen
attribute-to-device bindings are saved alongside the topology so run picks
them up without --bind flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := instruments.BuildRegistry(nil)
		opts := ui.Options{NoColor: noColor}

		descs := measurement.All()
		names := make([]string, len(descs))
		for i, d := range descs {
			names[i] = d.Name
		}

		var picked string
		if err := survey.AskOne(&survey.Select{
			Message: "Measurement to set up:",
			Options: names,
		}, &picked); err != nil {
			return err
		}
		desc, _ := measurement.Get(picked)

		candidates, err := resolve.Resolve(desc.Requirements, reg)
		if err != nil {
			return err
		}

		var entries []map[string]any
		for _, req := range desc.Requirements {
			impls := candidates[req.AttributeName]
			if len(impls) == 0 {
				return fmt.Errorf("no registered implementation satisfies %q (%s)",
					req.AttributeName, req.Contract.Name)
			}

			implNames := make([]string, len(impls))
			for i, d := range impls {
				implNames[i] = d.QualifiedName()
			}

			var chosen string
			if err := survey.AskOne(&survey.Select{
				Message: fmt.Sprintf("Implementation for %s (%s):", req.AttributeName, req.Contract.Name),
				Options: implNames,
			}, &chosen); err != nil {
				return err
			}

			d, _ := reg.Get(chosen)
			cfg, err := promptConfig(d)
			if err != nil {
				return err
			}
			entries = append(entries, map[string]any{
				"type":   chosen,
				"config": cfg,
			})
		}

		doc := map[string]any{"implementations": entries}
		data, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}

		// Round-trip through the validator before writing anything.
		raw, err := topology.Parse(data)
		if err != nil {
			return err
		}
		nodes, verrs := topology.Validate(raw, reg)
		if verrs != nil {
			ui.ValidationReport(os.Stderr, verrs, reg.List(), opts)
			return fmt.Errorf("described bench does not validate")
		}

		bindings := make(map[string]*topology.DeviceNode, len(desc.Requirements))
		for i, req := range desc.Requirements {
			bindings[req.AttributeName] = nodes[i]
		}
		bundle, err := compose.New(reg, nil).Compose(context.Background(),
			desc.Requirements, bindings, compose.Options{Offline: true})
		if err != nil {
			return fmt.Errorf("bench does not compose: %w", err)
		}
		bundle.Teardown()

		if err := os.WriteFile(setupOutput, data, 0o644); err != nil {
			return err
		}

		saved := make(topology.Bindings, len(bindings))
		for attr, node := range bindings {
			saved[attr] = node.Path()
		}
		bdata, err := topology.EncodeBindings(saved)
		if err != nil {
			return err
		}
		bindingsPath := topology.BindingsFileFor(setupOutput)
		if err := os.WriteFile(bindingsPath, bdata, 0o644); err != nil {
			return err
		}

		ui.Success(os.Stdout, fmt.Sprintf("wrote %s and %s (composes for %s)",
			setupOutput, bindingsPath, desc.Name), opts)
		return nil
	},
}

// promptConfig asks for each schema field, showing defaults and skipping the
// offline flag (the run command controls that).
func promptConfig(d *registry.ImplementationDescriptor) (map[string]any, error) {
	cfg := make(map[string]any)
	for _, f := range d.Schema().Fields() {
		if f.Name == "offline" {
			continue
		}

		message := fmt.Sprintf("%s %s (%s):", d.QualifiedName(), f.Name, f.Type)
		def := ""
		if f.Default != nil {
			def = fmt.Sprintf("%v", f.Default)
		}

		var answer string
		prompt := &survey.Input{Message: message, Default: def}
		var opts []survey.AskOpt
		if f.Required {
			opts = append(opts, survey.WithValidator(survey.Required))
		}
		if err := survey.AskOne(prompt, &answer, opts...); err != nil {
			return nil, err
		}
		if answer == "" {
			continue
		}

		value, err := convertAnswer(answer, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.QualifiedName(), f.Name, err)
		}
		cfg[f.Name] = value
	}
	return cfg, nil
}

func convertAnswer(answer string, t schema.FieldType) (any, error) {
	switch t {
	case schema.TypeString:
		return answer, nil
	case schema.TypeInt:
		return strconv.Atoi(answer)
	case schema.TypeFloat:
		return strconv.ParseFloat(answer, 64)
	case schema.TypeBool:
		return strconv.ParseBool(answer)
	}
	return nil, fmt.Errorf("unsupported field type %s", t)
}
