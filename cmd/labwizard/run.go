package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/cli/config"
	"github.com/snspd-lab/labwizard/internal/cli/ui"
	"github.com/snspd-lab/labwizard/internal/compose"
	"github.com/snspd-lab/labwizard/internal/instruments"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/resolve"
	"github.com/snspd-lab/labwizard/internal/runner"
	"github.com/snspd-lab/labwizard/internal/saver"
	"github.com/snspd-lab/labwizard/internal/topology"
)

var (
	runOffline bool
	runCheck   bool
	runBinds   []string
	runParams  []string
)

func init() {
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Use simulated drivers for every device")
	runCmd.Flags().BoolVar(&runCheck, "check", false, "Compose and tear down without running the sweep")
	runCmd.Flags().StringArrayVar(&runBinds, "bind", nil, "Bind a requirement to a device path (attribute=path)")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Set a measurement parameter (name=value)")
}

var runCmd = &cobra.Command{
	Use:   "run <measurement>",
	Short: "Compose the bench and run a measurement",
	Long: `Compose instrument drivers for a catalog measurement against the configured
topology and execute the sweep. Bindings saved by setup next to the topology
file are applied first; --bind overrides them per attribute, and a
requirement with exactly one compatible device in the topology binds
automatically. Saved bindings are re-validated against the current registry,
so a file that drifted since setup fails the composition instead of running
on the wrong device. With --check the bundle is composed and immediately
torn down, verifying the bench without acquiring data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := mustConfig()
		if err != nil {
			return err
		}
		defer log.Sync()
		opts := ui.Options{NoColor: noColor}

		desc, ok := measurement.Get(args[0])
		if !ok {
			names := make([]string, 0)
			for _, d := range measurement.All() {
				names = append(names, d.Name)
			}
			if s := ui.Suggest(args[0], names); len(s) > 0 {
				return fmt.Errorf("unknown measurement %q (did you mean %s?)", args[0], strings.Join(s, ", "))
			}
			return fmt.Errorf("unknown measurement %q", args[0])
		}

		reg := instruments.BuildRegistry(log)

		raw, err := topology.LoadFile(cfg.Topology)
		if err != nil {
			return err
		}
		nodes, verrs := topology.Validate(raw, reg)
		if verrs != nil {
			ui.ValidationReport(os.Stderr, verrs, reg.List(), opts)
			return fmt.Errorf("topology %s is invalid", cfg.Topology)
		}

		saved, err := topology.LoadBindingsFile(topology.BindingsFileFor(cfg.Topology))
		if err != nil {
			return err
		}
		bindings, err := resolveBindings(desc, reg, nodes, saved, runBinds)
		if err != nil {
			return err
		}

		params, err := parseParams(runParams)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bundle, err := compose.New(reg, log).Compose(ctx, desc.Requirements, bindings,
			compose.Options{Offline: runOffline, Params: params})
		if err != nil {
			return err
		}
		defer bundle.Teardown()

		for _, req := range desc.Requirements {
			d, _ := bundle.Driver(req.AttributeName)
			mode := "live"
			if d.Offline() {
				mode = "simulated"
			}
			ui.Info(os.Stdout, fmt.Sprintf("%s -> %s (%s)", req.AttributeName, d.QualifiedName(), mode), opts)
		}

		if runCheck {
			ui.Success(os.Stdout, fmt.Sprintf("bench composes for %s; tearing down", desc.Name), opts)
			return nil
		}

		run := runner.New(log)
		run.OnPoint = func(index, total int, values []float64) {
			fmt.Printf("\r  point %d/%d", index+1, total)
		}
		rec, err := run.Run(ctx, desc, bundle)
		fmt.Println()
		if err != nil {
			return err
		}

		if err := saveRecord(ctx, cfg, log, rec); err != nil {
			return err
		}
		ui.Success(os.Stdout, fmt.Sprintf("%s finished: %d points", desc.Name, len(rec.Rows)), opts)
		return nil
	},
}

// resolveBindings layers the binding sources: saved bindings from setup
// first, then explicit --bind flags, then automatic binding for
// requirements that have exactly one compatible device in the topology.
// Contract satisfaction is not checked here; the composer re-validates
// every binding so drifted saved files surface as BindingMismatch.
func resolveBindings(desc measurement.Descriptor, reg *registry.Registry, nodes []*topology.DeviceNode, saved topology.Bindings, binds []string) (map[string]*topology.DeviceNode, error) {
	wanted := make(map[string]bool, len(desc.Requirements))
	for _, req := range desc.Requirements {
		wanted[req.AttributeName] = true
	}

	bindings := make(map[string]*topology.DeviceNode, len(desc.Requirements))
	for attr, path := range saved {
		// A bindings file may have been written for another measurement.
		if !wanted[attr] {
			continue
		}
		node, found := topology.FindByPath(nodes, path)
		if !found {
			return nil, fmt.Errorf("saved binding %s: no device at path %s", attr, path)
		}
		bindings[attr] = node
	}

	for _, b := range binds {
		attr, path, ok := strings.Cut(b, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --bind %q, want attribute=path", b)
		}
		node, found := topology.FindByPath(nodes, path)
		if !found {
			return nil, fmt.Errorf("--bind %s: no device at path %s", attr, path)
		}
		bindings[attr] = node
	}

	candidates, err := resolve.Resolve(desc.Requirements, reg)
	if err != nil {
		return nil, err
	}
	if unfilled := resolve.Unfilled(desc.Requirements, candidates); len(unfilled) > 0 {
		return nil, fmt.Errorf("no registered implementation satisfies requirement(s): %s",
			strings.Join(unfilled, ", "))
	}

	used := make(map[*topology.DeviceNode]bool, len(bindings))
	for _, n := range bindings {
		used[n] = true
	}

	for _, req := range desc.Requirements {
		if _, bound := bindings[req.AttributeName]; bound {
			continue
		}
		contract, err := reg.Contract(req.Contract)
		if err != nil {
			return nil, err
		}

		var matches []*topology.DeviceNode
		for _, root := range nodes {
			root.Walk(func(n *topology.DeviceNode) {
				if !used[n] && n.Implementation().Satisfies(contract) {
					matches = append(matches, n)
				}
			})
		}
		switch len(matches) {
		case 1:
			bindings[req.AttributeName] = matches[0]
			used[matches[0]] = true
		case 0:
			return nil, fmt.Errorf("no device in the topology satisfies %q (%s)",
				req.AttributeName, contract.Name())
		default:
			paths := make([]string, len(matches))
			for i, m := range matches {
				paths[i] = m.Path()
			}
			return nil, fmt.Errorf("requirement %q is ambiguous, bind one of: %s",
				req.AttributeName, strings.Join(paths, ", "))
		}
	}
	return bindings, nil
}

// parseParams converts name=value flags, inferring bool/int/float types so
// schema validation sees properly typed values.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, want name=value", p)
		}
		switch {
		case raw == "true" || raw == "false":
			params[name] = raw == "true"
		default:
			if n, err := strconv.Atoi(raw); err == nil {
				params[name] = n
			} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
				params[name] = f
			} else {
				params[name] = raw
			}
		}
	}
	return params, nil
}

func saveRecord(ctx context.Context, cfg *config.Config, log *zap.Logger, rec saver.Record) error {
	var sink saver.Saver
	var err error
	if cfg.Results.DatabaseURL != "" {
		sink, err = saver.OpenDB(ctx, cfg.Results.DatabaseURL, log)
	} else {
		sink, err = saver.NewFileSaver(cfg.Results.Dir, saver.FileFormat(cfg.Results.Format), log)
	}
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.Save(ctx, rec)
}
