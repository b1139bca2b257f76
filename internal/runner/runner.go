// Package runner executes catalog measurements against a composed resource
// bundle. The runner only speaks the driver contract interfaces; whether the
// bundle is live hardware or fully simulated makes no difference here.
package runner

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/compose"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/saver"
)

// Runner executes measurements.
type Runner struct {
	log *zap.Logger

	// OnPoint, when set, is invoked after every acquired sweep point with
	// the point's index, the total point count, and the data row. Progress
	// streaming hooks in here.
	OnPoint func(index, total int, values []float64)
}

// New creates a runner.
func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// Run validates the bundle's parameters against the measurement's schema and
// executes the sweep. The bundle stays live afterwards; teardown is the
// caller's call.
func (r *Runner) Run(ctx context.Context, desc measurement.Descriptor, bundle *compose.Bundle) (saver.Record, error) {
	params, problems := desc.Params.Validate(bundle.Params())
	if len(problems) > 0 {
		return saver.Record{}, fmt.Errorf("runner: invalid parameters for %s: %s: %s",
			desc.Name, problems[0].Field, problems[0].Message)
	}

	var (
		columns []string
		rows    [][]float64
		err     error
	)
	switch desc.Name {
	case measurement.IVCurve.Name:
		columns, rows, err = r.runIVCurve(ctx, bundle, params)
	case measurement.PCRCurve.Name:
		columns, rows, err = r.runPCRCurve(ctx, bundle, params)
	default:
		err = fmt.Errorf("runner: no executor for measurement %s", desc.Name)
	}
	if err != nil {
		return saver.Record{}, err
	}

	offline := true
	for _, d := range bundle.Drivers() {
		if !d.Offline() {
			offline = false
		}
	}

	return saver.Record{
		Measurement: desc.Name,
		BundleID:    bundle.ID(),
		TakenAt:     time.Now().UTC(),
		Offline:     offline,
		Params:      params,
		Columns:     columns,
		Rows:        rows,
	}, nil
}

func (r *Runner) runIVCurve(ctx context.Context, bundle *compose.Bundle, params map[string]any) ([]string, [][]float64, error) {
	source, err := vsourceFor(bundle, "voltage_source")
	if err != nil {
		return nil, nil, err
	}
	sense, err := vsenseFor(bundle, "voltage_sense")
	if err != nil {
		return nil, nil, err
	}

	biasR := params["bias_resistance"].(float64)

	var rows [][]float64
	sweep := func(i, total int, bias float64) error {
		if err := source.SetVoltage(bias); err != nil {
			return err
		}
		sensed, err := sense.GetVoltage()
		if err != nil {
			return err
		}
		// Device current through the bias resistor.
		current := (bias - sensed) / biasR
		row := []float64{bias, sensed, current}
		rows = append(rows, row)
		r.point(i, total, row)
		return nil
	}

	if err := r.runSweep(ctx, source, params, sweep); err != nil {
		return nil, nil, err
	}
	return []string{"bias_V", "sensed_V", "device_A"}, rows, nil
}

func (r *Runner) runPCRCurve(ctx context.Context, bundle *compose.Bundle, params map[string]any) ([]string, [][]float64, error) {
	source, err := vsourceFor(bundle, "voltage_source")
	if err != nil {
		return nil, nil, err
	}
	counter, err := counterFor(bundle, "counter")
	if err != nil {
		return nil, nil, err
	}

	gate := params["gate_time"].(float64)
	if err := counter.SetGateTime(gate); err != nil {
		return nil, nil, err
	}

	var rows [][]float64
	sweep := func(i, total int, bias float64) error {
		if err := source.SetVoltage(bias); err != nil {
			return err
		}
		counts, err := counter.Count(gate)
		if err != nil {
			return err
		}
		row := []float64{bias, float64(counts), float64(counts) / gate}
		rows = append(rows, row)
		r.point(i, total, row)
		return nil
	}

	if err := r.runSweep(ctx, source, params, sweep); err != nil {
		return nil, nil, err
	}
	return []string{"bias_V", "counts", "count_rate_hz"}, rows, nil
}

func (r *Runner) point(index, total int, values []float64) {
	if r.OnPoint != nil {
		r.OnPoint(index, total, values)
	}
}

// runSweep steps the bias source from start to end, gating the output around
// the sweep and zeroing it afterwards even on failure.
func (r *Runner) runSweep(ctx context.Context, source driver.VSource, params map[string]any, step func(index, total int, bias float64) error) error {
	start := params["start_V"].(float64)
	end := params["end_V"].(float64)
	inc := params["step_V"].(float64)
	if inc <= 0 {
		return fmt.Errorf("runner: step_V must be positive, got %g", inc)
	}
	if end < start {
		inc = -inc
	}

	if err := source.SetVoltage(start); err != nil {
		return err
	}
	if err := source.TurnOn(); err != nil {
		return err
	}
	defer func() {
		source.SetVoltage(0)
		source.TurnOff()
	}()

	// Rounded so inexact step representations (0.1, 0.3...) still land the
	// final point on end_V.
	points := int(math.Round((end-start)/inc)) + 1
	r.log.Info("sweep started",
		zap.Float64("start_V", start),
		zap.Float64("end_V", end),
		zap.Int("points", points))

	for i := 0; i < points; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("runner: sweep aborted: %w", err)
		}
		if err := step(i, points, start+float64(i)*inc); err != nil {
			return err
		}
	}
	return nil
}

func vsourceFor(bundle *compose.Bundle, attr string) (driver.VSource, error) {
	d, ok := bundle.Driver(attr)
	if !ok {
		return nil, fmt.Errorf("runner: bundle has no driver for %q", attr)
	}
	s, ok := d.(driver.VSource)
	if !ok {
		return nil, fmt.Errorf("runner: driver for %q is not a voltage source", attr)
	}
	return s, nil
}

func vsenseFor(bundle *compose.Bundle, attr string) (driver.VSense, error) {
	d, ok := bundle.Driver(attr)
	if !ok {
		return nil, fmt.Errorf("runner: bundle has no driver for %q", attr)
	}
	s, ok := d.(driver.VSense)
	if !ok {
		return nil, fmt.Errorf("runner: driver for %q is not a voltage sensor", attr)
	}
	return s, nil
}

func counterFor(bundle *compose.Bundle, attr string) (driver.Counter, error) {
	d, ok := bundle.Driver(attr)
	if !ok {
		return nil, fmt.Errorf("runner: bundle has no driver for %q", attr)
	}
	c, ok := d.(driver.Counter)
	if !ok {
		return nil, fmt.Errorf("runner: driver for %q is not a counter", attr)
	}
	return c, nil
}
