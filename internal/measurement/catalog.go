package measurement

import (
	"sort"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/schema"
)

// IVCurve measures the current-voltage characteristic of a device by
// stepping a bias voltage and reading the sensed voltage across a known
// resistance. The sweep itself runs outside this core; here the measurement
// only declares what it needs.
var IVCurve = Descriptor{
	Name:        "iv_curve",
	Description: "Current-voltage characteristic of a device under test",
	Requirements: []RequirementSpec{
		{AttributeName: "voltage_source", Contract: capability.VSource.Ref()},
		{AttributeName: "voltage_sense", Contract: capability.VSense.Ref()},
	},
	Params: schema.New(
		schema.Field{Name: "start_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "end_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "step_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "bias_resistance", Type: schema.TypeFloat, Required: true},
	),
}

// PCRCurve measures photon count rate against bias voltage.
var PCRCurve = Descriptor{
	Name:        "pcr_curve",
	Description: "Photon count rate versus bias voltage",
	Requirements: []RequirementSpec{
		{AttributeName: "voltage_source", Contract: capability.VSource.Ref()},
		{AttributeName: "counter", Contract: capability.Counter.Ref()},
	},
	Params: schema.New(
		schema.Field{Name: "start_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "end_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "step_V", Type: schema.TypeFloat, Required: true},
		schema.Field{Name: "gate_time", Type: schema.TypeFloat, Required: false, Default: 1.0},
	),
}

var catalog = map[string]Descriptor{
	IVCurve.Name:  IVCurve,
	PCRCurve.Name: PCRCurve,
}

// Get retrieves a measurement descriptor by name.
func Get(name string) (Descriptor, bool) {
	d, ok := catalog[name]
	return d, ok
}

// All returns every measurement descriptor sorted by name.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
