// Package dummy provides stand-in implementations with no hardware behind
// them. They register like any other implementation and are handy when a
// measurement requires a role the bench does not physically provide.
package dummy

import (
	"context"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
)

const (
	voltName   = "dummy.volt"
	sourceName = "dummy.vsource"
)

// Sources returns the registration entries for the stand-in implementations.
func Sources() []registry.Source {
	return []registry.Source{
		{
			QualifiedName: voltName,
			DisplayName:   "Dummy Voltmeter",
			Description:   "stand-in voltage sensor returning uniform noise",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpGetVoltage,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory: func(context.Context, map[string]any, driver.Chassis, string, bool) (driver.Driver, error) {
				// Always simulated; there is no hardware mode.
				return driver.NewSimVSense(voltName), nil
			},
		},
		{
			QualifiedName: sourceName,
			DisplayName:   "Dummy Voltage Source",
			Description:   "stand-in voltage source accepting and discarding settings",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpSetVoltage,
				capability.OpTurnOn,
				capability.OpTurnOff,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory: func(context.Context, map[string]any, driver.Chassis, string, bool) (driver.Driver, error) {
				return driver.NewSimVSource(sourceName), nil
			},
		},
	}
}
