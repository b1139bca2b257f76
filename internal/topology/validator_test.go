package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
)

func nopFactory(name string) driver.Factory {
	return func(context.Context, map[string]any, driver.Chassis, string, bool) (driver.Driver, error) {
		return driver.NewSimVSource(name), nil
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	sources := []registry.Source{
		{
			QualifiedName: "sim900.mainframe",
			Provides:      []capability.Operation{capability.OpDisconnect, capability.OpHostSlots},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "port", Type: schema.TypeString, Required: true},
					schema.Field{Name: "gpib_address", Type: schema.TypeInt, Default: 2},
				), nil
			},
			ChassisSlots: 8,
			Factory:      nopFactory("sim900.mainframe"),
		},
		{
			QualifiedName: "sim900.sim928",
			Provides: []capability.Operation{
				capability.OpDisconnect, capability.OpSetVoltage,
				capability.OpTurnOn, capability.OpTurnOff,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "settling_time_ms", Type: schema.TypeInt, Default: 100},
				), nil
			},
			Factory: nopFactory("sim900.sim928"),
		},
		{
			QualifiedName: "keysight.smu",
			Provides: []capability.Operation{
				capability.OpDisconnect, capability.OpSetVoltage,
				capability.OpTurnOn, capability.OpTurnOff, capability.OpGetVoltage,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "address", Type: schema.TypeString, Required: true},
				), nil
			},
			Factory: nopFactory("keysight.smu"),
		},
	}
	contracts := []capability.Contract{
		capability.VSource, capability.VSense, capability.Counter, capability.Chassis,
	}
	return registry.Build(sources, contracts, nil)
}

func TestValidateChassisWithModule(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "sim900.mainframe",
			Config: map[string]any{"port": "/dev/ttyUSB0"},
			Modules: []RawModule{
				{Slot: "3", Type: "sim900.sim928", Config: map[string]any{"settling_time_ms": 400}},
			},
		},
	}}

	nodes, errs := Validate(raw, testRegistry(t))
	require.Nil(t, errs)
	require.Len(t, nodes, 1)

	chassis := nodes[0]
	assert.True(t, chassis.IsChassis())
	assert.Equal(t, "implementations[0]", chassis.Path())
	assert.Equal(t, 2, chassis.Config()["gpib_address"], "default applied")

	require.Len(t, chassis.Children(), 1)
	mod := chassis.Children()[0]
	assert.Equal(t, "3", mod.Slot())
	assert.Equal(t, "implementations[0].modules[3]", mod.Path())
	assert.Same(t, chassis, mod.Parent())
	assert.Equal(t, 400, mod.Config()["settling_time_ms"])
}

func TestValidateDuplicateSlot(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "sim900.mainframe",
			Config: map[string]any{"port": "/dev/ttyUSB0"},
			Modules: []RawModule{
				{Slot: "3", Type: "sim900.sim928"},
				{Slot: "3", Type: "sim900.sim928"},
			},
		},
	}}

	nodes, errs := Validate(raw, testRegistry(t))
	assert.Nil(t, nodes)
	require.NotNil(t, errs)

	dups := errs.ByKind(KindDuplicateSlot)
	require.Len(t, dups, 1, "one error per duplicate occurrence")
	assert.Equal(t, "implementations[0]", dups[0].Path)
	assert.Contains(t, dups[0].Message, "slot 3")
}

func TestValidateAccumulatesAcrossEntries(t *testing.T) {
	// Two unknown implementations and one duplicate slot: all three reported
	// in a single pass.
	raw := Raw{Implementations: []RawEntry{
		{Type: "ghost.one", Config: map[string]any{}},
		{Type: "ghost.two", Config: map[string]any{}},
		{
			Type:   "sim900.mainframe",
			Config: map[string]any{"port": "/dev/ttyUSB0"},
			Modules: []RawModule{
				{Slot: "1", Type: "sim900.sim928"},
				{Slot: "1", Type: "sim900.sim928"},
			},
		},
	}}

	_, errs := Validate(raw, testRegistry(t))
	require.NotNil(t, errs)
	assert.Equal(t, 3, errs.Count())
	assert.Len(t, errs.ByKind(KindUnknownImplementation), 2)
	assert.Len(t, errs.ByKind(KindDuplicateSlot), 1)
}

func TestValidateSchemaViolationPaths(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "keysight.smu",
			Config: map[string]any{"address": 42, "extra": true},
		},
	}}

	_, errs := Validate(raw, testRegistry(t))
	require.NotNil(t, errs)

	violations := errs.ByKind(KindSchemaViolation)
	require.Len(t, violations, 2)
	assert.Equal(t, "implementations[0].address", violations[0].Path)
	assert.Equal(t, "implementations[0].extra", violations[1].Path)
}

func TestValidateModulesOnNonChassis(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "keysight.smu",
			Config: map[string]any{"address": "10.0.0.5"},
			Modules: []RawModule{
				{Slot: "1", Type: "sim900.sim928"},
			},
		},
	}}

	_, errs := Validate(raw, testRegistry(t))
	require.NotNil(t, errs)
	require.Equal(t, 1, errs.Count())
	assert.Equal(t, KindSchemaViolation, errs.Errors[0].Kind)
	assert.Equal(t, "implementations[0].modules", errs.Errors[0].Path)
}

func TestValidateUnknownModuleImplementation(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "sim900.mainframe",
			Config: map[string]any{"port": "/dev/ttyUSB0"},
			Modules: []RawModule{
				{Slot: "2", Type: "ghost.module"},
			},
		},
	}}

	_, errs := Validate(raw, testRegistry(t))
	require.NotNil(t, errs)
	unknown := errs.ByKind(KindUnknownImplementation)
	require.Len(t, unknown, 1)
	assert.Equal(t, "implementations[0].modules[2]", unknown[0].Path)
}

func TestValidateEmptyTopology(t *testing.T) {
	nodes, errs := Validate(Raw{}, testRegistry(t))
	assert.Nil(t, errs)
	assert.Empty(t, nodes)
}

func TestFindByPath(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{
			Type:   "sim900.mainframe",
			Config: map[string]any{"port": "/dev/ttyUSB0"},
			Modules: []RawModule{
				{Slot: "5", Type: "sim900.sim928"},
			},
		},
	}}

	nodes, errs := Validate(raw, testRegistry(t))
	require.Nil(t, errs)

	n, ok := FindByPath(nodes, "implementations[0].modules[5]")
	require.True(t, ok)
	assert.Equal(t, "sim900.sim928", n.Implementation().QualifiedName())

	_, ok = FindByPath(nodes, "implementations[9]")
	assert.False(t, ok)
}

func TestDeviceNodeBinding(t *testing.T) {
	raw := Raw{Implementations: []RawEntry{
		{Type: "keysight.smu", Config: map[string]any{"address": "10.0.0.5"}},
	}}
	nodes, errs := Validate(raw, testRegistry(t))
	require.Nil(t, errs)

	n := nodes[0]
	require.NoError(t, n.Bind("voltage_source"))
	require.NoError(t, n.Bind("voltage_source"), "rebinding same attribute is a no-op")
	assert.Error(t, n.Bind("voltage_sense"))

	n.ClearBinding()
	assert.NoError(t, n.Bind("voltage_sense"))
}
