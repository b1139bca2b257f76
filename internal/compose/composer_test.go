package compose

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
	"github.com/snspd-lab/labwizard/internal/topology"
)

// recorder captures driver lifecycle events so tests can assert on
// instantiation and teardown order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeDriver struct {
	name    string
	rec     *recorder
	offline bool
}

func (d *fakeDriver) QualifiedName() string { return d.name }
func (d *fakeDriver) Offline() bool         { return d.offline }

func (d *fakeDriver) Teardown() error {
	d.rec.add("teardown:" + d.name)
	return nil
}

func (d *fakeDriver) SetVoltage(float64) error { return nil }
func (d *fakeDriver) TurnOn() error            { return nil }
func (d *fakeDriver) TurnOff() error           { return nil }

type fakeChassis struct {
	fakeDriver
}

func (c *fakeChassis) Slot(address string) (driver.Conn, error) {
	return nil, fmt.Errorf("fake chassis has no transport")
}

// fixture builds a registry of synthetic implementations whose factories log
// to the recorder. test.failing always fails construction; test.hardware has
// no offline mode.
func fixture(t *testing.T) (*registry.Registry, *recorder) {
	t.Helper()
	rec := &recorder{}

	vsrcOps := []capability.Operation{
		capability.OpDisconnect, capability.OpSetVoltage,
		capability.OpTurnOn, capability.OpTurnOff,
	}
	emptySchema := func() (*schema.Schema, error) { return schema.New(), nil }
	offlineSchema := func() (*schema.Schema, error) {
		return schema.New(schema.Field{Name: "offline", Type: schema.TypeBool}), nil
	}

	plain := func(name string) driver.Factory {
		return func(_ context.Context, _ map[string]any, _ driver.Chassis, _ string, offline bool) (driver.Driver, error) {
			rec.add("build:" + name)
			return &fakeDriver{name: name, rec: rec, offline: offline}, nil
		}
	}

	sources := []registry.Source{
		{
			QualifiedName:   "test.chassis",
			Provides:        []capability.Operation{capability.OpDisconnect, capability.OpHostSlots},
			Schema:          offlineSchema,
			SupportsOffline: true,
			ChassisSlots:    4,
			Factory: func(_ context.Context, _ map[string]any, _ driver.Chassis, _ string, offline bool) (driver.Driver, error) {
				rec.add("build:test.chassis")
				return &fakeChassis{fakeDriver{name: "test.chassis", rec: rec, offline: offline}}, nil
			},
		},
		{
			QualifiedName:   "test.module",
			Provides:        vsrcOps,
			Schema:          offlineSchema,
			SupportsOffline: true,
			Factory: func(_ context.Context, _ map[string]any, parent driver.Chassis, slot string, offline bool) (driver.Driver, error) {
				if offline {
					rec.add("build:test.module@" + slot)
					return &fakeDriver{name: "test.module@" + slot, rec: rec, offline: true}, nil
				}
				if parent == nil {
					return nil, fmt.Errorf("module requires a chassis")
				}
				rec.add("build:test.module@" + slot)
				return &fakeDriver{name: "test.module@" + slot, rec: rec, offline: false}, nil
			},
		},
		{
			QualifiedName:   "test.source",
			Provides:        vsrcOps,
			Schema:          offlineSchema,
			SupportsOffline: true,
			Factory:         plain("test.source"),
		},
		{
			QualifiedName:   "test.sense",
			Provides:        []capability.Operation{capability.OpDisconnect, capability.OpGetVoltage},
			Schema:          emptySchema,
			SupportsOffline: true,
			Factory:         plain("test.sense"),
		},
		{
			QualifiedName:   "test.failing",
			Provides:        []capability.Operation{capability.OpDisconnect, capability.OpCount, capability.OpSetGate},
			Schema:          emptySchema,
			SupportsOffline: true,
			Factory: func(context.Context, map[string]any, driver.Chassis, string, bool) (driver.Driver, error) {
				rec.add("build:test.failing")
				return nil, fmt.Errorf("hardware not responding")
			},
		},
		{
			QualifiedName: "test.hardware",
			Provides:      vsrcOps,
			Schema:        emptySchema,
			Factory:       plain("test.hardware"),
		},
	}
	contracts := []capability.Contract{
		capability.VSource, capability.VSense, capability.Counter, capability.Chassis,
	}
	return registry.Build(sources, contracts, nil), rec
}

func validate(t *testing.T, reg *registry.Registry, raw topology.Raw) []*topology.DeviceNode {
	t.Helper()
	nodes, errs := topology.Validate(raw, reg)
	require.Nil(t, errs)
	return nodes
}

func req(attr, contract string) measurement.RequirementSpec {
	return measurement.RequirementSpec{
		AttributeName: attr,
		Contract:      capability.Ref{Name: contract},
	}
}

func TestComposeBuildsBundle(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
		{Type: "test.sense"},
	}})

	reqs := []measurement.RequirementSpec{
		req("voltage_source", "VSource"),
		req("voltage_sense", "VSense"),
	}
	bindings := map[string]*topology.DeviceNode{
		"voltage_source": nodes[0],
		"voltage_sense":  nodes[1],
	}

	bundle, err := New(reg, nil).Compose(context.Background(), reqs, bindings,
		Options{Params: map[string]any{"start_V": 0.0}})
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.NotEmpty(t, bundle.ID())
	assert.Equal(t, 0.0, bundle.Params()["start_V"])

	d, ok := bundle.Driver("voltage_source")
	require.True(t, ok)
	assert.Equal(t, "test.source", d.QualifiedName())
	_, ok = d.(driver.VSource)
	assert.True(t, ok)

	require.NoError(t, bundle.Teardown())
	assert.Equal(t, []string{
		"build:test.source",
		"build:test.sense",
		"teardown:test.sense",
		"teardown:test.source",
	}, rec.list(), "teardown runs in reverse instantiation order")

	// Second teardown is a no-op.
	require.NoError(t, bundle.Teardown())
	assert.Len(t, rec.list(), 4)
}

func TestComposeChassisBeforeModule(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{
			Type: "test.chassis",
			Modules: []topology.RawModule{
				{Slot: "2", Type: "test.module"},
			},
		},
	}})

	module := nodes[0].Children()[0]
	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": module},
		Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"build:test.chassis", "build:test.module@2"}, rec.list())

	require.NoError(t, bundle.Teardown())
	assert.Equal(t, []string{
		"build:test.chassis",
		"build:test.module@2",
		"teardown:test.module@2",
		"teardown:test.chassis",
	}, rec.list(), "supporting chassis torn down after its module")
}

func TestComposeSharedChassisBuiltOnce(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{
			Type: "test.chassis",
			Modules: []topology.RawModule{
				{Slot: "1", Type: "test.module"},
				{Slot: "2", Type: "test.module"},
			},
		},
	}})

	kids := nodes[0].Children()
	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{
			req("bias_source", "VSource"),
			req("gate_source", "VSource"),
		},
		map[string]*topology.DeviceNode{
			"bias_source": kids[0],
			"gate_source": kids[1],
		},
		Options{})
	require.NoError(t, err)
	defer bundle.Teardown()

	assert.Equal(t, []string{
		"build:test.chassis",
		"build:test.module@1",
		"build:test.module@2",
	}, rec.list(), "one chassis instantiation serves both modules")
}

func TestComposeRollbackOnFailure(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
		{Type: "test.failing"},
		{Type: "test.sense"},
	}})

	reqs := []measurement.RequirementSpec{
		req("voltage_source", "VSource"),
		req("counter", "Counter"),
		req("voltage_sense", "VSense"),
	}
	bindings := map[string]*topology.DeviceNode{
		"voltage_source": nodes[0],
		"counter":        nodes[1],
		"voltage_sense":  nodes[2],
	}

	bundle, err := New(reg, nil).Compose(context.Background(), reqs, bindings, Options{})
	require.Error(t, err)
	assert.Nil(t, bundle)

	var ierr *InstantiationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "counter", ierr.Attribute)
	assert.ErrorContains(t, ierr.Err, "hardware not responding")

	assert.Equal(t, []string{
		"build:test.source",
		"build:test.failing",
		"teardown:test.source",
	}, rec.list(), "everything built before the failure is torn down")
}

func TestComposeBindingMismatch(t *testing.T) {
	reg, _ := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
		{Type: "test.sense"},
	}})

	c := New(reg, nil)

	t.Run("missing binding", func(t *testing.T) {
		_, err := c.Compose(context.Background(),
			[]measurement.RequirementSpec{req("voltage_source", "VSource")},
			map[string]*topology.DeviceNode{}, Options{})
		var berr *BindingMismatchError
		require.ErrorAs(t, err, &berr)
		assert.Equal(t, "voltage_source", berr.Attribute)
	})

	t.Run("contract not satisfied", func(t *testing.T) {
		_, err := c.Compose(context.Background(),
			[]measurement.RequirementSpec{req("counter", "Counter")},
			map[string]*topology.DeviceNode{"counter": nodes[0]}, Options{})
		var berr *BindingMismatchError
		require.ErrorAs(t, err, &berr)
		assert.Contains(t, berr.Reason, "does not satisfy contract Counter")
	})

	t.Run("device shared across requirements", func(t *testing.T) {
		_, err := c.Compose(context.Background(),
			[]measurement.RequirementSpec{
				req("bias_source", "VSource"),
				req("gate_source", "VSource"),
			},
			map[string]*topology.DeviceNode{
				"bias_source": nodes[0],
				"gate_source": nodes[0],
			}, Options{})
		var berr *BindingMismatchError
		require.ErrorAs(t, err, &berr)
		assert.Contains(t, berr.Reason, "already bound")
	})

	t.Run("unknown contract", func(t *testing.T) {
		_, err := c.Compose(context.Background(),
			[]measurement.RequirementSpec{req("scope", "Oscilloscope")},
			map[string]*topology.DeviceNode{"scope": nodes[0]}, Options{})
		var berr *BindingMismatchError
		require.ErrorAs(t, err, &berr)
	})
}

func TestComposeOfflineGlobal(t *testing.T) {
	reg, _ := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
	}})

	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": nodes[0]},
		Options{Offline: true})
	require.NoError(t, err)
	defer bundle.Teardown()

	d, _ := bundle.Driver("voltage_source")
	assert.True(t, d.Offline())
}

func TestComposeOfflinePerDevice(t *testing.T) {
	reg, _ := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source", Config: map[string]any{"offline": true}},
	}})

	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": nodes[0]},
		Options{})
	require.NoError(t, err)
	defer bundle.Teardown()

	d, _ := bundle.Driver("voltage_source")
	assert.True(t, d.Offline())
}

func TestComposeOfflineModuleSkipsLiveChassis(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{
			Type: "test.chassis",
			Modules: []topology.RawModule{
				{Slot: "1", Type: "test.module", Config: map[string]any{"offline": true}},
			},
		},
	}})

	module := nodes[0].Children()[0]
	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": module},
		Options{})
	require.NoError(t, err)
	defer bundle.Teardown()

	d, _ := bundle.Driver("voltage_source")
	assert.True(t, d.Offline())
	assert.Equal(t, []string{"build:test.module@1"}, rec.list(),
		"no chassis hardware is opened for a simulated module")
}

func TestComposeOfflineInheritedFromChassis(t *testing.T) {
	reg, _ := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{
			Type:   "test.chassis",
			Config: map[string]any{"offline": true},
			Modules: []topology.RawModule{
				{Slot: "1", Type: "test.module"},
			},
		},
	}})

	module := nodes[0].Children()[0]
	bundle, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": module},
		Options{})
	require.NoError(t, err)
	defer bundle.Teardown()

	d, _ := bundle.Driver("voltage_source")
	assert.True(t, d.Offline(), "module on a simulated chassis is simulated")
}

func TestComposeOfflineUnsupported(t *testing.T) {
	reg, _ := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.hardware"},
	}})

	_, err := New(reg, nil).Compose(context.Background(),
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": nodes[0]},
		Options{Offline: true})
	require.Error(t, err)
	assert.ErrorContains(t, err, "no offline mode")
}

func TestComposeCancelledContext(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(reg, nil).Compose(ctx,
		[]measurement.RequirementSpec{req("voltage_source", "VSource")},
		map[string]*topology.DeviceNode{"voltage_source": nodes[0]},
		Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.list(), "nothing instantiated under a cancelled context")
}

func TestComposeIndependentBundles(t *testing.T) {
	reg, rec := fixture(t)
	nodes := validate(t, reg, topology.Raw{Implementations: []topology.RawEntry{
		{Type: "test.source"},
	}})

	reqs := []measurement.RequirementSpec{req("voltage_source", "VSource")}
	bindings := map[string]*topology.DeviceNode{"voltage_source": nodes[0]}
	c := New(reg, nil)

	first, err := c.Compose(context.Background(), reqs, bindings, Options{})
	require.NoError(t, err)
	second, err := c.Compose(context.Background(), reqs, bindings, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	d1, _ := first.Driver("voltage_source")
	d2, _ := second.Driver("voltage_source")
	assert.NotSame(t, d1, d2, "bundles never share driver instances")

	require.NoError(t, first.Teardown())
	assert.Equal(t, []string{
		"build:test.source",
		"build:test.source",
		"teardown:test.source",
	}, rec.list(), "tearing down one bundle leaves the other alone")
	require.NoError(t, second.Teardown())
}
