package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/schema"
)

func contracts() []capability.Contract {
	return []capability.Contract{
		capability.VSource,
		capability.VSense,
		capability.Counter,
		capability.Chassis,
	}
}

func source(name string, ops ...capability.Operation) Source {
	return Source{
		QualifiedName: name,
		DisplayName:   name,
		Provides:      ops,
		Schema: func() (*schema.Schema, error) {
			return schema.New(), nil
		},
		SupportsOffline: true,
		Factory: func(context.Context, map[string]any, driver.Chassis, string, bool) (driver.Driver, error) {
			return driver.NewSimVSource(name), nil
		},
	}
}

func vsourceOps() []capability.Operation {
	return []capability.Operation{
		capability.OpDisconnect, capability.OpSetVoltage,
		capability.OpTurnOn, capability.OpTurnOff,
	}
}

func TestBuildStructuralMatching(t *testing.T) {
	reg := Build([]Source{
		source("srs.sim928", vsourceOps()...),
		source("srs.sim970", capability.OpDisconnect, capability.OpGetVoltage),
	}, contracts(), nil)

	require.Equal(t, 2, reg.Count())

	d, ok := reg.Get("srs.sim928")
	require.True(t, ok)
	assert.True(t, d.Satisfies(capability.VSource))
	assert.False(t, d.Satisfies(capability.VSense))

	d, ok = reg.Get("srs.sim970")
	require.True(t, ok)
	assert.True(t, d.Satisfies(capability.VSense))
}

func TestBuildSupersetSatisfiesMultipleContracts(t *testing.T) {
	ops := append(vsourceOps(), capability.OpGetVoltage)
	reg := Build([]Source{source("bench.smu", ops...)}, contracts(), nil)

	d, ok := reg.Get("bench.smu")
	require.True(t, ok)
	assert.True(t, d.Satisfies(capability.VSource))
	assert.True(t, d.Satisfies(capability.VSense))

	caps := d.Capabilities()
	require.Len(t, caps, 2)
	// Cached set comes back in stable name order.
	assert.Equal(t, "VSense", caps[0].Name())
	assert.Equal(t, "VSource", caps[1].Name())
}

func TestBuildHonorsDeclaredContracts(t *testing.T) {
	src := source("vendor.custom", capability.OpDisconnect)
	src.Declares = []capability.Contract{capability.Counter}

	reg := Build([]Source{src}, contracts(), nil)

	d, ok := reg.Get("vendor.custom")
	require.True(t, ok)
	assert.True(t, d.Satisfies(capability.Counter))
}

func TestBuildExcludesDuplicateName(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := source("dup.impl", vsourceOps()...)
	b := source("dup.impl", capability.OpDisconnect, capability.OpGetVoltage)

	reg := Build([]Source{a, b}, contracts(), zap.New(core))

	require.Equal(t, 1, reg.Count())
	d, _ := reg.Get("dup.impl")
	assert.True(t, d.Satisfies(capability.VSource), "first registration wins")
	assert.Equal(t, 1, logs.FilterMessageSnippet("duplicate").Len())
}

func TestBuildExcludesUnderivableSchema(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bad := source("broken.impl", vsourceOps()...)
	bad.Schema = func() (*schema.Schema, error) {
		return nil, fmt.Errorf("schema derivation exploded")
	}

	reg := Build([]Source{bad, source("ok.impl", vsourceOps()...)}, contracts(), zap.New(core))

	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get("broken.impl")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessageSnippet("schema").Len())
}

func TestBuildExcludesEmptyCapabilitySet(t *testing.T) {
	reg := Build([]Source{source("inert.impl", capability.OpDisconnect)}, contracts(), nil)
	assert.Equal(t, 0, reg.Count())
}

func TestFindSortedAndOrderIndependent(t *testing.T) {
	a := source("alpha.source", vsourceOps()...)
	b := source("beta.source", vsourceOps()...)
	c := source("gamma.sense", capability.OpDisconnect, capability.OpGetVoltage)

	forward := Build([]Source{a, b, c}, contracts(), nil)
	reversed := Build([]Source{c, b, a}, contracts(), nil)

	names := func(r *Registry) []string {
		var out []string
		for _, d := range r.Find(capability.VSource) {
			out = append(out, d.QualifiedName())
		}
		return out
	}

	want := []string{"alpha.source", "beta.source"}
	assert.Equal(t, want, names(forward))
	assert.Equal(t, want, names(reversed))
}

func TestFindNoMatches(t *testing.T) {
	reg := Build([]Source{source("only.source", vsourceOps()...)}, contracts(), nil)
	assert.Empty(t, reg.Find(capability.Counter))
}

func TestContractRefResolution(t *testing.T) {
	reg := Build(nil, contracts(), nil)

	c, err := reg.Contract(capability.Ref{Name: "VSense"})
	require.NoError(t, err)
	assert.Equal(t, "VSense", c.Name())

	_, err = reg.Contract(capability.Ref{Name: "Spectrometer"})
	assert.ErrorContains(t, err, "unknown capability contract")
}

func TestList(t *testing.T) {
	reg := Build([]Source{
		source("z.impl", vsourceOps()...),
		source("a.impl", vsourceOps()...),
	}, contracts(), nil)
	assert.Equal(t, []string{"a.impl", "z.impl"}, reg.List())
}
