package registry

import (
	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/schema"
)

// Source is what an instrument implementation registers with the library.
// Every implementation module contributes its sources at a well-defined
// initialization point (see internal/instruments); the registry build pass
// turns sources into descriptors. This replaces the runtime class
// introspection of earlier tooling with an explicit registration pass.
type Source struct {
	// QualifiedName uniquely identifies the implementation,
	// e.g. "sim900.sim928".
	QualifiedName string

	// DisplayName is the human-facing name shown by selection UIs.
	DisplayName string

	// Description is a one-line summary for selection UIs.
	Description string

	// Provides is the implementation's provided operation set, used for
	// structural contract matching.
	Provides []capability.Operation

	// Declares lists contracts the implementation claims explicitly, for
	// disambiguation beyond structural matching. Declared contracts are
	// honored even if the structural test would not find them.
	Declares []capability.Contract

	// Schema derives the implementation's configuration schema. A source
	// whose schema cannot be derived is excluded from the registry with a
	// logged warning; the build still succeeds for the rest of the library.
	Schema func() (*schema.Schema, error)

	// SupportsOffline reports whether the implementation can construct a
	// simulated driver.
	SupportsOffline bool

	// ChassisSlots is non-zero for chassis-capable implementations and
	// bounds the number of hosted modules. Zero means not a chassis.
	ChassisSlots int

	// Factory constructs the driver at composition time.
	Factory driver.Factory
}

// ImplementationDescriptor identifies one instrument implementation after
// the registry build: its capability set is computed once and cached here,
// never re-derived on resolve calls. Descriptors are immutable and owned
// exclusively by the registry.
type ImplementationDescriptor struct {
	qualifiedName   string
	displayName     string
	description     string
	capabilities    []capability.Contract
	schema          *schema.Schema
	supportsOffline bool
	chassisSlots    int
	factory         driver.Factory
}

// QualifiedName returns the implementation's unique qualified name.
func (d *ImplementationDescriptor) QualifiedName() string { return d.qualifiedName }

// DisplayName returns the human-facing name.
func (d *ImplementationDescriptor) DisplayName() string { return d.displayName }

// Description returns the one-line summary.
func (d *ImplementationDescriptor) Description() string { return d.description }

// Capabilities returns the contracts this implementation satisfies.
// The returned slice is a copy; the cached set never changes after build.
func (d *ImplementationDescriptor) Capabilities() []capability.Contract {
	out := make([]capability.Contract, len(d.capabilities))
	copy(out, d.capabilities)
	return out
}

// Satisfies reports whether the implementation satisfies the contract.
func (d *ImplementationDescriptor) Satisfies(contract capability.Contract) bool {
	for _, c := range d.capabilities {
		if c.Equal(contract) {
			return true
		}
	}
	return false
}

// Schema returns the implementation's configuration schema.
func (d *ImplementationDescriptor) Schema() *schema.Schema { return d.schema }

// SupportsOffline reports whether a simulated driver is available.
func (d *ImplementationDescriptor) SupportsOffline() bool { return d.supportsOffline }

// IsChassis reports whether the implementation hosts slot-addressed modules.
func (d *ImplementationDescriptor) IsChassis() bool { return d.chassisSlots > 0 }

// ChassisSlots returns the slot capacity (zero for non-chassis types).
func (d *ImplementationDescriptor) ChassisSlots() int { return d.chassisSlots }

// Factory returns the driver factory used by the composer.
func (d *ImplementationDescriptor) Factory() driver.Factory { return d.factory }
