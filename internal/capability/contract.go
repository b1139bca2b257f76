// Package capability defines the role contracts that instrument
// implementations satisfy and measurements depend on.
//
// A Contract is a named role ("voltage source") described by the set of
// operations an implementation must provide. Satisfaction is structural: an
// implementation satisfies a contract when its provided operation set is a
// superset of the contract's required set. Implementations may additionally
// declare contracts explicitly for disambiguation; the registry honors both.
package capability

import (
	"sort"
	"strings"
)

// Operation identifies a single operation in a contract's required set,
// e.g. "set_voltage" or "turn_on".
type Operation string

// Contract is a named role defined by a required operation set.
// Contracts are immutable; define them once at library-load time.
type Contract struct {
	name       string
	operations map[Operation]struct{}
}

// NewContract creates a contract with the given name and required operations.
func NewContract(name string, ops ...Operation) Contract {
	set := make(map[Operation]struct{}, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return Contract{name: name, operations: set}
}

// Name returns the contract's role name.
func (c Contract) Name() string {
	return c.name
}

// Operations returns the required operation set in sorted order.
func (c Contract) Operations() []Operation {
	ops := make([]Operation, 0, len(c.operations))
	for op := range c.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// SatisfiedBy reports whether the provided operation set is a superset of
// this contract's required set.
func (c Contract) SatisfiedBy(provided []Operation) bool {
	if len(provided) < len(c.operations) {
		return false
	}
	have := make(map[Operation]struct{}, len(provided))
	for _, op := range provided {
		have[op] = struct{}{}
	}
	for op := range c.operations {
		if _, ok := have[op]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether two contracts name the same role.
// Contract identity is by name; operation sets for one role never diverge.
func (c Contract) Equal(other Contract) bool {
	return c.name == other.name
}

// String returns a readable form, e.g. "VSource{set_voltage, turn_off, turn_on}".
func (c Contract) String() string {
	ops := c.Operations()
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = string(op)
	}
	return c.name + "{" + strings.Join(parts, ", ") + "}"
}

// Ref names a contract without carrying its operation set. Requirement lists
// and saved bindings reference contracts this way; the registry resolves the
// name back to the full contract.
type Ref struct {
	Name string `json:"name" yaml:"name"`
}

// Ref returns a reference to this contract.
func (c Contract) Ref() Ref {
	return Ref{Name: c.name}
}
