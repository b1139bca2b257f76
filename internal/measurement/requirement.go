// Package measurement declares the measurement catalog: each measurement
// names its instrument-role dependencies explicitly instead of being
// introspected from code, and carries a schema for its own parameters.
package measurement

import (
	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/schema"
)

// RequirementSpec is one dependency a measurement declares: the attribute
// name measurement logic accesses the driver under, and the capability
// contract the bound implementation must satisfy. Cardinality is exactly
// one. Immutable; owned by the measurement descriptor.
type RequirementSpec struct {
	AttributeName string         `json:"attribute_name" yaml:"attribute_name"`
	Contract      capability.Ref `json:"contract" yaml:"contract"`
}

// Descriptor describes one measurement type: its requirements and its own
// parameter schema.
type Descriptor struct {
	Name         string
	Description  string
	Requirements []RequirementSpec
	Params       *schema.Schema
}
