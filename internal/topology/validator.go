// Package topology validates hardware-topology descriptions (chassis,
// modules, slots) against per-implementation configuration schemas,
// producing a tree of validated but not-yet-instantiated device descriptors.
//
// Validation is accumulate-then-report: one invalid entry does not halt
// validation of siblings, so a user fixes every problem in one edit cycle.
package topology

import (
	"fmt"

	"github.com/snspd-lab/labwizard/internal/registry"
)

// Raw is the decoded topology description the validator consumes. YAML
// parsing itself is a primitive (see LoadFile); the validator only walks the
// decoded structure.
type Raw struct {
	Implementations []RawEntry
}

// RawEntry is one top-level instrument entry.
type RawEntry struct {
	Type    string
	Config  map[string]any
	Modules []RawModule
}

// RawModule is one slot-hosted module entry. Slot retains the mapping key it
// was described under, so duplicate slot addresses survive decoding and can
// be reported.
type RawModule struct {
	Slot   string
	Type   string
	Config map[string]any
}

// Validate walks the raw topology top to bottom and returns the validated
// device tree. The returned error list is complete for the pass; the result
// is usable only when the list is empty.
func Validate(raw Raw, reg *registry.Registry) ([]*DeviceNode, *ValidationErrors) {
	errs := NewValidationErrors()
	nodes := make([]*DeviceNode, 0, len(raw.Implementations))

	for i, entry := range raw.Implementations {
		path := fmt.Sprintf("implementations[%d]", i)
		node := validateEntry(entry.Type, entry.Config, path, "", reg, errs)
		if node == nil {
			continue
		}

		if len(entry.Modules) > 0 && !node.impl.IsChassis() {
			errs.Add(KindSchemaViolation, path+".modules",
				fmt.Sprintf("%s does not host modules", entry.Type))
		} else {
			validateModules(entry.Modules, path, node, reg, errs)
		}

		nodes = append(nodes, node)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return nodes, nil
}

// validateEntry validates one instrument or module entry against its
// implementation schema. Returns nil when the implementation is unknown;
// schema violations still yield a node so sibling and child validation can
// proceed and report their own problems.
func validateEntry(implType string, config map[string]any, path, slot string, reg *registry.Registry, errs *ValidationErrors) *DeviceNode {
	if implType == "" {
		errs.Add(KindSchemaViolation, path+".type", "required field is missing")
		return nil
	}

	desc, ok := reg.Get(implType)
	if !ok {
		errs.Add(KindUnknownImplementation, path,
			fmt.Sprintf("implementation %q is not registered", implType))
		return nil
	}

	values, problems := desc.Schema().Validate(config)
	for _, p := range problems {
		errs.Add(KindSchemaViolation, path+"."+p.Field, p.Message)
	}

	return &DeviceNode{
		impl:   desc,
		config: values,
		slot:   slot,
		path:   path,
	}
}

// validateModules validates a chassis entry's hosted modules, recording each
// child on the chassis node keyed by slot address. Duplicate slot addresses
// among siblings are reported once per duplicate occurrence.
func validateModules(modules []RawModule, parentPath string, parent *DeviceNode, reg *registry.Registry, errs *ValidationErrors) {
	seen := make(map[string]struct{}, len(modules))

	for _, mod := range modules {
		path := fmt.Sprintf("%s.modules[%s]", parentPath, mod.Slot)

		if _, dup := seen[mod.Slot]; dup {
			errs.Add(KindDuplicateSlot, parentPath,
				fmt.Sprintf("slot %s assigned to more than one module", mod.Slot))
			continue
		}
		seen[mod.Slot] = struct{}{}

		child := validateEntry(mod.Type, mod.Config, path, mod.Slot, reg, errs)
		if child == nil {
			continue
		}
		child.parent = parent
		parent.children = append(parent.children, child)
	}
}
