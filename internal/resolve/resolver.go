// Package resolve matches measurement requirements against the capability
// registry, producing the candidate-implementation set for each requirement.
//
// Resolution is a pure function of the registry and the requirement list:
// identical inputs yield identical output, and candidates come back in
// stable qualified-name order so selection UIs stay reproducible.
package resolve

import (
	"fmt"

	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
)

// Candidates maps a requirement's attribute name to the implementations
// satisfying its contract. An empty slice is valid data — "no compatible
// instrument" — not an error: the selection layer reacts to it (e.g. by
// prompting for a new implementation).
type Candidates map[string][]*registry.ImplementationDescriptor

// Resolve queries the registry for each requirement. It fails only on a
// requirement referencing a contract the registry was not built with; an
// empty candidate set never raises.
func Resolve(requirements []measurement.RequirementSpec, reg *registry.Registry) (Candidates, error) {
	out := make(Candidates, len(requirements))
	for _, req := range requirements {
		contract, err := reg.Contract(req.Contract)
		if err != nil {
			return nil, fmt.Errorf("requirement %q: %w", req.AttributeName, err)
		}
		out[req.AttributeName] = reg.Find(contract)
	}
	return out, nil
}

// Unfilled returns the attribute names whose candidate set is empty, in the
// order their requirements were declared.
func Unfilled(requirements []measurement.RequirementSpec, candidates Candidates) []string {
	var out []string
	for _, req := range requirements {
		if len(candidates[req.AttributeName]) == 0 {
			out = append(out, req.AttributeName)
		}
	}
	return out
}
