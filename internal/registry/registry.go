// Package registry indexes instrument implementations against the capability
// contracts they satisfy.
//
// The registry is built once from explicit registration sources and is
// immutable afterwards: a rebuild (after adding a new implementation)
// produces a fresh value that callers swap in wholesale, never a mutation of
// a registry that outstanding resolve calls may be reading. Tests construct
// isolated registries with synthetic sources the same way.
package registry

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/capability"
)

// Registry holds the implementation descriptors for one build pass.
type Registry struct {
	byName    map[string]*ImplementationDescriptor
	contracts []capability.Contract
}

// Build scans the registration sources once and computes each
// implementation's capability set against the given contracts (structural
// superset test plus explicit declarations). Sources that cannot contribute
// a descriptor — underivable schema, empty capability set, duplicate
// qualified name — are excluded with a logged warning; the build succeeds
// for the remaining library.
func Build(sources []Source, contracts []capability.Contract, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		byName:    make(map[string]*ImplementationDescriptor, len(sources)),
		contracts: contracts,
	}

	for _, src := range sources {
		if _, dup := r.byName[src.QualifiedName]; dup {
			log.Warn("duplicate implementation excluded from registry",
				zap.String("implementation", src.QualifiedName))
			continue
		}

		s, err := src.Schema()
		if err != nil {
			log.Warn("implementation excluded: configuration schema could not be derived",
				zap.String("implementation", src.QualifiedName),
				zap.Error(err))
			continue
		}

		caps := computeCapabilities(src, contracts)
		if len(caps) == 0 {
			// An implementation satisfying no contract can never be matched.
			log.Warn("implementation excluded: satisfies no capability contract",
				zap.String("implementation", src.QualifiedName))
			continue
		}

		r.byName[src.QualifiedName] = &ImplementationDescriptor{
			qualifiedName:   src.QualifiedName,
			displayName:     src.DisplayName,
			description:     src.Description,
			capabilities:    caps,
			schema:          s,
			supportsOffline: src.SupportsOffline,
			chassisSlots:    src.ChassisSlots,
			factory:         src.Factory,
		}
	}

	return r
}

// computeCapabilities merges structural matches with explicit declarations,
// deduplicated, in stable contract order.
func computeCapabilities(src Source, contracts []capability.Contract) []capability.Contract {
	seen := make(map[string]struct{})
	var caps []capability.Contract

	add := func(c capability.Contract) {
		if _, ok := seen[c.Name()]; ok {
			return
		}
		seen[c.Name()] = struct{}{}
		caps = append(caps, c)
	}

	for _, contract := range contracts {
		if contract.SatisfiedBy(src.Provides) {
			add(contract)
		}
	}
	for _, contract := range src.Declares {
		add(contract)
	}

	sort.Slice(caps, func(i, j int) bool { return caps[i].Name() < caps[j].Name() })
	return caps
}

// Find returns every implementation satisfying the contract, sorted by
// qualified name. The registry never ranks or defaults among candidates;
// ties are the caller's to resolve. Registration order does not affect the
// result.
func (r *Registry) Find(contract capability.Contract) []*ImplementationDescriptor {
	var out []*ImplementationDescriptor
	for _, d := range r.byName {
		if d.Satisfies(contract) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].qualifiedName < out[j].qualifiedName
	})
	return out
}

// Get retrieves a descriptor by qualified name.
func (r *Registry) Get(qualifiedName string) (*ImplementationDescriptor, bool) {
	d, ok := r.byName[qualifiedName]
	return d, ok
}

// Contract resolves a contract reference against the contracts this registry
// was built with.
func (r *Registry) Contract(ref capability.Ref) (capability.Contract, error) {
	for _, c := range r.contracts {
		if c.Name() == ref.Name {
			return c, nil
		}
	}
	return capability.Contract{}, fmt.Errorf("unknown capability contract: %s", ref.Name)
}

// List returns all qualified names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered implementations.
func (r *Registry) Count() int {
	return len(r.byName)
}
