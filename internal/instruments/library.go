// Package instruments is the registration point for the instrument library.
// Each implementation family contributes its sources here explicitly; there
// is no runtime discovery. Adding an implementation means adding it to a
// family's Sources() and rebuilding the registry.
package instruments

import (
	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/instruments/dbay"
	"github.com/snspd-lab/labwizard/internal/instruments/dummy"
	"github.com/snspd-lab/labwizard/internal/instruments/keysight"
	"github.com/snspd-lab/labwizard/internal/instruments/sim900"
	"github.com/snspd-lab/labwizard/internal/registry"
)

// Library returns every registration source the instrument library ships.
func Library() []registry.Source {
	var sources []registry.Source
	sources = append(sources, sim900.Sources()...)
	sources = append(sources, dbay.Sources()...)
	sources = append(sources, keysight.Sources()...)
	sources = append(sources, dummy.Sources()...)
	return sources
}

// Contracts returns the standard capability contracts the library is indexed
// against.
func Contracts() []capability.Contract {
	return []capability.Contract{
		capability.VSource,
		capability.VSense,
		capability.Counter,
		capability.Chassis,
	}
}

// BuildRegistry builds the default registry from the shipped library.
func BuildRegistry(log *zap.Logger) *registry.Registry {
	return registry.Build(Library(), Contracts(), log)
}
