package compose

import (
	"sync"

	"github.com/google/uuid"

	"github.com/snspd-lab/labwizard/internal/driver"
)

// Bundle is the fully-instantiated resource set handed to measurement
// execution: one live driver per declared attribute name, plus the
// measurement's own parameter values. Every driver in a bundle — including
// supporting chassis drivers that back slot-hosted modules — is owned
// exclusively by that bundle; live hardware handles are never shared across
// bundles.
type Bundle struct {
	id      string
	drivers map[string]driver.Driver
	// teardownOrder holds every driver built for the bundle, supporting
	// chassis included, in instantiation order.
	teardownOrder []driver.Driver
	params        map[string]any

	mu       sync.Mutex
	released bool
}

// ID returns the bundle's unique identity.
func (b *Bundle) ID() string { return b.id }

// Driver returns the driver bound to an attribute name.
func (b *Bundle) Driver(attribute string) (driver.Driver, bool) {
	d, ok := b.drivers[attribute]
	return d, ok
}

// Drivers returns the attribute-to-driver mapping. The map is a copy; the
// drivers are live.
func (b *Bundle) Drivers() map[string]driver.Driver {
	out := make(map[string]driver.Driver, len(b.drivers))
	for k, v := range b.drivers {
		out[k] = v
	}
	return out
}

// Params returns the measurement's own parameter values.
func (b *Bundle) Params() map[string]any { return b.params }

// Teardown releases every driver the bundle owns in reverse instantiation
// order. Safe to call more than once; the first error is reported but
// teardown continues through the remaining drivers.
func (b *Bundle) Teardown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	return teardownReverse(b.teardownOrder)
}

// teardownReverse tears drivers down last-built-first, collecting the first
// failure without stopping.
func teardownReverse(built []driver.Driver) error {
	var first error
	for i := len(built) - 1; i >= 0; i-- {
		if err := built[i].Teardown(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newBundle(drivers map[string]driver.Driver, order []driver.Driver, params map[string]any) *Bundle {
	return &Bundle{
		id:            uuid.NewString(),
		drivers:       drivers,
		teardownOrder: order,
		params:        params,
	}
}
