// Package compose binds topology-derived device descriptors to measurement
// requirements and instantiates the drivers into an atomic resource bundle.
//
// Composition is single-threaded and synchronous; callers serialize
// composition attempts against a given hardware description. If any
// instantiation fails — or the context is cancelled mid-flight — every
// driver already built in the pass is torn down in reverse order before the
// error returns.
package compose

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/topology"
)

// Options configures one composition pass.
type Options struct {
	// Offline forces simulated drivers for every device in the pass.
	// Individual devices may also opt in via an "offline: true" entry in
	// their validated configuration.
	Offline bool

	// Params carries the measurement's own validated parameter values into
	// the bundle.
	Params map[string]any

	// Log receives composition progress; nil disables logging.
	Log *zap.Logger
}

// Composer builds resource bundles against one registry.
type Composer struct {
	reg *registry.Registry
	log *zap.Logger
}

// New creates a composer for the given registry.
func New(reg *registry.Registry, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{reg: reg, log: log}
}

// Compose validates the bindings against the requirements and instantiates
// one driver per attribute name. Chassis drivers are built before the
// modules they host; siblings carry no ordering dependency. Each call
// produces drivers owned exclusively by the returned bundle — composing the
// same topology twice yields two independent bundles sharing nothing.
func (c *Composer) Compose(ctx context.Context, reqs []measurement.RequirementSpec, bindings map[string]*topology.DeviceNode, opts Options) (*Bundle, error) {
	if err := c.checkBindings(reqs, bindings); err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = c.log
	}

	var built []driver.Driver
	// Chassis drivers instantiated for this pass, keyed by topology path.
	// Scoped to the pass: the next Compose call builds fresh ones.
	chassis := make(map[string]driver.Chassis)
	drivers := make(map[string]driver.Driver, len(reqs))

	fail := func(attr, path string, err error) (*Bundle, error) {
		log.Warn("composition failed, tearing down partial bundle",
			zap.String("attribute", attr),
			zap.Int("instantiated", len(built)),
			zap.Error(err))
		if terr := teardownReverse(built); terr != nil {
			log.Warn("teardown error during composition rollback", zap.Error(terr))
		}
		return nil, &InstantiationError{Attribute: attr, Path: path, Err: err}
	}

	for _, req := range reqs {
		node := bindings[req.AttributeName]

		if err := ctx.Err(); err != nil {
			return fail(req.AttributeName, node.Path(), err)
		}

		d, err := c.instantiate(ctx, node, opts, chassis, &built)
		if err != nil {
			return fail(req.AttributeName, node.Path(), err)
		}
		drivers[req.AttributeName] = d

		log.Debug("driver instantiated",
			zap.String("attribute", req.AttributeName),
			zap.String("implementation", node.Implementation().QualifiedName()),
			zap.Bool("offline", d.Offline()))
	}

	return newBundle(drivers, built, opts.Params), nil
}

// checkBindings enforces the composition preconditions: every requirement
// has exactly one binding, the bound implementation satisfies the
// requirement's contract, and no two requirements share a device.
func (c *Composer) checkBindings(reqs []measurement.RequirementSpec, bindings map[string]*topology.DeviceNode) error {
	byNode := make(map[*topology.DeviceNode]string, len(reqs))

	for _, req := range reqs {
		node, ok := bindings[req.AttributeName]
		if !ok || node == nil {
			return &BindingMismatchError{
				Attribute: req.AttributeName,
				Reason:    "no device bound to requirement",
			}
		}

		contract, err := c.reg.Contract(req.Contract)
		if err != nil {
			return &BindingMismatchError{Attribute: req.AttributeName, Reason: err.Error()}
		}
		if !node.Implementation().Satisfies(contract) {
			return &BindingMismatchError{
				Attribute: req.AttributeName,
				Reason: fmt.Sprintf("implementation %s does not satisfy contract %s",
					node.Implementation().QualifiedName(), contract.Name()),
			}
		}

		if prev, used := byNode[node]; used {
			return &BindingMismatchError{
				Attribute: req.AttributeName,
				Reason:    fmt.Sprintf("device %s already bound to attribute %q", node.Path(), prev),
			}
		}
		byNode[node] = req.AttributeName

		node.ClearBinding()
		if err := node.Bind(req.AttributeName); err != nil {
			return &BindingMismatchError{Attribute: req.AttributeName, Reason: err.Error()}
		}
	}
	return nil
}

// instantiate builds the driver for a node, building its hosting chassis
// first when needed. Every driver built is appended to the pass's teardown
// stack immediately, so a later failure rolls it back.
func (c *Composer) instantiate(ctx context.Context, node *topology.DeviceNode, opts Options, chassisByPath map[string]driver.Chassis, built *[]driver.Driver) (driver.Driver, error) {
	offline := c.nodeOffline(node, opts)

	desc := node.Implementation()
	if offline && !desc.SupportsOffline() {
		return nil, fmt.Errorf("implementation %s has no offline mode", desc.QualifiedName())
	}

	// A simulated module never touches its chassis transport, so no parent
	// is built for it.
	var parent driver.Chassis
	if p := node.Parent(); p != nil && !offline {
		var err error
		parent, err = c.chassisFor(ctx, p, opts, chassisByPath, built)
		if err != nil {
			return nil, err
		}
	}

	d, err := desc.Factory()(ctx, node.Config(), parent, node.Slot(), offline)
	if err != nil {
		return nil, err
	}
	*built = append(*built, d)
	return d, nil
}

// chassisFor returns the pass-scoped chassis driver for a node, building it
// on first use.
func (c *Composer) chassisFor(ctx context.Context, node *topology.DeviceNode, opts Options, chassisByPath map[string]driver.Chassis, built *[]driver.Driver) (driver.Chassis, error) {
	if ch, ok := chassisByPath[node.Path()]; ok {
		return ch, nil
	}

	d, err := c.instantiate(ctx, node, opts, chassisByPath, built)
	if err != nil {
		return nil, fmt.Errorf("chassis %s: %w", node.Implementation().QualifiedName(), err)
	}
	ch, ok := d.(driver.Chassis)
	if !ok {
		return nil, fmt.Errorf("implementation %s is not a chassis driver", node.Implementation().QualifiedName())
	}
	chassisByPath[node.Path()] = ch
	return ch, nil
}

// nodeOffline resolves the effective offline flag for a node: a global
// offline pass, the node's own configuration, or an offline ancestor (a
// module on a simulated chassis cannot talk to real hardware).
func (c *Composer) nodeOffline(node *topology.DeviceNode, opts Options) bool {
	if opts.Offline {
		return true
	}
	for n := node; n != nil; n = n.Parent() {
		if v, ok := n.Config()["offline"].(bool); ok && v {
			return true
		}
	}
	return false
}
