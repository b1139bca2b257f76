package topology

import (
	"fmt"

	"github.com/snspd-lab/labwizard/internal/registry"
)

// DeviceNode is a node in the validated topology tree: an implementation
// reference, its validated configuration values, and — for devices hosted
// inside a chassis — the slot address unique among siblings. Children exist
// only on chassis nodes; a leaf node has none. Nodes are created by the
// validator and mutated only to attach an attribute binding; they are not
// persisted across composition passes.
type DeviceNode struct {
	impl      *registry.ImplementationDescriptor
	config    map[string]any
	slot      string
	path      string
	parent    *DeviceNode
	children  []*DeviceNode
	attribute string
}

// Implementation returns the descriptor this node was validated against.
func (n *DeviceNode) Implementation() *registry.ImplementationDescriptor { return n.impl }

// Config returns the validated configuration values with defaults applied.
func (n *DeviceNode) Config() map[string]any { return n.config }

// Slot returns the slot address within the parent chassis, or "" for a
// top-level instrument.
func (n *DeviceNode) Slot() string { return n.slot }

// Path returns the structural path of this node in the topology
// description, e.g. "implementations[0].modules[3]".
func (n *DeviceNode) Path() string { return n.path }

// Parent returns the hosting chassis node, or nil for a top-level
// instrument.
func (n *DeviceNode) Parent() *DeviceNode { return n.parent }

// Children returns the hosted modules of a chassis node.
func (n *DeviceNode) Children() []*DeviceNode { return n.children }

// IsChassis reports whether this node hosts slot-addressed modules.
func (n *DeviceNode) IsChassis() bool { return n.impl.IsChassis() }

// Bind attaches an attribute name to this node. A node carries at most one
// binding per composition pass; sharing one device across two requirements
// is not supported.
func (n *DeviceNode) Bind(attribute string) error {
	if n.attribute != "" && n.attribute != attribute {
		return fmt.Errorf("device %s already bound to attribute %q", n.path, n.attribute)
	}
	n.attribute = attribute
	return nil
}

// Attribute returns the bound attribute name, or "" if unbound.
func (n *DeviceNode) Attribute() string { return n.attribute }

// ClearBinding detaches the attribute binding, returning the node to its
// post-validation state so the tree can back a fresh composition pass.
func (n *DeviceNode) ClearBinding() { n.attribute = "" }

// Walk visits this node and all descendants depth-first.
func (n *DeviceNode) Walk(visit func(*DeviceNode)) {
	visit(n)
	for _, child := range n.children {
		child.Walk(visit)
	}
}

// FindByPath searches a node list for the node with the given structural
// path. Saved binding files address devices this way.
func FindByPath(nodes []*DeviceNode, path string) (*DeviceNode, bool) {
	var found *DeviceNode
	for _, root := range nodes {
		root.Walk(func(n *DeviceNode) {
			if n.path == path {
				found = n
			}
		})
	}
	if found == nil {
		return nil, false
	}
	return found, true
}
