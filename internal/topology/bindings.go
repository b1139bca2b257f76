package topology

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bindings maps measurement attribute names to device paths inside a
// validated topology. The setup wizard writes this map next to the topology
// file; run loads it as the default binding source. Paths are re-resolved
// and contracts re-checked on every load, so a file that has drifted from
// the topology or the registry fails loudly instead of silently rebinding.
type Bindings map[string]string

type bindingsDoc struct {
	Bindings map[string]string `yaml:"bindings"`
}

// BindingsFileFor returns the bindings file path conventionally paired with
// a topology file: topology.yml -> topology.bindings.yml.
func BindingsFileFor(topologyPath string) string {
	ext := filepath.Ext(topologyPath)
	return strings.TrimSuffix(topologyPath, ext) + ".bindings" + ext
}

// EncodeBindings renders the attribute-to-path map as a YAML document.
func EncodeBindings(b Bindings) ([]byte, error) {
	return yaml.Marshal(bindingsDoc{Bindings: b})
}

// ParseBindings decodes a bindings document. An empty document yields an
// empty map.
func ParseBindings(data []byte) (Bindings, error) {
	var doc bindingsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}
	if doc.Bindings == nil {
		return Bindings{}, nil
	}
	return doc.Bindings, nil
}

// LoadBindingsFile reads and parses a bindings file. A missing file is not
// an error; it yields an empty map so callers fall back to explicit flags
// and auto-binding.
func LoadBindingsFile(path string) (Bindings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Bindings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bindings file: %w", err)
	}
	return ParseBindings(data)
}

// Resolve maps each saved binding onto its device node in the validated
// topology. A path with no device behind it means the topology changed
// since the file was written.
func (b Bindings) Resolve(nodes []*DeviceNode) (map[string]*DeviceNode, error) {
	out := make(map[string]*DeviceNode, len(b))
	for attr, path := range b {
		node, found := FindByPath(nodes, path)
		if !found {
			return nil, fmt.Errorf("saved binding %s: no device at path %s", attr, path)
		}
		out[attr] = node
	}
	return out, nil
}
