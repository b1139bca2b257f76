package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a topology description of the shape
//
//	implementations:
//	  - type: sim900.mainframe
//	    config: {port: /dev/ttyUSB0, gpibAddr: 2}
//	    modules:
//	      3: {type: sim900.sim928, config: {settlingTime: 0.4}}
//
// into the raw structure the validator consumes. Decoding works on the
// document node directly so that duplicate slot keys under modules survive
// to validation instead of being silently collapsed by map decoding.
func Parse(data []byte) (Raw, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Raw{}, fmt.Errorf("decode topology: %w", err)
	}
	if len(doc.Content) == 0 {
		return Raw{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return Raw{}, fmt.Errorf("decode topology: document is not a mapping")
	}

	var raw Raw
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "implementations" {
			continue
		}
		seq := root.Content[i+1]
		if seq.Kind != yaml.SequenceNode {
			return Raw{}, fmt.Errorf("decode topology: implementations is not a sequence")
		}
		for _, item := range seq.Content {
			entry, err := parseEntry(item)
			if err != nil {
				return Raw{}, err
			}
			raw.Implementations = append(raw.Implementations, entry)
		}
	}
	return raw, nil
}

// LoadFile reads and parses a topology file.
func LoadFile(path string) (Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Raw{}, fmt.Errorf("read topology file: %w", err)
	}
	return Parse(data)
}

func parseEntry(node *yaml.Node) (RawEntry, error) {
	if node.Kind != yaml.MappingNode {
		return RawEntry{}, fmt.Errorf("decode topology: implementation entry is not a mapping (line %d)", node.Line)
	}

	var entry RawEntry
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "type":
			entry.Type = value.Value
		case "config":
			if err := value.Decode(&entry.Config); err != nil {
				return RawEntry{}, fmt.Errorf("decode topology: config (line %d): %w", value.Line, err)
			}
		case "modules":
			modules, err := parseModules(value)
			if err != nil {
				return RawEntry{}, err
			}
			entry.Modules = modules
		}
	}
	return entry, nil
}

// parseModules walks the modules mapping pairwise so that a slot key
// appearing twice yields two RawModule entries for the validator to flag.
func parseModules(node *yaml.Node) ([]RawModule, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode topology: modules is not a mapping (line %d)", node.Line)
	}

	var modules []RawModule
	for i := 0; i+1 < len(node.Content); i += 2 {
		slot, body := node.Content[i], node.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("decode topology: module at slot %s is not a mapping (line %d)", slot.Value, body.Line)
		}

		mod := RawModule{Slot: slot.Value}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, value := body.Content[j], body.Content[j+1]
			switch key.Value {
			case "type":
				mod.Type = value.Value
			case "config":
				if err := value.Decode(&mod.Config); err != nil {
					return nil, fmt.Errorf("decode topology: module config (line %d): %w", value.Line, err)
				}
			}
		}
		modules = append(modules, mod)
	}
	return modules, nil
}
