// Package schema defines configuration schemas for instrument
// implementations: named fields with types, required/optional flags, and
// defaults. The topology validator checks raw configuration mappings against
// these schemas with type coercion and default application.
package schema

import (
	"fmt"
	"sort"
)

// FieldType represents the primitive type of a configuration field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeBool
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Field describes a single configuration field.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any // applied when the field is absent and not required
}

// Schema is the configuration schema for one implementation.
type Schema struct {
	fields map[string]Field
}

// New builds a schema from field definitions. Duplicate field names are a
// programming error and panic at library-load time.
func New(fields ...Field) *Schema {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		if _, exists := m[f.Name]; exists {
			panic(fmt.Sprintf("schema: duplicate field %q", f.Name))
		}
		m[f.Name] = f
	}
	return &Schema{fields: m}
}

// Fields returns the field definitions sorted by name.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Problem describes one schema violation found while validating a raw
// configuration mapping. Field is the offending field name; the caller
// prefixes it with the topology path for user-facing diagnostics.
type Problem struct {
	Field   string
	Message string
}

// Validate checks raw against the schema and returns the coerced
// configuration values alongside every problem found. Validation never stops
// at the first problem. Unrecognized fields, missing required fields, and
// values that cannot be coerced to the declared type are each reported.
func (s *Schema) Validate(raw map[string]any) (map[string]any, []Problem) {
	values := make(map[string]any, len(s.fields))
	var problems []Problem

	// Deterministic problem order for stable diagnostics.
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	for _, name := range rawKeys {
		field, known := s.fields[name]
		if !known {
			problems = append(problems, Problem{Field: name, Message: "unrecognized field"})
			continue
		}
		coerced, err := coerce(raw[name], field.Type)
		if err != nil {
			problems = append(problems, Problem{
				Field:   name,
				Message: fmt.Sprintf("expected %s, got %v (%T)", field.Type, raw[name], raw[name]),
			})
			continue
		}
		values[name] = coerced
	}

	for _, field := range s.Fields() {
		if _, present := values[field.Name]; present {
			continue
		}
		if _, attempted := raw[field.Name]; attempted {
			continue // coercion already reported
		}
		if field.Required {
			problems = append(problems, Problem{Field: field.Name, Message: "required field is missing"})
			continue
		}
		if field.Default != nil {
			values[field.Name] = field.Default
		}
	}

	return values, problems
}

// coerce converts a decoded YAML/JSON value to the declared field type.
// YAML decoders yield int for whole numbers and float64 otherwise, so float
// fields accept ints; the reverse narrows and is rejected.
func coerce(value any, t FieldType) (any, error) {
	switch t {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", value, t)
}
