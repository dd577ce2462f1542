// Package graph YAML schema loading.
//
// Schemas can be declared in YAML with field names mirroring the
// descriptor structs:
//
//	types:
//	  - name: User
//	    properties: [{name: name}]
//	    edges:
//	      - name: posts
//	        target: Post
//	        reverse: author
//	        indexes:
//	          - name: by_created
//	            fields: [{field: created_at, dir: desc}]
//	    rollups:
//	      - name: post_count
//	        kind: property
//	        edge: posts
//	        compute: count
package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a YAML scalar into the tagged value union.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!null":
		*v = Nil()
		return nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	case "!!str":
		*v = String(node.Value)
		return nil
	}
	return fmt.Errorf("%w: unsupported YAML value %q (%s)", ErrInvalidSchema, node.Value, node.Tag)
}

// MarshalYAML renders the value back as a plain scalar.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.num, nil
	case KindString:
		return v.str, nil
	default:
		return nil, nil
	}
}

// ParseSchemaYAML decodes a YAML schema document. The result still goes
// through full catalog validation in New.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &s, nil
}

// LoadSchemaFile reads and decodes a YAML schema file.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return ParseSchemaYAML(data)
}
