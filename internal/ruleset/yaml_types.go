package ruleset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Code is a BEEP item code. Documents may write it as a string or a number.
type Code string

// UnmarshalYAML accepts any scalar and keeps its literal text.
func (c *Code) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: item code must be a scalar", node.Line)
	}
	*c = Code(node.Value)
	return nil
}

// Assignment sets one BEEP item to a value.
type Assignment struct {
	Code  string
	Value any
}

// Assignments is an ordered set of item assignments.
type Assignments []Assignment

// UnmarshalYAML decodes a mapping of item code to value, keeping order.
func (a *Assignments) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of item code to value", node.Line)
	}

	out := make(Assignments, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: item code must be a scalar", key.Line)
		}

		v, err := assignmentValue(val)
		if err != nil {
			return fmt.Errorf("item %s: %w", key.Value, err)
		}
		out = append(out, Assignment{Code: key.Value, Value: v})
	}

	*a = out
	return nil
}

// assignmentValue decodes an item value. Integers too large for 64 bits keep
// their literal text as a json.Number instead of rounding to float64.
func assignmentValue(node *yaml.Node) (any, error) {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!int" {
		if _, err := strconv.ParseInt(node.Value, 0, 64); err != nil {
			if _, err := strconv.ParseUint(node.Value, 0, 64); err != nil && isDecimal(node.Value) {
				return json.Number(node.Value), nil
			}
		}
	}

	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isDecimal(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EnumField maps values of one HiveTracks field to item assignments.
type EnumField struct {
	Field  string
	Values map[string]Assignments
}

// EnumTable is the enums table in declaration order.
type EnumTable []EnumField

// UnmarshalYAML decodes {field: {value: {code: value}}}, keeping field order.
func (e *EnumTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: enums must be a mapping", node.Line)
	}

	out := make(EnumTable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		values := map[string]Assignments{}
		if err := val.Decode(&values); err != nil {
			return fmt.Errorf("enum %s: %w", key.Value, err)
		}
		out = append(out, EnumField{Field: key.Value, Values: values})
	}

	*e = out
	return nil
}

// Phrases accepts either a single string or a list of strings.
type Phrases []string

// UnmarshalYAML implements custom YAML unmarshaling for Phrases.
func (p *Phrases) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*p = Phrases{s}
		return nil

	case yaml.SequenceNode:
		var arr []string
		if err := node.Decode(&arr); err != nil {
			return err
		}
		*p = arr
		return nil

	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}
