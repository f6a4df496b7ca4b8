// Package ruleset loads the field-mapping ruleset that drives the
// HiveTracks to BEEP transformation.
//
// A ruleset has four independent tables plus a checklist fallback name:
//
//	field_map:            {beep_item_code: hivetracks_field}
//	enums:                {hivetracks_field: {hivetracks_value: {beep_item_code: value}}}
//	stages_flags:         {field: inspectionBroodStages, flags: {label: beep_item_code}}
//	feeding_rules:        [{if_type | if_other_contains | if_other_contains_any, set: {...}}]
//	checklist_fallback:   TBD
//
// Documents may be JSON or YAML. Declaration order is kept wherever two
// entries can write the same item code (enum fields, feeding rules).
package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultStagesField is the HiveTracks field holding brood stage labels.
	DefaultStagesField = "inspectionBroodStages"
	// DefaultChecklistFallback names the BEEP checklist used for unmapped types.
	DefaultChecklistFallback = "TBD"
)

var (
	// ErrConfigNotFound is returned when the ruleset resource cannot be read.
	ErrConfigNotFound = errors.New("mapping ruleset not found")
	// ErrConfigMalformed is returned when the ruleset cannot be parsed.
	ErrConfigMalformed = errors.New("mapping ruleset malformed")
)

// Ruleset is the parsed mapping configuration. It is read-only once loaded.
type Ruleset struct {
	FieldMap          map[string]string `yaml:"field_map"`
	Enums             EnumTable         `yaml:"enums"`
	StagesFlags       StagesFlags       `yaml:"stages_flags"`
	FeedingRules      []FeedingRule     `yaml:"feeding_rules"`
	ChecklistFallback string            `yaml:"checklist_fallback"`
}

// StagesFlags turns membership of a label in a set-valued field into a
// boolean item.
type StagesFlags struct {
	Field string          `yaml:"field"`
	Flags map[string]Code `yaml:"flags"`
}

// FeedingRule merges Set into the items when any of its conditions hold.
type FeedingRule struct {
	IfType             *string     `yaml:"if_type"`
	IfOtherContains    *string     `yaml:"if_other_contains"`
	IfOtherContainsAny Phrases     `yaml:"if_other_contains_any"`
	Set                Assignments `yaml:"set"`
}

// Matches reports whether the rule applies to a record's food type and
// free-text "other" food type. hasType is false when the food type is null.
func (r FeedingRule) Matches(foodType string, hasType bool, other string) bool {
	if r.IfType != nil && hasType && foodType == *r.IfType {
		return true
	}
	for _, phrase := range r.IfOtherContainsAny {
		if strings.Contains(other, phrase) {
			return true
		}
	}
	if r.IfOtherContains != nil && strings.Contains(other, *r.IfOtherContains) {
		return true
	}
	return false
}

// Load reads and parses the ruleset at path.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}

	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse parses a JSON or YAML ruleset document and applies defaults. A
// document starting with '{' is read as JSON; if it is not valid JSON it is
// tried as a YAML flow mapping.
func Parse(data []byte) (*Ruleset, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMalformed, err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrConfigMalformed)
	}
	if root := doc.Content[0]; root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping (line %d)", ErrConfigMalformed, root.Line)
	}

	var rs Ruleset
	if err := doc.Decode(&rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMalformed, err)
	}

	applyDefaults(&rs)

	return &rs, nil
}

func parseDocument(data []byte) (*yaml.Node, error) {
	if isJSON(data) {
		doc, err := jsonDocument(data)
		if err == nil {
			return doc, nil
		}
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return nil, err
		}
		var flow yaml.Node
		if yaml.Unmarshal(data, &flow) != nil {
			return nil, err
		}
		return &flow, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// applyDefaults fills in the tables a document left out.
func applyDefaults(rs *Ruleset) {
	if rs.FieldMap == nil {
		rs.FieldMap = map[string]string{}
	}
	if rs.StagesFlags.Field == "" {
		rs.StagesFlags.Field = DefaultStagesField
	}
	if rs.StagesFlags.Flags == nil {
		rs.StagesFlags.Flags = map[string]Code{}
	}
	if rs.FeedingRules == nil {
		rs.FeedingRules = []FeedingRule{}
	}
	if rs.ChecklistFallback == "" {
		rs.ChecklistFallback = DefaultChecklistFallback
	}
}
