// Package record provides the schema-flexible container for HiveTracks records
// and the normalizer that canonicalizes their timestamps.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Well-known HiveTracks field names.
const (
	FieldID            = "id"
	FieldActionDate    = "actionDate"
	FieldType          = "type"
	FieldTypeOther     = "typeOther"
	FieldNotes         = "notes"
	FieldHives         = "hives"
	FieldFoodType      = "feedBeesFoodType"
	FieldFoodTypeOther = "feedBeesFoodTypeOther"
	FieldBroodStages   = "inspectionBroodStages"
)

// Record is one HiveTracks inspection or activity entry. Fields are kept as
// decoded JSON values so the mapping ruleset can reference any of them by name.
// Numbers are json.Number to keep identifiers exact.
type Record map[string]any

// Decode parses a JSON array of records.
func Decode(data []byte) ([]Record, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader parses a JSON array of records from r.
func DecodeReader(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// ID returns the record identifier as text, or "" when it is missing.
func (r Record) ID() string {
	s, _ := Scalar(r[FieldID])
	return s
}

// Value returns the field value when it is present and not null.
func (r Record) Value(field string) (any, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Text returns the scalar text of a field, or "" when absent, null or not a scalar.
func (r Record) Text(field string) string {
	s, _ := Scalar(r[field])
	return s
}

// Labels returns the string members of a set-valued field. A plain string is
// treated as a single label.
func (r Record) Labels(field string) []string {
	switch v := r[field].(type) {
	case string:
		return []string{v}
	case []any:
		labels := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				labels = append(labels, s)
			}
		}
		return labels
	case []string:
		return v
	}
	return nil
}

// HiveNames returns the names of the hives the record refers to, in order.
// Entries without a name are skipped.
func (r Record) HiveNames() []string {
	hives, ok := r[FieldHives].([]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(hives))
	for _, h := range hives {
		obj, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := obj["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Scalar renders a decoded JSON scalar as text. It reports false for null,
// objects and arrays.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	return "", false
}
