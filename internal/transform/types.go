// Package transform turns HiveTracks records into BEEP inspection payloads
// using a mapping ruleset and the BEEP reference tables of the current run.
package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a BEEP identifier kept in its wire form, either a JSON number or a
// JSON string. The zero ID marshals as null.
type ID struct {
	raw string
}

// StringID returns an ID that marshals as a JSON string.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: string(b)}
}

// NumberID returns an ID that marshals as a JSON number.
func NumberID(n int64) ID {
	return ID{raw: strconv.FormatInt(n, 10)}
}

// IsZero reports whether the ID is missing.
func (id ID) IsZero() bool {
	return id.raw == "" || id.raw == "null" || id.raw == `""`
}

// String returns the identifier as text: unquoted for strings, decimal for numbers.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	if strings.HasPrefix(id.raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(id.raw), &s); err == nil {
			return s
		}
	}
	return id.raw
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return []byte(id.raw), nil
}

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return fmt.Errorf("empty id")
	}
	switch c := raw[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9', raw == "null":
		id.raw = raw
		return nil
	}
	return fmt.Errorf("id must be a string or number, got %s", raw)
}

// NamedID is one entry of a BEEP hive or checklist list.
type NamedID struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Reference holds the BEEP lookup tables for one run: hive name to hive id
// and checklist name to checklist id.
type Reference struct {
	Hives      map[string]ID
	Checklists map[string]ID
}

// NewReference builds the lookup tables, skipping entries without a name or id.
// A repeated name keeps its last id.
func NewReference(hives, checklists []NamedID) Reference {
	return Reference{
		Hives:      index(hives),
		Checklists: index(checklists),
	}
}

func index(entries []NamedID) map[string]ID {
	m := make(map[string]ID, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.ID.IsZero() {
			continue
		}
		m[e.Name] = e.ID
	}
	return m
}

// Payload is the body posted to BEEP's inspection store endpoint.
type Payload struct {
	Date        string         `json:"date"`
	ChecklistID ID             `json:"checklist_id"`
	Reminder    *string        `json:"reminder"`
	Notes       any            `json:"notes"`
	HiveIDs     []ID           `json:"hive_ids"`
	Items       map[string]any `json:"items"`
}

// Result is a payload with its provenance.
type Result struct {
	Payload     Payload
	SourceID    string
	ChecklistID ID
}

// Rejection is a record the engine could not transform.
type Rejection struct {
	SourceID string
	Err      error
}

// Batch is the outcome of transforming a record sequence. Results keep the
// input order.
type Batch struct {
	Results  []Result
	Rejected []Rejection
}

// Payloads returns the payloads of the batch without provenance.
func (b Batch) Payloads() []Payload {
	out := make([]Payload, len(b.Results))
	for i, r := range b.Results {
		out[i] = r.Payload
	}
	return out
}
