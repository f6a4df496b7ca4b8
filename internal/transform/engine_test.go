package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnswift/hivesync/internal/record"
	"github.com/johnswift/hivesync/internal/ruleset"
)

func mustRuleset(t *testing.T, doc string) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Parse([]byte(doc))
	require.NoError(t, err)
	return rs
}

func mustRecords(t *testing.T, doc string) []record.Record {
	t.Helper()
	records, err := record.Decode([]byte(doc))
	require.NoError(t, err)
	return records
}

func testReference() Reference {
	return NewReference(
		[]NamedID{{ID: StringID("h1"), Name: "A"}, {ID: NumberID(7), Name: "B"}},
		[]NamedID{{ID: StringID("c1"), Name: "Inspection"}, {ID: StringID("c9"), Name: "TBD"}},
	)
}

func TestTransformRuleOrder(t *testing.T) {
	rs := mustRuleset(t, `{
		"field_map": {"X": "notes", "Y": "strength"},
		"enums": {
			"temper": {"calm": {"X": "enum-temper", "Z": 1}},
			"strength": {"5": {"Z": 2}}
		},
		"stages_flags": {"flags": {"eggs": "Z", "larvae": "W"}},
		"feeding_rules": [
			{"if_type": "syrup", "set": {"W": "first", "V": "syrup"}},
			{"if_other_contains": "fondant", "set": {"W": "second"}},
			{"if_other_contains_any": ["none-such"], "set": {"W": "never"}}
		]
	}`)

	records := mustRecords(t, `[{
		"id": 1,
		"actionDate": "2024-05-11T12:34:56.789012Z",
		"type": "Inspection",
		"notes": "calm colony",
		"strength": 5,
		"temper": "calm",
		"inspectionBroodStages": ["eggs", "larvae"],
		"feedBeesFoodType": "syrup",
		"feedBeesFoodTypeOther": "some fondant too"
	}]`)

	batch := Transform(records, testReference(), rs)
	require.Empty(t, batch.Rejected)
	require.Len(t, batch.Results, 1)

	items := batch.Results[0].Payload.Items
	assert.Equal(t, "enum-temper", items["X"], "enums overwrite field_map")
	assert.Equal(t, json.Number("5"), items["Y"])
	assert.Equal(t, true, items["Z"], "stages_flags overwrite enums")
	assert.Equal(t, "second", items["W"], "last matching feeding rule wins")
	assert.Equal(t, "syrup", items["V"])
}

func TestTransformEnumDeclarationOrder(t *testing.T) {
	rs := mustRuleset(t, `{"enums": {
		"b": {"yes": {"K": "from-b"}},
		"a": {"yes": {"K": "from-a"}}
	}}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z", "a": "yes", "b": "yes"}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "from-a", batch.Results[0].Payload.Items["K"])
}

func TestTransformFieldMapSkipsNull(t *testing.T) {
	rs := mustRuleset(t, `{"field_map": {"N": "notes", "M": "missing"}}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z", "notes": null}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.Empty(t, batch.Results[0].Payload.Items)
	assert.NotNil(t, batch.Results[0].Payload.Items)
}

func TestTransformDropsUnknownHives(t *testing.T) {
	rs := mustRuleset(t, `{}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z", "type": "Inspection",
		"hives": [{"name": "A"}, {"name": "Unknown"}]}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, []ID{StringID("h1")}, batch.Results[0].Payload.HiveIDs)
}

func TestTransformChecklistFallback(t *testing.T) {
	rs := mustRuleset(t, `{"checklist_fallback": "TBD"}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z", "type": "Foo", "typeOther": "swarm"}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.Equal(t, StringID("c9"), res.ChecklistID)
	assert.Equal(t, StringID("c9"), res.Payload.ChecklistID)
	require.NotNil(t, res.Payload.Reminder)
	assert.Contains(t, *res.Payload.Reminder, "Foo")
	assert.Equal(t, "Missing: Foo/swarm", *res.Payload.Reminder)
}

func TestTransformChecklistMissingEverywhere(t *testing.T) {
	rs := mustRuleset(t, `{"checklist_fallback": "Nope"}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z"}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.True(t, res.ChecklistID.IsZero())
	require.NotNil(t, res.Payload.Reminder)
	assert.Equal(t, "Missing: /", *res.Payload.Reminder)
}

func TestTransformKnownChecklistHasNoReminder(t *testing.T) {
	rs := mustRuleset(t, `{}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z", "type": "Inspection"}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, StringID("c1"), batch.Results[0].ChecklistID)
	assert.Nil(t, batch.Results[0].Payload.Reminder)
}

func TestTransformRejectsMalformedDateAndKeepsOrder(t *testing.T) {
	rs := mustRuleset(t, `{}`)
	records := mustRecords(t, `[
		{"id": "a", "actionDate": "2024-01-01T00:00:00.0Z"},
		{"id": "b", "actionDate": "yesterday"},
		{"id": "c", "actionDate": "2024-01-03T00:00:00.0Z"}
	]`)

	batch := Transform(records, testReference(), rs)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, "a", batch.Results[0].SourceID)
	assert.Equal(t, "c", batch.Results[1].SourceID)

	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, "b", batch.Rejected[0].SourceID)
	assert.ErrorIs(t, batch.Rejected[0].Err, record.ErrMalformedTimestamp)
}

func TestTransformNeverEmitsLegacyRecordIDItem(t *testing.T) {
	rs := mustRuleset(t, `{"field_map": {"1499": "id"}}`)
	records := mustRecords(t, `[{"id": "r", "actionDate": "2024-01-01T00:00:00.0Z"}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.NotContains(t, batch.Results[0].Payload.Items, LegacyRecordIDCode)
}

func TestPayloadJSON(t *testing.T) {
	rs := mustRuleset(t, `{"field_map": {"10": "notes"}}`)
	records := mustRecords(t, `[{"id": 42, "actionDate": "2024-05-11T12:34:56.789012Z", "type": "Inspection",
		"notes": "ok", "hives": [{"name": "B"}]}]`)

	batch := Transform(records, testReference(), rs)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "42", batch.Results[0].SourceID)

	data, err := json.Marshal(batch.Payloads())
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"date": "2024-05-11T12:34:56Z",
		"checklist_id": "c1",
		"reminder": null,
		"notes": "ok",
		"hive_ids": [7],
		"items": {"10": "ok"}
	}]`, string(data))
}
