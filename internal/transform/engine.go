package transform

import (
	"fmt"

	"github.com/johnswift/hivesync/internal/record"
	"github.com/johnswift/hivesync/internal/ruleset"
)

// LegacyRecordIDCode is the BEEP item that once carried the HiveTracks record
// id. It is never emitted; the import ledger tracks identity.
const LegacyRecordIDCode = "1499"

// Transform maps every record to a payload. Records whose actionDate cannot
// be normalized are returned in Rejected and do not stop the batch.
// Transform has no side effects.
func Transform(records []record.Record, ref Reference, rs *ruleset.Ruleset) Batch {
	batch := Batch{Results: make([]Result, 0, len(records))}

	for _, r := range records {
		res, err := TransformRecord(r, ref, rs)
		if err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{SourceID: r.ID(), Err: err})
			continue
		}
		batch.Results = append(batch.Results, res)
	}

	return batch
}

// TransformRecord maps a single record.
func TransformRecord(r record.Record, ref Reference, rs *ruleset.Ruleset) (Result, error) {
	date, err := r.NormalizeDate()
	if err != nil {
		return Result{}, fmt.Errorf("record %s: %w", r.ID(), err)
	}

	checklistID, reminder := resolveChecklist(r, ref, rs.ChecklistFallback)

	payload := Payload{
		Date:        date,
		ChecklistID: checklistID,
		Reminder:    reminder,
		Notes:       r[record.FieldNotes],
		HiveIDs:     resolveHives(r, ref),
		Items:       buildItems(r, rs),
	}

	return Result{
		Payload:     payload,
		SourceID:    r.ID(),
		ChecklistID: checklistID,
	}, nil
}

// buildItems applies the rule tables in fixed order: field_map, enums,
// stages_flags, feeding_rules. Each stage may overwrite earlier ones.
func buildItems(r record.Record, rs *ruleset.Ruleset) map[string]any {
	items := map[string]any{}

	for code, field := range rs.FieldMap {
		if v, ok := r.Value(field); ok {
			items[code] = v
		}
	}

	for _, enum := range rs.Enums {
		key, ok := record.Scalar(r[enum.Field])
		if !ok {
			continue
		}
		for _, a := range enum.Values[key] {
			items[a.Code] = a.Value
		}
	}

	labels := make(map[string]struct{})
	for _, l := range r.Labels(rs.StagesFlags.Field) {
		labels[l] = struct{}{}
	}
	for label, code := range rs.StagesFlags.Flags {
		if _, ok := labels[label]; ok && code != "" {
			items[string(code)] = true
		}
	}

	foodType, hasType := r[record.FieldFoodType].(string)
	other, _ := r[record.FieldFoodTypeOther].(string)
	for _, rule := range rs.FeedingRules {
		if !rule.Matches(foodType, hasType, other) {
			continue
		}
		for _, a := range rule.Set {
			items[a.Code] = a.Value
		}
	}

	delete(items, LegacyRecordIDCode)

	return items
}

// resolveHives maps hive names to BEEP ids, dropping unknown names.
func resolveHives(r record.Record, ref Reference) []ID {
	ids := []ID{}
	for _, name := range r.HiveNames() {
		if id, ok := ref.Hives[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// resolveChecklist looks the record type up in the checklist table, falling
// back to the named fallback checklist. The reminder is set whenever the
// type itself had no checklist.
func resolveChecklist(r record.Record, ref Reference, fallback string) (ID, *string) {
	if typ, ok := r[record.FieldType].(string); ok {
		if id, found := ref.Checklists[typ]; found {
			return id, nil
		}
	}

	reminder := fmt.Sprintf("Missing: %s/%s", r.Text(record.FieldType), r.Text(record.FieldTypeOther))
	return ref.Checklists[fallback], &reminder
}
