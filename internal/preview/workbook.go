package preview

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/johnswift/hivesync/internal/transform"
)

const sheetName = "Preview"

const truncatedMarker = "[truncated]"

var workbookHeaders = []string{"Date", "Checklist", "Reminder", "Notes", "Hives", "Items"}

var columnWidths = []float64{22, 12, 40, 50, 20, 80}

// WriteWorkbook writes one row per payload to an .xlsx file at path, for
// reviewing a dry run in a spreadsheet.
func WriteWorkbook(path string, payloads []transform.Payload) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F4C430"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for col, header := range workbookHeaders {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, p := range payloads {
		row := i + 2

		items, err := json.Marshal(p.Items)
		if err != nil {
			return fmt.Errorf("encode items of row %d: %w", row, err)
		}

		values := []any{
			p.Date,
			p.ChecklistID.String(),
			derefString(p.Reminder),
			notesText(p.Notes),
			joinIDs(p.HiveIDs),
			string(items),
		}
		for col, v := range values {
			if err := setCellValue(f, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func setCellValue(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if text, ok := value.(string); ok {
		value = truncateCell(text)
	}
	return f.SetCellValue(sheetName, cell, value)
}

// truncateCell cuts text to the spreadsheet cell limit. The JSON preview keeps
// the full value.
func truncateCell(text string) string {
	if utf8.RuneCountInString(text) <= excelize.TotalCellChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:excelize.TotalCellChars-len(truncatedMarker)]) + truncatedMarker
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func notesText(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func joinIDs(ids []transform.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
