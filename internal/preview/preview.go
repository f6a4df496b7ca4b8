// Package preview writes the dry-run artifact: the transformed payloads that
// would have been uploaded, as JSON and optionally as a spreadsheet.
package preview

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/johnswift/hivesync/internal/transform"
)

// DefaultFile is where a dry run writes its preview.
const DefaultFile = "beep-import-preview.json"

// Write encodes payloads as an indented JSON array.
func Write(w io.Writer, payloads []transform.Payload) error {
	if payloads == nil {
		payloads = []transform.Payload{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(payloads); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// WriteFile writes the JSON preview to path.
func WriteFile(path string, payloads []transform.Payload) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview %s: %w", path, err)
	}

	if err := Write(f, payloads); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close preview %s: %w", path, err)
	}
	return nil
}
