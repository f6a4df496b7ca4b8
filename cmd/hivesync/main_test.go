package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnswift/hivesync/internal/beep"
	"github.com/johnswift/hivesync/internal/config"
	"github.com/johnswift/hivesync/internal/syncer"
	"github.com/johnswift/hivesync/internal/upload"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HIVETRACKS_EMAIL", "HIVETRACKS_PASSWORD", "BEEP_EMAIL", "BEEP_PASSWORD",
		"HIVETRACKS_PAGE_SIZE", "UPLOAD_DELAY", "HTTP_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunLogsConfigurationErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	logFile := filepath.Join(dir, "script-log.txt")

	err := run([]string{
		"--log-file", logFile,
		"--db-path", filepath.Join(dir, "beep_sync.db"),
	}, &bytes.Buffer{})
	require.ErrorIs(t, err, config.ErrMissingCredential)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Invalid configuration")
	assert.Contains(t, string(data), "HIVETRACKS_EMAIL")
}

func TestRunFromFilesPrintsCounts(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, RecordsFile), `[
		{"id": 1, "actionDate": "2024-05-01T08:00:00.000Z", "type": "Inspection", "hives": [{"name": "A"}]},
		{"id": 2, "actionDate": "2024-05-02T08:00:00.000Z", "type": "Inspection"}
	]`)
	writeFile(t, filepath.Join(dir, beep.HivesFile), `{"hives": [{"id": 11, "name": "A"}]}`)
	writeFile(t, filepath.Join(dir, beep.ChecklistsFile), `{"checklists": [{"id": 3, "name": "Inspection"}]}`)
	writeFile(t, filepath.Join(dir, "mappings.json"), `{"field_map": {"10": "notes"}}`)

	var out bytes.Buffer
	err := run([]string{
		"--import-from-file",
		"--data-dir", dir,
		"--mappings-file", filepath.Join(dir, "mappings.json"),
		"--db-path", filepath.Join(dir, "beep_sync.db"),
		"--log-file", filepath.Join(dir, "script-log.txt"),
		"--dry-run",
		"--preview-file", filepath.Join(dir, "preview.json"),
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Records seen:        2\n")
	assert.Contains(t, out.String(), "Records eligible:    2\n")
	assert.Contains(t, out.String(), "Transformed:         2\n")
	assert.FileExists(t, filepath.Join(dir, "preview.json"))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &syncer.Summary{
		Seen:        5,
		Eligible:    3,
		Transformed: 2,
		Rejected:    1,
		Upload:      &upload.Stats{Uploaded: 1, Failed: 1, LedgerErrors: 1},
	})

	assert.Equal(t, "Records seen:        5\n"+
		"Records eligible:    3\n"+
		"Transformed:         2\n"+
		"Rejected:            1\n"+
		"Uploaded:            1\n"+
		"Failed:              1\n"+
		"Not recorded:        1\n", out.String())
}
