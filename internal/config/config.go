// Package config reads command-line flags and environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/johnswift/hivesync/internal/beep"
	"github.com/johnswift/hivesync/internal/hivetracks"
	"github.com/johnswift/hivesync/internal/preview"
	"github.com/johnswift/hivesync/internal/upload"
)

// ErrMissingCredential is returned when a run needs an account that has no
// email or password configured.
var ErrMissingCredential = errors.New("missing credential")

// Credentials identify an account on one service.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) complete() bool {
	return c.Email != "" && c.Password != ""
}

// Config holds everything a run needs to know.
type Config struct {
	ImportFromFile  bool
	DataDir         string
	DryRun          bool
	Upload          bool
	LogFile         string
	LedgerLocation  string
	MappingsFile    string
	PreviewFile     string
	PreviewWorkbook string
	Schedule        string
	HealthPort      string

	HiveTracks        Credentials
	BEEP              Credentials
	HiveTracksBaseURL string
	BEEPBaseURL       string
	PageSize          int
	UploadDelay       time.Duration
	HTTPTimeout       time.Duration

	LogLevel  string
	LogFormat string
}

// Load parses args (without the program name) and the environment. A .env
// file in the working directory is read first when present; variables
// already set take precedence over it.
func Load(args []string, output io.Writer) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	fset := flag.NewFlagSet("hivesync", flag.ContinueOnError)
	fset.SetOutput(output)
	fset.BoolVar(&cfg.ImportFromFile, "import-from-file", false, "read records and BEEP reference data from --data-dir instead of the APIs")
	fset.StringVar(&cfg.DataDir, "data-dir", "data", "directory holding the fixture files")
	fset.BoolVar(&cfg.DryRun, "dry-run", false, "write the payload preview instead of uploading")
	fset.BoolVar(&cfg.Upload, "upload", false, "upload payloads to BEEP")
	fset.StringVar(&cfg.LogFile, "log-file", "script-log.txt", "file the log is appended to (empty for stderr only)")
	fset.StringVar(&cfg.LedgerLocation, "db-path", "beep_sync.db", "import ledger: SQLite path, postgres:// or redis:// URL")
	fset.StringVar(&cfg.MappingsFile, "mappings-file", "data/mappings.json", "mapping ruleset (JSON or YAML)")
	fset.StringVar(&cfg.PreviewFile, "preview-file", preview.DefaultFile, "dry-run JSON preview path")
	fset.StringVar(&cfg.PreviewWorkbook, "preview-xlsx", "", "optional dry-run spreadsheet preview path")
	fset.StringVar(&cfg.Schedule, "schedule", "", "cron spec (with seconds) to run repeatedly instead of once")
	fset.StringVar(&cfg.HealthPort, "health-port", "", "port for the /health endpoint in scheduled mode")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fset.Args())
	}

	cfg.HiveTracks = Credentials{
		Email:    getEnv("HIVETRACKS_EMAIL", ""),
		Password: getEnv("HIVETRACKS_PASSWORD", ""),
	}
	cfg.BEEP = Credentials{
		Email:    getEnv("BEEP_EMAIL", ""),
		Password: getEnv("BEEP_PASSWORD", ""),
	}
	cfg.HiveTracksBaseURL = getEnv("HIVETRACKS_BASE_URL", hivetracks.DefaultBaseURL)
	cfg.BEEPBaseURL = getEnv("BEEP_BASE_URL", beep.DefaultBaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	var err error
	if cfg.PageSize, err = strconv.Atoi(getEnv("HIVETRACKS_PAGE_SIZE", strconv.Itoa(hivetracks.DefaultPageSize))); err != nil || cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid HIVETRACKS_PAGE_SIZE: %q", os.Getenv("HIVETRACKS_PAGE_SIZE"))
	}
	if cfg.UploadDelay, err = time.ParseDuration(getEnv("UPLOAD_DELAY", upload.DefaultDelay.String())); err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_DELAY: %w", err)
	}
	if cfg.HTTPTimeout, err = time.ParseDuration(getEnv("HTTP_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Validate checks that credentials exist for every service the run touches:
// HiveTracks and BEEP when reading from the APIs, BEEP when uploading.
func (c *Config) Validate() error {
	if !c.ImportFromFile {
		if !c.HiveTracks.complete() {
			return fmt.Errorf("%w: HIVETRACKS_EMAIL and HIVETRACKS_PASSWORD are required unless --import-from-file is set", ErrMissingCredential)
		}
		if !c.BEEP.complete() {
			return fmt.Errorf("%w: BEEP_EMAIL and BEEP_PASSWORD are required unless --import-from-file is set", ErrMissingCredential)
		}
	}
	if c.Uploading() && !c.BEEP.complete() {
		return fmt.Errorf("%w: BEEP_EMAIL and BEEP_PASSWORD are required for --upload", ErrMissingCredential)
	}
	return nil
}

// Uploading reports whether the run submits payloads. --dry-run wins over
// --upload.
func (c *Config) Uploading() bool {
	return c.Upload && !c.DryRun
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
