// Package syncer runs one HiveTracks to BEEP synchronization: fetch records
// and reference data, drop already-imported records, transform the rest,
// then either write a preview or upload.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/ledger"
	"github.com/johnswift/hivesync/internal/preview"
	"github.com/johnswift/hivesync/internal/record"
	"github.com/johnswift/hivesync/internal/ruleset"
	"github.com/johnswift/hivesync/internal/transform"
	"github.com/johnswift/hivesync/internal/upload"
)

var (
	// ErrConfig classifies failures to load the ruleset.
	ErrConfig = errors.New("configuration error")
	// ErrFetch classifies failures to read records or reference data.
	ErrFetch = errors.New("fetch error")
	// ErrLedger classifies failures to read the import ledger.
	ErrLedger = errors.New("ledger error")
)

// Source provides HiveTracks records.
type Source interface {
	Records(ctx context.Context) ([]record.Record, error)
}

// ReferenceSource provides the BEEP hive and checklist lists.
type ReferenceSource interface {
	Hives(ctx context.Context) ([]transform.NamedID, error)
	Checklists(ctx context.Context) ([]transform.NamedID, error)
}

// Ledger is the part of the import ledger a run needs.
type Ledger interface {
	KnownIDs(ctx context.Context) (map[string]struct{}, error)
	upload.Marker
}

// Authenticator is implemented by sources that must sign in before use.
// It is called once per run.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// Deps are the collaborators of a run.
type Deps struct {
	RulesetPath string
	Source      Source
	Reference   ReferenceSource
	Ledger      Ledger
	Uploader    upload.Submitter
	Logger      *zap.Logger
}

// Options select what a run does with the transformed payloads.
type Options struct {
	// DryRun writes the preview and skips uploading.
	DryRun bool
	// Upload submits payloads to BEEP.
	Upload bool
	// PreviewFile is the JSON preview path (default preview.DefaultFile).
	PreviewFile string
	// PreviewWorkbook, when set, also writes an .xlsx preview.
	PreviewWorkbook string
	// UploadDelay is the pause after each upload attempt.
	UploadDelay time.Duration
	// Progress receives upload progress.
	Progress upload.ProgressCallback
}

// Summary reports the counts of one run.
type Summary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Seen        int           `json:"seen"`
	Eligible    int           `json:"eligible"`
	Transformed int           `json:"transformed"`
	Rejected    int           `json:"rejected"`
	PreviewFile string        `json:"preview_file,omitempty"`
	Upload      *upload.Stats `json:"upload,omitempty"`
}

// Syncer runs synchronizations with a fixed set of collaborators.
type Syncer struct {
	deps Deps
}

// New creates a Syncer.
func New(deps Deps) *Syncer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Syncer{deps: deps}
}

// Run performs one synchronization. The ruleset is loaded before any remote
// call. Errors wrap ErrConfig, ErrFetch or ErrLedger; per-record failures are
// logged and counted, never returned.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := s.deps.Logger.With(zap.String("run_id", summary.RunID))

	rules, err := ruleset.Load(s.deps.RulesetPath)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	log.Info("Loaded mapping ruleset",
		zap.String("path", s.deps.RulesetPath),
		zap.Int("field_map", len(rules.FieldMap)),
		zap.Int("enums", len(rules.Enums)),
		zap.Int("stage_flags", len(rules.StagesFlags.Flags)),
		zap.Int("feeding_rules", len(rules.FeedingRules)),
	)

	records, ref, err := s.fetch(ctx)
	if err != nil {
		return summary, err
	}
	summary.Seen = len(records)

	known, err := s.deps.Ledger.KnownIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	eligible := make([]record.Record, 0, len(records))
	for _, r := range records {
		id := r.ID()
		if _, done := known[id]; done {
			continue
		}
		// A record listed twice in one fetch is handled once.
		known[id] = struct{}{}
		eligible = append(eligible, r)
	}
	summary.Eligible = len(eligible)

	batch := transform.Transform(eligible, ref, rules)
	summary.Transformed = len(batch.Results)
	summary.Rejected = len(batch.Rejected)
	for _, rej := range batch.Rejected {
		log.Warn("Skipping record that could not be transformed",
			zap.String("record_id", rej.SourceID),
			zap.Error(rej.Err),
		)
	}

	log.Info("Transformed records",
		zap.Int("seen", summary.Seen),
		zap.Int("eligible", summary.Eligible),
		zap.Int("transformed", summary.Transformed),
		zap.Int("rejected", summary.Rejected),
	)

	if opts.DryRun {
		if err := s.writePreview(opts, batch, summary); err != nil {
			return summary, err
		}
		log.Info("Dry run complete", zap.String("preview", summary.PreviewFile))
		return summary, nil
	}

	if opts.Upload {
		if err := authenticate(ctx, s.deps.Uploader); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrFetch, err)
		}

		log.Info("Uploading records to BEEP", zap.Int("count", len(batch.Results)))
		driver := upload.NewDriver(s.deps.Uploader, s.deps.Ledger, log).
			WithDelay(opts.UploadDelay).
			WithProgress(opts.Progress)

		stats, err := driver.Upload(ctx, batch.Results)
		summary.Upload = stats
		if err != nil {
			return summary, fmt.Errorf("upload interrupted: %w", err)
		}
		log.Info("Upload complete",
			zap.Int("uploaded", stats.Uploaded),
			zap.Int("failed", stats.Failed),
			zap.Int("ledger_errors", stats.LedgerErrors),
			zap.Duration("duration", stats.Duration),
		)
	}

	return summary, nil
}

// fetch reads every record and both reference lists. Nothing partial is kept.
func (s *Syncer) fetch(ctx context.Context) ([]record.Record, transform.Reference, error) {
	if err := authenticate(ctx, s.deps.Source); err != nil {
		return nil, transform.Reference{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	records, err := s.deps.Source.Records(ctx)
	if err != nil {
		return nil, transform.Reference{}, fmt.Errorf("%w: records: %w", ErrFetch, err)
	}

	if err := authenticate(ctx, s.deps.Reference); err != nil {
		return nil, transform.Reference{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	checklists, err := s.deps.Reference.Checklists(ctx)
	if err != nil {
		return nil, transform.Reference{}, fmt.Errorf("%w: checklists: %w", ErrFetch, err)
	}
	hives, err := s.deps.Reference.Hives(ctx)
	if err != nil {
		return nil, transform.Reference{}, fmt.Errorf("%w: hives: %w", ErrFetch, err)
	}

	return records, transform.NewReference(hives, checklists), nil
}

func (s *Syncer) writePreview(opts Options, batch transform.Batch, summary *Summary) error {
	path := opts.PreviewFile
	if path == "" {
		path = preview.DefaultFile
	}

	payloads := batch.Payloads()
	if err := preview.WriteFile(path, payloads); err != nil {
		return err
	}
	summary.PreviewFile = path

	if opts.PreviewWorkbook != "" {
		if err := preview.WriteWorkbook(opts.PreviewWorkbook, payloads); err != nil {
			return err
		}
	}
	return nil
}

func authenticate(ctx context.Context, v any) error {
	if a, ok := v.(Authenticator); ok {
		return a.Authenticate(ctx)
	}
	return nil
}

// Compile-time checks that every ledger backend can serve a run.
var (
	_ Ledger = (*ledger.SQLite)(nil)
	_ Ledger = (*ledger.Postgres)(nil)
	_ Ledger = (*ledger.Redis)(nil)
)
