// Package upload submits transformed payloads to BEEP one at a time and
// records each success in the import ledger.
package upload

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/transform"
)

// DefaultDelay is the pause after every upload attempt.
const DefaultDelay = 750 * time.Millisecond

// Submitter posts one payload to the destination.
type Submitter interface {
	StoreInspection(ctx context.Context, payload transform.Payload) error
}

// Marker records a successful upload.
type Marker interface {
	Mark(ctx context.Context, recordID, actionDate, checklistID string) error
}

// ProgressCallback is called after each attempt with the number of payloads
// attempted so far. err is the upload error, if any.
type ProgressCallback func(done, total int, res transform.Result, err error)

// Stats holds the outcome of an upload pass.
type Stats struct {
	Total        int           `json:"total"`
	Uploaded     int           `json:"uploaded"`
	Failed       int           `json:"failed"`
	LedgerErrors int           `json:"ledger_errors"`
	Duration     time.Duration `json:"duration"`
}

// Driver uploads payloads sequentially with a fixed pause between attempts.
type Driver struct {
	submitter Submitter
	ledger    Marker
	logger    *zap.Logger
	delay     time.Duration
	progress  ProgressCallback
	wait      func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a driver with DefaultDelay.
func NewDriver(submitter Submitter, ledger Marker, logger *zap.Logger) *Driver {
	return &Driver{
		submitter: submitter,
		ledger:    ledger,
		logger:    logger,
		delay:     DefaultDelay,
		wait:      sleep,
	}
}

// WithDelay sets the pause after each attempt and returns the Driver for chaining.
func (d *Driver) WithDelay(delay time.Duration) *Driver {
	d.delay = delay
	return d
}

// WithProgress sets the progress callback and returns the Driver for chaining.
func (d *Driver) WithProgress(cb ProgressCallback) *Driver {
	d.progress = cb
	return d
}

// Upload submits results in order. A failed upload is logged and skipped; the
// record stays out of the ledger and is retried on the next run. A ledger
// write failure after a successful upload is logged and counted. No attempt
// is retried. Upload only returns an error when ctx is cancelled.
func (d *Driver) Upload(ctx context.Context, results []transform.Result) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Total: len(results)}

	for i, res := range results {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		log := d.logger.With(
			zap.String("record_id", res.SourceID),
			zap.String("date", res.Payload.Date),
		)

		err := d.submitter.StoreInspection(ctx, res.Payload)
		if err != nil {
			stats.Failed++
			log.Warn("Failed to upload inspection", zap.Error(err))
		} else {
			stats.Uploaded++
			log.Info("Uploaded inspection")

			if markErr := d.ledger.Mark(ctx, res.SourceID, res.Payload.Date, res.ChecklistID.String()); markErr != nil {
				stats.LedgerErrors++
				log.Error("Uploaded inspection not recorded in ledger; it may be uploaded again next run", zap.Error(markErr))
			}
		}

		if d.progress != nil {
			d.progress(i+1, len(results), res, err)
		}

		if err := d.wait(ctx, d.delay); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
