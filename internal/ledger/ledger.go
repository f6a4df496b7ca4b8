// Package ledger records which HiveTracks records have been uploaded to BEEP.
//
// The ledger is the only source of truth for "already imported": an entry is
// written after a confirmed upload, never updated, and excludes its record id
// from every later run. Backends: SQLite (default, a file path), PostgreSQL
// and Redis, selected by the location string.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrOpen is returned when the durable store cannot be opened or prepared.
	ErrOpen = errors.New("open ledger")
	// ErrWrite is returned when an entry cannot be written.
	ErrWrite = errors.New("write ledger entry")
	// ErrNotFound is returned by Get for an unknown record id.
	ErrNotFound = errors.New("ledger entry not found")
)

// Entry is one imported record.
type Entry struct {
	RecordID    string
	ActionDate  string
	ChecklistID string // empty when the payload had no checklist
	ImportedAt  time.Time
}

// Ledger is a persistent set of imported record ids.
type Ledger interface {
	// KnownIDs returns every record id ever marked.
	KnownIDs(ctx context.Context) (map[string]struct{}, error)
	// Mark records a successful import. Marking an id twice keeps the first entry.
	Mark(ctx context.Context, recordID, actionDate, checklistID string) error
	// Get returns the entry for a record id.
	Get(ctx context.Context, recordID string) (*Entry, error)
	// Close releases the underlying store.
	Close() error
}

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Kind returns the backend a location selects.
func Kind(location string) string {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return BackendPostgres
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return BackendRedis
	default:
		return BackendSQLite
	}
}

// Open opens the ledger at location, creating its storage if needed. It is
// safe to call on every run.
func Open(ctx context.Context, location string) (Ledger, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%w: empty location", ErrOpen)
	}

	switch Kind(location) {
	case BackendPostgres:
		return OpenPostgres(ctx, location)
	case BackendRedis:
		return OpenRedis(ctx, location)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(location, "sqlite://"))
	}
}
