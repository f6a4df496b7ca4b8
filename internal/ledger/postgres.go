package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnswift/hivesync/migrations"
)

// Postgres is a ledger kept in a PostgreSQL table, for installations that
// run the sync from more than one machine against a shared database.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies the embedded migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database URL: %v", ErrOpen, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: create connection pool: %v", ErrOpen, err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrOpen, err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	return p, nil
}

// migrate runs all embedded SQL migrations in order.
func (p *Postgres) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		content, err := fs.ReadFile(migrations.FS, filename)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}

		if _, err := p.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// KnownIDs returns every marked record id.
func (p *Postgres) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, `SELECT record_id FROM imported_records`)
	if err != nil {
		return nil, fmt.Errorf("query imported ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan imported id: %w", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return known, nil
}

// Mark inserts an entry unless one already exists for recordID.
func (p *Postgres) Mark(ctx context.Context, recordID, actionDate, checklistID string) error {
	var checklist *string
	if checklistID != "" {
		checklist = &checklistID
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO imported_records (record_id, action_date, checklist_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id) DO NOTHING
	`, recordID, actionDate, checklist)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, recordID, err)
	}
	return nil
}

// Get returns the entry for recordID.
func (p *Postgres) Get(ctx context.Context, recordID string) (*Entry, error) {
	var (
		entry     Entry
		date      *string
		checklist *string
	)

	err := p.pool.QueryRow(ctx, `
		SELECT record_id, action_date, checklist_id, created_at
		FROM imported_records
		WHERE record_id = $1
	`, recordID).Scan(&entry.RecordID, &date, &checklist, &entry.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("query entry %s: %w", recordID, err)
	}

	if date != nil {
		entry.ActionDate = *date
	}
	if checklist != nil {
		entry.ChecklistID = *checklist
	}
	return &entry, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
