package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// The schema matches ledger files written by earlier versions of the sync tool.
const createImportedRecords = `
CREATE TABLE IF NOT EXISTS imported_records (
    record_id TEXT PRIMARY KEY,
    action_date TEXT,
    checklist_id TEXT,
    created_at TEXT DEFAULT (datetime('now'))
)`

// sqliteTimeLayout is the format of SQLite's datetime('now').
const sqliteTimeLayout = "2006-01-02 15:04:05"

type importedRecord struct {
	RecordID    string         `gorm:"column:record_id;primaryKey"`
	ActionDate  string         `gorm:"column:action_date"`
	ChecklistID sql.NullString `gorm:"column:checklist_id"`
	ImportedAt  string         `gorm:"column:created_at;<-:false"`
}

func (importedRecord) TableName() string { return "imported_records" }

// SQLite is a ledger kept in a local SQLite file.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens or creates the ledger file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %v", ErrOpen, dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite %s: %v", ErrOpen, path, err)
	}

	if err := db.WithContext(ctx).Exec(createImportedRecords).Error; err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("%w: create table: %v", ErrOpen, err)
	}

	return &SQLite{db: db}, nil
}

// KnownIDs returns every marked record id.
func (s *SQLite) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&importedRecord{}).Pluck("record_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query imported ids: %w", err)
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// Mark inserts an entry unless one already exists for recordID.
func (s *SQLite) Mark(ctx context.Context, recordID, actionDate, checklistID string) error {
	row := importedRecord{
		RecordID:    recordID,
		ActionDate:  actionDate,
		ChecklistID: sql.NullString{String: checklistID, Valid: checklistID != ""},
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, recordID, err)
	}
	return nil
}

// Get returns the entry for recordID.
func (s *SQLite) Get(ctx context.Context, recordID string) (*Entry, error) {
	var row importedRecord
	err := s.db.WithContext(ctx).Where("record_id = ?", recordID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("query entry %s: %w", recordID, err)
	}

	entry := &Entry{
		RecordID:    row.RecordID,
		ActionDate:  row.ActionDate,
		ChecklistID: row.ChecklistID.String,
	}
	if t, err := time.Parse(sqliteTimeLayout, row.ImportedAt); err == nil {
		entry.ImportedAt = t
	}
	return entry, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return closeGorm(s.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
