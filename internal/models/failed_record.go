package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FailedRecord is one record-local failure within a run. The store is
// append-only during a run; the analyzer and the retry tooling read it
// afterwards.
type FailedRecord struct {
	DefaultModel
	RunID              uuid.UUID `gorm:"index"`
	ExternalMutationID int64
	RecordKind         string
	RawPayload         string
	ErrorCategory      ErrorCategory `gorm:"index"`
	ErrorMessage       string
	StackTrace         string
	Retryable          bool
}

// FailedRecordsForRun returns all failures of a run, optionally filtered by
// category.
func FailedRecordsForRun(db *gorm.DB, runID uuid.UUID, category ErrorCategory) ([]FailedRecord, error) {
	var records []FailedRecord

	query := db.Where(&FailedRecord{RunID: runID})
	if category != "" {
		query = query.Where(&FailedRecord{ErrorCategory: category})
	}

	err := query.Order("created_at asc").Find(&records).Error
	return records, err
}
