package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStatus is the lifecycle state of an import run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ImportRun is a single coherent ingestion attempt. A run is append-only to
// its logs; re-runs produce new rows but never duplicate documents.
type ImportRun struct {
	DefaultModel
	Company       string `gorm:"index"`
	Status        RunStatus
	StartedAt     *time.Time
	FinishedAt    *time.Time
	DateFrom      *time.Time
	DateTo        *time.Time
	MutationTypes string // comma separated source types; empty means all

	Processed        uint
	Created          uint
	SkippedExisting  uint
	SkippedCancelled uint
	FailedRecords    uint

	Summary string // JSON written at completion
}

// Active reports whether the run still holds the per-company slot.
func (r ImportRun) Active() bool {
	return r.Status == RunQueued || r.Status == RunRunning
}

// Start flips a queued run to running. The check for another active run for
// the same company happens in the same transaction; with the single-writer
// sqlite pool this is the per-company advisory lock.
func (r *ImportRun) Start(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var active ImportRun
		err := tx.
			Where("company = ? AND id != ? AND status IN (?)", r.Company, r.ID, []RunStatus{RunQueued, RunRunning}).
			First(&active).Error
		if err == nil {
			return ErrRunActiveForCompany
		}
		if !errors.Is(err, ErrResourceNotFound) {
			return err
		}

		now := time.Now().In(time.UTC)
		r.Status = RunRunning
		r.StartedAt = &now

		return tx.Model(r).Select("Status", "StartedAt").Updates(r).Error
	})
}

// Finish records the final status and counters.
func (r *ImportRun) Finish(db *gorm.DB, status RunStatus, summary string) error {
	now := time.Now().In(time.UTC)
	r.Status = status
	r.FinishedAt = &now
	r.Summary = summary

	return db.Model(r).
		Select("Status", "FinishedAt", "Summary", "Processed", "Created", "SkippedExisting", "SkippedCancelled", "FailedRecords").
		Updates(r).Error
}

// Cancel requests cancellation. The worker checks the flag between
// mutations and stops; partially imported documents stay in place.
func (r *ImportRun) Cancel(db *gorm.DB) error {
	if !r.Active() {
		return ErrRunNotCancellable
	}

	r.Status = RunCancelled

	return db.Model(r).Select("Status").Updates(r).Error
}

// CancelRequested re-reads the status flag from the database.
func (r ImportRun) CancelRequested(db *gorm.DB) bool {
	var status string
	err := db.Model(&ImportRun{}).Where("id = ?", r.ID).Pluck("status", &status).Error
	if err != nil {
		return false
	}

	return RunStatus(status) == RunCancelled
}

// RunByID returns the run with the given ID.
func RunByID(db *gorm.DB, id uuid.UUID) (ImportRun, error) {
	var run ImportRun
	err := db.First(&run, "id = ?", id).Error
	return run, err
}
