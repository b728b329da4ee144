package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JournalKind tags a journal entry row. Opening balances share the table so
// the (kind, external mutation id) pair stays unique per kind.
type JournalKind string

const (
	JournalGeneral JournalKind = "journal"
	JournalOpening JournalKind = "opening"
)

// BalanceTolerance is the maximum acceptable difference between the debit
// and credit totals of a journal, and between line sums and header amounts
// throughout the import.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// JournalEntry is a generic journal or opening balance entry. Every leg is
// emitted explicitly; the entry must balance within BalanceTolerance.
type JournalEntry struct {
	DefaultModel
	Kind                JournalKind `gorm:"uniqueIndex:journal_kind_mutation"`
	Company             string
	PostingDate         time.Time
	Remark              string
	DocStatus           DocStatus
	ExternalMutationID  int64 `gorm:"uniqueIndex:journal_kind_mutation"`
	ExternalEntryNumber string
	Lines               []JournalLine
}

// JournalLine is one leg of a journal entry.
type JournalLine struct {
	DefaultModel
	JournalEntryID uuid.UUID `gorm:"index"`
	AccountCode    string
	Debit          decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	Credit         decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	CostCenter     string
	Description    string
}

// Balanced reports whether debit and credit totals agree within
// BalanceTolerance.
func (j JournalEntry) Balanced() bool {
	var debit, credit decimal.Decimal
	for _, line := range j.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}

	return debit.Sub(credit).Abs().LessThanOrEqual(BalanceTolerance)
}

// Submit moves a draft journal entry to submitted.
func (j *JournalEntry) Submit(db *gorm.DB) error {
	if j.DocStatus != DocStatusDraft {
		return ErrDocumentNotSubmittable
	}

	j.DocStatus = DocStatusSubmitted

	return db.Model(j).Select("DocStatus").Updates(j).Error
}

// JournalByMutationID returns the journal entry created for an external
// mutation.
func JournalByMutationID(db *gorm.DB, kind JournalKind, mutationID int64) (JournalEntry, error) {
	var journal JournalEntry
	err := db.Where(&JournalEntry{Kind: kind, ExternalMutationID: mutationID}).First(&journal).Error
	return journal, err
}
