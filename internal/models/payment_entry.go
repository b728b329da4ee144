package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentDirection is the flow direction of a payment entry.
type PaymentDirection string

const (
	PaymentIn  PaymentDirection = "in"  // received from a customer
	PaymentOut PaymentDirection = "out" // paid to a supplier
)

// UnreconciledPrefix is prepended to the title of payments that could not be
// matched to an invoice.
const UnreconciledPrefix = "[UNRECONCILED] "

// PaymentEntry is a customer or supplier payment. References link it to the
// invoices it settles; a payment without references is unreconciled.
type PaymentEntry struct {
	DefaultModel
	Company            string
	Direction          PaymentDirection
	PartyKind          PartyKind
	PartyID            uuid.UUID
	Party              Party `json:"-"`
	Amount             decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	PostingDate        time.Time
	BankAccount        string
	Title              string
	Remarks            string
	DocStatus          DocStatus
	ExternalMutationID int64 `gorm:"uniqueIndex"`
	// The invoice number the source mutation referenced, kept for
	// reconciliation and for the unreconciled remark
	ExternalInvoiceNumber string
	References            []PaymentReference
}

// PaymentReference allocates part of a payment against one invoice.
type PaymentReference struct {
	DefaultModel
	PaymentEntryID uuid.UUID `gorm:"index"`
	InvoiceID      uuid.UUID
	InvoiceNumber  string
	Allocated      decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
}

// Reconciled reports whether the payment has at least one invoice reference.
func (p PaymentEntry) Reconciled() bool {
	return len(p.References) > 0
}

// Submit moves a draft payment to submitted.
func (p *PaymentEntry) Submit(db *gorm.DB) error {
	if p.DocStatus != DocStatusDraft {
		return ErrDocumentNotSubmittable
	}

	p.DocStatus = DocStatusSubmitted

	return db.Model(p).Select("DocStatus").Updates(p).Error
}

// Cancel moves a submitted payment to cancelled. Return processing uses this
// before writing the reversal journal.
func (p *PaymentEntry) Cancel(db *gorm.DB) error {
	if p.DocStatus != DocStatusSubmitted {
		return ErrDocumentNotCancellable
	}

	p.DocStatus = DocStatusCancelled

	return db.Model(p).Select("DocStatus").Updates(p).Error
}

// PaymentByMutationID returns the payment created for an external mutation.
func PaymentByMutationID(db *gorm.DB, mutationID int64) (PaymentEntry, error) {
	var payment PaymentEntry
	err := db.Preload("References").Where(&PaymentEntry{ExternalMutationID: mutationID}).First(&payment).Error
	return payment, err
}

// UnreconciledPayments returns all submitted payments without references for
// a company.
func UnreconciledPayments(db *gorm.DB, company string) ([]PaymentEntry, error) {
	var payments []PaymentEntry
	err := db.
		Preload("References").
		Where(&PaymentEntry{Company: company, DocStatus: DocStatusSubmitted}).
		Where("id NOT IN (SELECT payment_entry_id FROM payment_references WHERE deleted_at IS NULL)").
		Order("external_mutation_id asc").
		Find(&payments).Error
	return payments, err
}
