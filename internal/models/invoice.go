package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceKind tags an Invoice row as sales or purchase. Both kinds share a
// table so the idempotency pairs (kind, external mutation id) and
// (kind, external invoice number) can be enforced with composite unique
// indexes.
type InvoiceKind string

const (
	InvoiceSales    InvoiceKind = "sales"
	InvoicePurchase InvoiceKind = "purchase"
)

// Invoice is a sales or purchase invoice created from an external mutation.
// PartyAccount is the receivable account (sales) or payable account
// (purchase); the counter leg per line lives on the line itself.
type Invoice struct {
	DefaultModel
	Kind                  InvoiceKind `gorm:"uniqueIndex:invoice_kind_mutation;uniqueIndex:invoice_kind_number"`
	Company               string
	PartyID               uuid.UUID
	Party                 Party `json:"-"`
	PostingDate           time.Time
	DueDate               time.Time
	PartyAccount          string
	Total                 decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	Outstanding           decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	DocStatus             DocStatus
	ExternalMutationID    int64  `gorm:"uniqueIndex:invoice_kind_mutation"`
	ExternalInvoiceNumber string `gorm:"uniqueIndex:invoice_kind_number"`
	Lines                 []InvoiceLine
}

// InvoiceLine is one items row of an invoice. Quantity is always 1, the rate
// is the absolute line amount.
type InvoiceLine struct {
	DefaultModel
	InvoiceID      uuid.UUID `gorm:"index"`
	ItemCode       string
	Description    string
	Rate           decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	CounterAccount string
	VATCode        string
	VATAmount      decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	CostCenter     string
}

// Submit moves a draft invoice to submitted and opens its outstanding
// amount.
func (i *Invoice) Submit(db *gorm.DB) error {
	if i.DocStatus != DocStatusDraft {
		return ErrDocumentNotSubmittable
	}

	i.DocStatus = DocStatusSubmitted
	i.Outstanding = i.Total

	return db.Model(i).Select("DocStatus", "Outstanding").Updates(i).Error
}

// InvoiceByMutationID returns the invoice created for an external mutation,
// regardless of docstatus.
func InvoiceByMutationID(db *gorm.DB, kind InvoiceKind, mutationID int64) (Invoice, error) {
	var invoice Invoice
	err := db.Where(&Invoice{Kind: kind, ExternalMutationID: mutationID}).First(&invoice).Error
	return invoice, err
}

// InvoiceByNumber returns the invoice with the given external invoice
// number.
func InvoiceByNumber(db *gorm.DB, kind InvoiceKind, number string) (Invoice, error) {
	var invoice Invoice
	err := db.Where(&Invoice{Kind: kind, ExternalInvoiceNumber: number}).First(&invoice).Error
	return invoice, err
}

// OpenInvoicesForParty returns all submitted invoices with outstanding
// amount > 0 for a party, oldest posting date first. Reconciliation
// allocates against these.
func OpenInvoicesForParty(db *gorm.DB, kind InvoiceKind, partyID uuid.UUID) ([]Invoice, error) {
	var invoices []Invoice
	err := db.
		Where(&Invoice{Kind: kind, PartyID: partyID, DocStatus: DocStatusSubmitted}).
		Where("outstanding > 0").
		Order("posting_date asc, external_mutation_id asc").
		Find(&invoices).Error
	return invoices, err
}
