package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"gorm.io/gorm"
)

// ReturnRecord is one row of a bank return file: a direct-debit collection
// that failed.
type ReturnRecord struct {
	MemberID string
	Amount   decimal.Decimal
	Reason   string
	Code     string
}

// SEPAEntry is one row of an already-emitted direct-debit batch. Batch
// emission is a separate concern; the engine only reads entries to correlate
// returns.
type SEPAEntry struct {
	MemberID      string
	RelationCode  string
	InvoiceNumber string
	Amount        decimal.Decimal
}

// SEPABatchSource locates the outgoing batch entry for a failing member.
type SEPABatchSource interface {
	EntryForMember(memberID string, amount decimal.Decimal) (SEPAEntry, error)
}

// LedgerBatchSource reconstructs batch entries from already imported
// documents: the member id is the customer's relation code, the entry is the
// settled invoice whose payment allocated exactly the returned amount.
type LedgerBatchSource struct {
	db *gorm.DB
}

func NewLedgerBatchSource(db *gorm.DB) *LedgerBatchSource {
	return &LedgerBatchSource{db: db}
}

func (s *LedgerBatchSource) EntryForMember(memberID string, amount decimal.Decimal) (SEPAEntry, error) {
	party, err := models.PartyByRelationCode(s.db, models.PartyCustomer, memberID)
	if err != nil {
		return SEPAEntry{}, err
	}

	var invoice models.Invoice
	err = s.db.
		Joins("JOIN payment_references ON payment_references.invoice_id = invoices.id AND payment_references.deleted_at IS NULL").
		Where("invoices.kind = ? AND invoices.party_id = ? AND payment_references.allocated = ?", models.InvoiceSales, party.ID, amount).
		Order("invoices.posting_date DESC").
		First(&invoice).Error
	if err != nil {
		return SEPAEntry{}, fmt.Errorf("no settled invoice over %s: %w", amount, err)
	}

	return SEPAEntry{
		MemberID:      memberID,
		RelationCode:  party.RelationCode,
		InvoiceNumber: invoice.ExternalInvoiceNumber,
		Amount:        amount,
	}, nil
}

// Return file columns, in order.
const (
	returnColMemberID = iota
	returnColAmount
	returnColReason
	returnColCode
)

// ParseReturnFile parses a bank return CSV with the columns
// member_id, amount, return_reason, return_code. The first line is the
// header.
func ParseReturnFile(f io.Reader) ([]ReturnRecord, error) {
	reader := csv.NewReader(f)

	// We can reuse the array in the background to improve performance
	reader.ReuseRecord = true
	reader.FieldsPerRecord = 4

	// Skip the header line
	_, err := reader.Read()
	if err == io.EOF {
		return []ReturnRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read the return file header: %w", err)
	}

	var records []ReturnRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return csvReadError(reader, fmt.Errorf("could not read line in CSV: %w", err))
		}

		amount, err := decimal.NewFromString(record[returnColAmount])
		if err != nil {
			return csvReadError(reader, errors.New("amount could not be parsed to a decimal"))
		}
		if !amount.IsPositive() {
			return csvReadError(reader, errors.New("the amount for a return must be positive"))
		}

		records = append(records, ReturnRecord{
			MemberID: strings.TrimSpace(record[returnColMemberID]),
			Amount:   amount,
			Reason:   strings.TrimSpace(record[returnColReason]),
			Code:     strings.TrimSpace(record[returnColCode]),
		})
	}

	return records, nil
}

// csvReadError returns an error including the line of the input the error
// occurred in.
func csvReadError(r *csv.Reader, err error) ([]ReturnRecord, error) {
	// always use the first field, we are only interested in the line
	line, _ := r.FieldPos(0)

	return nil, fmt.Errorf("error in line %d of the CSV: %w", line, err)
}

// ProcessReturns runs phase 2: every returned collection reverses its
// matched payment (cancel plus an opposite journal) and flags the invoice as
// unpaid again. Failures are recorded and never delete data.
func (e *Engine) ProcessReturns(company string, records []ReturnRecord, batches SEPABatchSource) (Stats, error) {
	var stats Stats

	for _, record := range records {
		entry, err := batches.EntryForMember(record.MemberID, record.Amount)
		if err != nil {
			stats.Failed++
			e.recordReturnFailure(record, fmt.Errorf("no batch entry for member %s: %w", record.MemberID, err))
			continue
		}

		err = e.db.Transaction(func(tx *gorm.DB) error {
			return e.reverse(tx, company, record, entry)
		})
		if err != nil {
			stats.Failed++
			e.recordReturnFailure(record, err)
			continue
		}

		stats.Reversed++
	}

	return stats, nil
}

// reverse undoes one returned collection.
func (e *Engine) reverse(tx *gorm.DB, company string, record ReturnRecord, entry SEPAEntry) error {
	invoice, err := models.InvoiceByNumber(tx, models.InvoiceSales, entry.InvoiceNumber)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", entry.InvoiceNumber, err)
	}

	// Find the payment that settled this invoice
	var reference models.PaymentReference
	err = tx.Where(&models.PaymentReference{InvoiceID: invoice.ID}).First(&reference).Error
	if err != nil {
		return fmt.Errorf("no payment reference for invoice %s: %w", entry.InvoiceNumber, err)
	}

	var payment models.PaymentEntry
	err = tx.First(&payment, "id = ?", reference.PaymentEntryID).Error
	if err != nil {
		return err
	}

	if err := payment.Cancel(tx); err != nil {
		return err
	}

	// Opposite-direction journal: money leaves the bank again, the
	// receivable reopens
	journal := models.JournalEntry{
		Kind:               models.JournalGeneral,
		Company:            company,
		PostingDate:        payment.PostingDate,
		Remark:             fmt.Sprintf("return: %s (%s)", record.Reason, record.Code),
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: -payment.ExternalMutationID,
		Lines: []models.JournalLine{
			{AccountCode: invoice.PartyAccount, Debit: reference.Allocated},
			{AccountCode: payment.BankAccount, Credit: reference.Allocated},
		},
	}

	if err := tx.Create(&journal).Error; err != nil {
		return err
	}
	if err := journal.Submit(tx); err != nil {
		return err
	}

	// Reopen the invoice and detach the reference
	invoice.Outstanding = invoice.Outstanding.Add(reference.Allocated)
	if err := tx.Model(&invoice).Select("Outstanding").Updates(&invoice).Error; err != nil {
		return err
	}

	return tx.Unscoped().Delete(&reference).Error
}

func (e *Engine) recordReturnFailure(record ReturnRecord, err error) {
	failed := models.FailedRecord{
		RunID:         e.runID,
		RecordKind:    "sepa-return",
		RawPayload:    fmt.Sprintf("member_id=%s amount=%s reason=%s code=%s", record.MemberID, record.Amount, record.Reason, record.Code),
		ErrorCategory: models.CategoryReconciliationFailed,
		ErrorMessage:  err.Error(),
		Retryable:     true,
	}

	if err := e.db.Create(&failed).Error; err != nil {
		e.log.Error().Err(err).Msg("could not persist return failure")
	}
}
