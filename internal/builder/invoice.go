package builder

import (
	"errors"
	"fmt"

	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
	"github.com/verenigingen/boekhouden-import/internal/resolve"
	"gorm.io/gorm"
)

// buildInvoice builds a sales or purchase invoice.
func (b *Builder) buildInvoice(tx *gorm.DB, m mutation.Mutation, kind models.InvoiceKind) Result {
	// Idempotency gate: one document per (kind, mutation id) and per
	// (kind, invoice number). Submitted documents win; draft and
	// cancelled duplicates are deleted so the re-import can proceed.
	if outcome, err := b.invoiceGate(tx, m, kind); err != nil || outcome != "" {
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}
		return Result{Outcome: outcome}
	}

	if m.Amount.IsZero() {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryZeroAmountInvoice,
			fmt.Errorf("invoice mutation %d has a zero amount", m.ID), false)}
	}

	// A negative sales amount would need a credit note, which the target
	// model does not have; it becomes a journal entry instead.
	if kind == models.InvoiceSales && m.Amount.IsNegative() {
		result := b.buildNegativeSaleJournal(tx, m)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("mutation %d: negative sales amount %s imported as journal entry", m.ID, m.Amount))
		return result
	}

	partyKind := models.PartyCustomer
	if kind == models.InvoicePurchase {
		partyKind = models.PartySupplier
	}

	party, recordErr := b.party(tx, m, partyKind)
	if recordErr != nil {
		return Result{Outcome: OutcomeFailed, Err: recordErr}
	}

	partyAccount, err := b.partyAccount(tx, m, kind)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	var warnings []string
	lines := make([]models.InvoiceLine, 0, len(m.Lines))
	for _, line := range m.Lines {
		resolution, err := b.resolver.Resolve(tx, line.CounterAccount, line.Description)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}

		// Zero-amount rows carry no value on an invoice
		if line.Amount.IsZero() {
			warnings = append(warnings, fmt.Sprintf("mutation %d: zero-amount row on account %s dropped", m.ID, line.CounterAccount))
			continue
		}

		item := b.cfg.ItemForExpense
		if resolution.RootType == models.RootTypeIncome {
			item = b.cfg.ItemForIncome
		}

		lines = append(lines, models.InvoiceLine{
			ItemCode:       item,
			Description:    line.Description,
			Rate:           line.Amount.Abs(),
			CounterAccount: resolution.AccountCode,
			VATCode:        line.VATCode,
			VATAmount:      line.VATAmount,
			CostCenter:     b.resolver.CostCenter(""),
		})
	}

	if len(lines) == 0 {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryZeroAmountInvoice,
			fmt.Errorf("invoice mutation %d has no non-zero lines", m.ID), false)}
	}

	invoice := models.Invoice{
		Kind:                  kind,
		Company:               b.cfg.Company,
		PartyID:               party.ID,
		PostingDate:           m.Date,
		DueDate:               dueDate(m.Date, m.PaymentTermDays),
		PartyAccount:          partyAccount.AccountCode,
		Total:                 m.Amount.Abs(),
		DocStatus:             models.DocStatusDraft,
		ExternalMutationID:    m.ID,
		ExternalInvoiceNumber: m.InvoiceNumber,
		Lines:                 lines,
	}

	if err := tx.Create(&invoice).Error; err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	if err := invoice.Submit(tx); err != nil {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategorySubmitRejected,
			fmt.Errorf("mutation %d: %w", m.ID, err), true)}
	}

	return Result{Outcome: OutcomeCreated, Warnings: warnings}
}

// invoiceGate applies the idempotency checks. It returns a non-empty outcome
// when the mutation must be skipped.
func (b *Builder) invoiceGate(tx *gorm.DB, m mutation.Mutation, kind models.InvoiceKind) (Outcome, error) {
	existing, err := models.InvoiceByMutationID(tx, kind, m.ID)
	if err == nil {
		if existing.DocStatus == models.DocStatusSubmitted {
			return OutcomeSkippedExists, nil
		}

		// Draft or cancelled duplicates block the unique index; delete
		// them so the document can be rebuilt
		if err := b.deleteInvoice(tx, existing); err != nil {
			return "", err
		}
	} else if !errors.Is(err, models.ErrResourceNotFound) {
		return "", err
	}

	if m.InvoiceNumber == "" {
		return "", nil
	}

	existing, err = models.InvoiceByNumber(tx, kind, m.InvoiceNumber)
	if err == nil {
		if existing.DocStatus == models.DocStatusSubmitted {
			return OutcomeSkippedExists, nil
		}

		if err := b.deleteInvoice(tx, existing); err != nil {
			return "", err
		}
	} else if !errors.Is(err, models.ErrResourceNotFound) {
		return "", err
	}

	return "", nil
}

// deleteInvoice removes a draft or cancelled invoice together with its
// lines. The delete is unscoped: a soft-deleted row would still occupy the
// unique indexes.
func (b *Builder) deleteInvoice(tx *gorm.DB, invoice models.Invoice) error {
	if err := tx.Unscoped().Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
		return err
	}

	return tx.Unscoped().Delete(&invoice).Error
}

func (b *Builder) partyAccount(tx *gorm.DB, m mutation.Mutation, kind models.InvoiceKind) (resolve.Resolution, error) {
	if kind == models.InvoiceSales {
		return b.resolver.ReceivableForSales(tx, m.LedgerCode)
	}

	return b.resolver.Payable(tx, m.LedgerCode)
}
