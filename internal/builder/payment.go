package builder

import (
	"errors"
	"fmt"

	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
	"gorm.io/gorm"
)

// buildPayment builds a customer or supplier payment entry. References to
// invoices are attached later by the reconciliation engine.
func (b *Builder) buildPayment(tx *gorm.DB, m mutation.Mutation, direction models.PaymentDirection) Result {
	existing, err := models.PaymentByMutationID(tx, m.ID)
	if err == nil {
		if existing.DocStatus == models.DocStatusSubmitted {
			return Result{Outcome: OutcomeSkippedExists}
		}

		if err := b.deletePayment(tx, existing); err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}
	} else if !errors.Is(err, models.ErrResourceNotFound) {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	if m.Amount.IsZero() {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryZeroAmountInvoice,
			fmt.Errorf("payment mutation %d has a zero amount", m.ID), false)}
	}

	partyKind := models.PartyCustomer
	if direction == models.PaymentOut {
		partyKind = models.PartySupplier
	}

	party, recordErr := b.party(tx, m, partyKind)
	if recordErr != nil {
		return Result{Outcome: OutcomeFailed, Err: recordErr}
	}

	// The mutation's own ledger is the money account the payment moved
	// through
	bank, err := b.resolver.BankAccount(tx, m.LedgerCode)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	title := fmt.Sprintf("Payment %d %s", m.ID, party.RelationCode)
	if m.InvoiceNumber != "" {
		title = fmt.Sprintf("Payment %d %s %s", m.ID, party.RelationCode, m.InvoiceNumber)
	}

	payment := models.PaymentEntry{
		Company:               b.cfg.Company,
		Direction:             direction,
		PartyKind:             partyKind,
		PartyID:               party.ID,
		Amount:                m.Amount.Abs(),
		PostingDate:           m.Date,
		BankAccount:           bank.AccountCode,
		Title:                 title,
		Remarks:               m.Description,
		DocStatus:             models.DocStatusDraft,
		ExternalMutationID:    m.ID,
		ExternalInvoiceNumber: m.InvoiceNumber,
	}

	if err := tx.Create(&payment).Error; err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	if err := payment.Submit(tx); err != nil {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategorySubmitRejected,
			fmt.Errorf("mutation %d: %w", m.ID, err), true)}
	}

	return Result{Outcome: OutcomeCreated}
}

// deletePayment removes a draft or cancelled payment and its references so
// the unique index frees up.
func (b *Builder) deletePayment(tx *gorm.DB, payment models.PaymentEntry) error {
	if err := tx.Unscoped().Where("payment_entry_id = ?", payment.ID).Delete(&models.PaymentReference{}).Error; err != nil {
		return err
	}

	return tx.Unscoped().Delete(&payment).Error
}
