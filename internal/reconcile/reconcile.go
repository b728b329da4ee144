// Package reconcile matches payments to invoices after a run has built all
// documents, and correlates direct-debit return batches with the payments
// they undo.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"gorm.io/gorm"
)

// maxSubsetInvoices caps the open invoice count considered by the
// sum-matching search.
const maxSubsetInvoices = 16

// Stats summarizes one reconciliation pass.
type Stats struct {
	Matched      uint `json:"matched"`
	Unreconciled uint `json:"unreconciled"`
	Failed       uint `json:"failed"`
	Reversed     uint `json:"reversed"`
}

// Engine links payments to the invoices they settle.
type Engine struct {
	db    *gorm.DB
	runID uuid.UUID
	log   zerolog.Logger
}

// New returns an engine writing its failures to the given run.
func New(db *gorm.DB, runID uuid.UUID, log zerolog.Logger) *Engine {
	return &Engine{
		db:    db,
		runID: runID,
		log:   log.With().Str("component", "reconcile").Logger(),
	}
}

// ReconcilePayments runs phase 1: every submitted payment without references
// is matched against open invoices. Payments that cannot be matched get the
// unreconciled marker; failures are recorded and leave the payment in its
// prior state.
func (e *Engine) ReconcilePayments(company string) (Stats, error) {
	var stats Stats

	payments, err := models.UnreconciledPayments(e.db, company)
	if err != nil {
		return stats, err
	}

	for _, payment := range payments {
		err := e.db.Transaction(func(tx *gorm.DB) error {
			return e.reconcile(tx, &payment)
		})
		if err != nil {
			stats.Failed++
			e.recordFailure(payment, err)
			continue
		}

		if payment.Reconciled() {
			stats.Matched++
		} else {
			stats.Unreconciled++
		}
	}

	return stats, nil
}

// reconcile attaches references for one payment. Already reconciled
// payments are a no-op.
func (e *Engine) reconcile(tx *gorm.DB, payment *models.PaymentEntry) error {
	if payment.Reconciled() {
		return nil
	}

	kind := models.InvoiceSales
	if payment.Direction == models.PaymentOut {
		kind = models.InvoicePurchase
	}

	// An explicit invoice reference wins
	if payment.ExternalInvoiceNumber != "" {
		invoice, err := models.InvoiceByNumber(tx, kind, payment.ExternalInvoiceNumber)
		if err != nil {
			if errors.Is(err, models.ErrResourceNotFound) {
				return e.markUnreconciled(tx, payment)
			}
			return err
		}

		return e.attach(tx, payment, []models.Invoice{invoice})
	}

	// Without a reference, only incoming payments are matched, against
	// the smallest set of the party's open invoices that sums to the
	// payment amount
	if payment.Direction != models.PaymentIn {
		return e.markUnreconciled(tx, payment)
	}

	open, err := models.OpenInvoicesForParty(tx, kind, payment.PartyID)
	if err != nil {
		return err
	}

	matched, ok := matchInvoices(open, payment.Amount)
	if !ok {
		return e.markUnreconciled(tx, payment)
	}

	return e.attach(tx, payment, matched)
}

// attach writes the reference rows and reduces each invoice's outstanding
// amount. The allocation never exceeds an invoice's outstanding amount.
func (e *Engine) attach(tx *gorm.DB, payment *models.PaymentEntry, invoices []models.Invoice) error {
	remaining := payment.Amount

	for _, invoice := range invoices {
		if invoice.DocStatus != models.DocStatusSubmitted || !invoice.Outstanding.IsPositive() {
			return e.markUnreconciled(tx, payment)
		}

		allocated := decimal.Min(remaining, invoice.Outstanding)
		if !allocated.IsPositive() {
			break
		}

		reference := models.PaymentReference{
			PaymentEntryID: payment.ID,
			InvoiceID:      invoice.ID,
			InvoiceNumber:  invoice.ExternalInvoiceNumber,
			Allocated:      allocated,
		}
		if err := tx.Create(&reference).Error; err != nil {
			return err
		}

		invoice.Outstanding = invoice.Outstanding.Sub(allocated)
		if err := tx.Model(&invoice).Select("Outstanding").Updates(&invoice).Error; err != nil {
			return err
		}

		payment.References = append(payment.References, reference)
		remaining = remaining.Sub(allocated)
	}

	// Re-submit with a clean title in case an earlier pass marked the
	// payment unreconciled
	if strings.HasPrefix(payment.Title, models.UnreconciledPrefix) {
		payment.Title = strings.TrimPrefix(payment.Title, models.UnreconciledPrefix)
		if err := tx.Model(payment).Select("Title").Updates(payment).Error; err != nil {
			return err
		}
	}

	e.log.Debug().
		Int64("mutation", payment.ExternalMutationID).
		Int("references", len(payment.References)).
		Msg("payment reconciled")

	return nil
}

// markUnreconciled prefixes the title and stashes the dangling invoice
// number in the remarks for a later manual or re-attempted pass.
func (e *Engine) markUnreconciled(tx *gorm.DB, payment *models.PaymentEntry) error {
	if strings.HasPrefix(payment.Title, models.UnreconciledPrefix) {
		return nil
	}

	payment.Title = models.UnreconciledPrefix + payment.Title
	if payment.ExternalInvoiceNumber != "" {
		note := "Unreconciled Invoice: " + payment.ExternalInvoiceNumber
		if payment.Remarks != "" {
			payment.Remarks += "\n"
		}
		payment.Remarks += note
	}

	return tx.Model(payment).Select("Title", "Remarks").Updates(payment).Error
}

func (e *Engine) recordFailure(payment models.PaymentEntry, err error) {
	record := models.FailedRecord{
		RunID:              e.runID,
		ExternalMutationID: payment.ExternalMutationID,
		RecordKind:         "payment-reconciliation",
		ErrorCategory:      models.CategoryReconciliationFailed,
		ErrorMessage:       err.Error(),
		Retryable:          true,
	}

	if err := e.db.Create(&record).Error; err != nil {
		e.log.Error().Err(err).Msg("could not persist reconciliation failure")
	}
}

// matchInvoices finds the invoices a payment settles. An exact single-invoice
// match wins over sum matches; among sum matches only an unambiguous smallest
// set counts. Candidates arrive oldest first and stay that way.
func matchInvoices(open []models.Invoice, amount decimal.Decimal) ([]models.Invoice, bool) {
	// Exact match on the oldest invoice with this outstanding amount
	for _, invoice := range open {
		if invoice.Outstanding.Sub(amount).Abs().LessThanOrEqual(models.BalanceTolerance) {
			return []models.Invoice{invoice}, true
		}
	}

	if len(open) > maxSubsetInvoices {
		return nil, false
	}

	var best [][]models.Invoice
	var search func(start int, current []models.Invoice, sum decimal.Decimal)
	search = func(start int, current []models.Invoice, sum decimal.Decimal) {
		if sum.Sub(amount).Abs().LessThanOrEqual(models.BalanceTolerance) && len(current) > 0 {
			subset := make([]models.Invoice, len(current))
			copy(subset, current)

			switch {
			case len(best) == 0 || len(subset) < len(best[0]):
				best = [][]models.Invoice{subset}
			case len(subset) == len(best[0]):
				best = append(best, subset)
			}
			return
		}

		if sum.GreaterThan(amount) {
			// Amounts are positive; this branch cannot recover
			return
		}

		for i := start; i < len(open); i++ {
			search(i+1, append(current, open[i]), sum.Add(open[i].Outstanding))
		}
	}
	search(0, nil, decimal.Zero)

	// Only a unique smallest set is safe to allocate automatically
	if len(best) != 1 {
		return nil, false
	}

	return best[0], true
}

// Describe returns the stats as a log-friendly string.
func (s Stats) Describe() string {
	return fmt.Sprintf("matched=%d unreconciled=%d failed=%d reversed=%d", s.Matched, s.Unreconciled, s.Failed, s.Reversed)
}
