package builder

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/verenigingen/boekhouden-import/internal/classify"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
	"gorm.io/gorm"
)

// buildNegativeSaleJournal books a negative sales invoice as an income
// reversal: income accounts are debited, the receivable is credited.
func (b *Builder) buildNegativeSaleJournal(tx *gorm.DB, m mutation.Mutation) Result {
	existing, err := models.JournalByMutationID(tx, models.JournalGeneral, m.ID)
	if err == nil {
		if existing.DocStatus == models.DocStatusSubmitted {
			return Result{Outcome: OutcomeSkippedExists}
		}
		if err := b.deleteJournal(tx, existing); err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}
	} else if !errors.Is(err, models.ErrResourceNotFound) {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	receivable, err := b.resolver.ReceivableForSales(tx, m.LedgerCode)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	var lines []models.JournalLine
	for _, line := range m.Lines {
		resolution, err := b.resolver.Resolve(tx, line.CounterAccount, line.Description)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}

		lines = append(lines, models.JournalLine{
			AccountCode: resolution.AccountCode,
			Debit:       line.Amount.Abs(),
			CostCenter:  b.resolver.CostCenter(""),
			Description: line.Description,
		})
	}

	lines = append(lines, models.JournalLine{
		AccountCode: receivable.AccountCode,
		Credit:      m.Amount.Abs(),
		CostCenter:  b.resolver.CostCenter(""),
		Description: m.Description,
	})

	journal := models.JournalEntry{
		Kind:                models.JournalGeneral,
		Company:             b.cfg.Company,
		PostingDate:         m.Date,
		Remark:              fmt.Sprintf("credit note for invoice %s", m.InvoiceNumber),
		DocStatus:           models.DocStatusDraft,
		ExternalMutationID:  m.ID,
		ExternalEntryNumber: m.EntryNumber,
		Lines:               lines,
	}

	if !journal.Balanced() {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryUnbalancedJournal,
			fmt.Errorf("mutation %d: journal debits and credits differ by more than %s", m.ID, models.BalanceTolerance), false)}
	}

	if err := tx.Create(&journal).Error; err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	if err := journal.Submit(tx); err != nil {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategorySubmitRejected,
			fmt.Errorf("mutation %d: %w", m.ID, err), true)}
	}

	return Result{Outcome: OutcomeCreated}
}

// buildJournal builds a generic journal entry. Every leg is emitted
// explicitly and the entry must balance before it is persisted.
func (b *Builder) buildJournal(tx *gorm.DB, m mutation.Mutation, verdict classify.Verdict) Result {
	existing, err := models.JournalByMutationID(tx, models.JournalGeneral, m.ID)
	if err == nil {
		if existing.DocStatus == models.DocStatusSubmitted {
			return Result{Outcome: OutcomeSkippedExists}
		}

		if err := b.deleteJournal(tx, existing); err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}
	} else if !errors.Is(err, models.ErrResourceNotFound) {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	var lines []models.JournalLine
	for _, line := range m.Lines {
		resolution, err := b.resolver.Resolve(tx, line.CounterAccount, line.Description)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}

		journalLine := models.JournalLine{
			AccountCode: resolution.AccountCode,
			CostCenter:  b.resolver.CostCenter(""),
			Description: line.Description,
		}

		// The bank leg defines the direction; counter rows book
		// opposite to it. For memorials positive amounts debit.
		amount := line.Amount
		debit := amount.IsPositive() || amount.IsZero()
		if verdict.BankDebit {
			debit = false
			amount = amount.Abs()
		} else if verdict.BankCredit {
			debit = true
			amount = amount.Abs()
		}

		if debit {
			journalLine.Debit = amount.Abs()
		} else {
			journalLine.Credit = amount.Abs()
		}

		lines = append(lines, journalLine)
	}

	// Money-received and money-sent mutations get the explicit bank leg
	// for the mutation's own ledger account
	if verdict.BankDebit || verdict.BankCredit {
		bank, err := b.resolver.BankAccount(tx, m.LedgerCode)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}

		bankLine := models.JournalLine{
			AccountCode: bank.AccountCode,
			CostCenter:  b.resolver.CostCenter(""),
			Description: m.Description,
		}

		amount := m.Amount.Abs()
		if amount.IsZero() {
			amount = sumAbs(m.Lines)
		}

		if verdict.BankDebit {
			bankLine.Debit = amount
		} else {
			bankLine.Credit = amount
		}

		lines = append(lines, bankLine)
	}

	remark := m.Description
	if verdict.Unreconciled {
		remark = fmt.Sprintf("unreconciled payment, mutation %d", m.ID)
		if m.Description != "" {
			remark += ": " + m.Description
		}
	}

	journal := models.JournalEntry{
		Kind:                models.JournalGeneral,
		Company:             b.cfg.Company,
		PostingDate:         m.Date,
		Remark:              remark,
		DocStatus:           models.DocStatusDraft,
		ExternalMutationID:  m.ID,
		ExternalEntryNumber: m.EntryNumber,
		Lines:               lines,
	}

	if !journal.Balanced() {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryUnbalancedJournal,
			fmt.Errorf("mutation %d: journal debits and credits differ by more than %s", m.ID, models.BalanceTolerance), false)}
	}

	if err := tx.Create(&journal).Error; err != nil {
		return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
	}

	if err := journal.Submit(tx); err != nil {
		return Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategorySubmitRejected,
			fmt.Errorf("mutation %d: %w", m.ID, err), true)}
	}

	return Result{Outcome: OutcomeCreated}
}

func (b *Builder) deleteJournal(tx *gorm.DB, journal models.JournalEntry) error {
	if err := tx.Unscoped().Where("journal_entry_id = ?", journal.ID).Delete(&models.JournalLine{}).Error; err != nil {
		return err
	}

	return tx.Unscoped().Delete(&journal).Error
}

// bufferOpening collects one opening balance mutation. All type-0 mutations
// of a run become a single opening balance document, flushed by
// FlushOpeningBalance.
func (b *Builder) bufferOpening(tx *gorm.DB, m mutation.Mutation) Result {
	// Resolve into a local slice first: a failing line must not leave the
	// mutation's earlier legs in the buffer
	lines := make([]models.JournalLine, 0, len(m.Lines))
	for _, line := range m.Lines {
		resolution, err := b.resolver.Resolve(tx, line.CounterAccount, line.Description)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: b.recordError(m, "", err)}
		}

		journalLine := models.JournalLine{
			AccountCode: resolution.AccountCode,
			CostCenter:  b.resolver.CostCenter(""),
			Description: line.Description,
		}

		if line.Amount.IsNegative() {
			journalLine.Credit = line.Amount.Abs()
		} else {
			journalLine.Debit = line.Amount
		}

		lines = append(lines, journalLine)
	}

	if b.openingMutationID == 0 || m.ID < b.openingMutationID {
		b.openingMutationID = m.ID
	}
	if b.openingDate.IsZero() || m.Date.Before(b.openingDate) {
		b.openingDate = m.Date
	}
	b.openingLines = append(b.openingLines, lines...)

	return Result{Outcome: OutcomeBuffered}
}

// FlushOpeningBalance persists the accumulated opening balance as one
// document. It is a no-op when no opening mutations were buffered or when
// the document already exists.
func (b *Builder) FlushOpeningBalance() Result {
	if len(b.openingLines) == 0 {
		return Result{Outcome: OutcomeBuffered, Kind: classify.KindOpeningBalance}
	}

	postingDate := b.cfg.OpeningBalanceDate
	if postingDate.IsZero() {
		postingDate = b.openingDate
	}

	var result Result
	err := b.db.Transaction(func(tx *gorm.DB) error {
		existing, err := models.JournalByMutationID(tx, models.JournalOpening, b.openingMutationID)
		if err == nil && existing.DocStatus == models.DocStatusSubmitted {
			result = Result{Outcome: OutcomeSkippedExists}
			return nil
		}
		if err == nil {
			if err := b.deleteJournal(tx, existing); err != nil {
				return err
			}
		} else if !errors.Is(err, models.ErrResourceNotFound) {
			return err
		}

		journal := models.JournalEntry{
			Kind:               models.JournalOpening,
			Company:            b.cfg.Company,
			PostingDate:        postingDate,
			Remark:             "opening balance",
			DocStatus:          models.DocStatusDraft,
			ExternalMutationID: b.openingMutationID,
			Lines:              b.openingLines,
		}

		if !journal.Balanced() {
			result = Result{Outcome: OutcomeFailed, Err: models.NewRecordError(models.CategoryUnbalancedJournal,
				fmt.Errorf("opening balance debits and credits differ by more than %s", models.BalanceTolerance), false)}
			return result.Err
		}

		if err := tx.Create(&journal).Error; err != nil {
			return err
		}

		if err := journal.Submit(tx); err != nil {
			return err
		}

		result = Result{Outcome: OutcomeCreated}
		return nil
	})

	result.Kind = classify.KindOpeningBalance
	if err != nil && result.Err == nil {
		result.Outcome = OutcomeFailed
		result.Err = models.NewRecordError(models.CategorySubmitRejected, err, true)
	}

	return result
}

func sumAbs(lines []mutation.Line) decimal.Decimal {
	var total decimal.Decimal
	for _, line := range lines {
		total = total.Add(line.Amount.Abs())
	}

	return total
}
