// Package builder turns classified mutations into persisted target
// documents. Each mutation is processed in its own database transaction;
// record-local failures roll that transaction back and never abort the run.
package builder

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/verenigingen/boekhouden-import/internal/classify"
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
	"github.com/verenigingen/boekhouden-import/internal/resolve"
	"gorm.io/gorm"
)

// Outcome is what happened to one mutation.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeSkippedExists    Outcome = "skipped-already-exists"
	OutcomeSkippedCancelled Outcome = "skipped-cancelled"
	OutcomeBuffered         Outcome = "buffered" // opening balance entries wait for the flush
	OutcomeFailed           Outcome = "failed"
)

// Result is the outcome of building one mutation, including the classifier
// verdict it was built under.
type Result struct {
	Outcome  Outcome
	Kind     classify.DocumentKind
	Err      *models.RecordError
	Warnings []string
}

// Config carries the builder's document defaults.
type Config struct {
	Company            string
	ItemForIncome      string
	ItemForExpense     string
	DefaultCostCenter  string
	OpeningBalanceDate time.Time
}

// Builder builds and persists target documents for one run.
type Builder struct {
	db       *gorm.DB
	resolver *resolve.Resolver
	cache    *eboekhouden.Cache
	cfg      Config
	log      zerolog.Logger

	// opening balance lines accumulate across type-0 mutations and are
	// flushed as a single document
	openingLines      []models.JournalLine
	openingMutationID int64
	openingDate       time.Time
}

// New returns a builder for one run.
func New(db *gorm.DB, resolver *resolve.Resolver, cache *eboekhouden.Cache, cfg Config, log zerolog.Logger) *Builder {
	return &Builder{
		db:       db,
		resolver: resolver,
		cache:    cache,
		cfg:      cfg,
		log:      log.With().Str("component", "builder").Logger(),
	}
}

// Process builds the target document for one mutation. All persistence for
// the mutation happens in a single transaction; a failure in mutation N+1
// never invalidates mutation N.
func (b *Builder) Process(m mutation.Mutation) Result {
	if m.Cancelled {
		return Result{Outcome: OutcomeSkippedCancelled}
	}

	var category eboekhouden.LedgerCategory
	if ledger, ok := b.cache.Ledger(m.LedgerCode); ok {
		category = ledger.Category
	}

	verdict := classify.Classify(m, category)

	var result Result
	err := b.db.Transaction(func(tx *gorm.DB) error {
		switch verdict.Kind {
		case classify.KindOpeningBalance:
			result = b.bufferOpening(tx, m)
		case classify.KindSalesInvoice:
			result = b.buildInvoice(tx, m, models.InvoiceSales)
		case classify.KindPurchaseInvoice:
			result = b.buildInvoice(tx, m, models.InvoicePurchase)
		case classify.KindCustomerPayment:
			result = b.buildPayment(tx, m, models.PaymentIn)
		case classify.KindSupplierPayment:
			result = b.buildPayment(tx, m, models.PaymentOut)
		case classify.KindJournalEntry:
			result = b.buildJournal(tx, m, verdict)
		}

		result.Kind = verdict.Kind
		if result.Err != nil {
			// Roll back everything this mutation touched
			return result.Err
		}

		return nil
	})

	if err != nil && result.Err == nil {
		result = Result{Outcome: OutcomeFailed, Kind: verdict.Kind, Err: b.recordError(m, verdict.Kind, err)}
	}

	if result.Err != nil {
		b.log.Warn().
			Int64("mutation", m.ID).
			Str("kind", string(verdict.Kind)).
			Str("category", string(result.Err.Category)).
			Err(result.Err.Err).
			Msg("mutation failed")
	}

	return result
}

// recordError wraps any unexpected error with the mutation id and the
// classifier verdict so the failure log is self-contained.
func (b *Builder) recordError(m mutation.Mutation, kind classify.DocumentKind, err error) *models.RecordError {
	var recordErr *models.RecordError
	if errors.As(err, &recordErr) {
		return recordErr
	}

	category := models.CategorySubmitRejected
	switch {
	case errors.Is(err, models.ErrMutationIDNotUnique), errors.Is(err, models.ErrInvoiceNumberNotUnique):
		category = models.CategoryDuplicateMutation
	case errors.Is(err, models.ErrPartyNotUnique):
		category = models.CategoryPartyConflict
	}

	return models.NewRecordError(category,
		fmt.Errorf("mutation %d (%s): %w", m.ID, kind, err), category == models.CategorySubmitRejected)
}

// dueDate computes the invoice due date. Negative payment terms count as
// zero: the due date is never before the posting date.
func dueDate(postingDate time.Time, paymentTermDays int) time.Time {
	if paymentTermDays < 0 {
		paymentTermDays = 0
	}

	return postingDate.AddDate(0, 0, paymentTermDays)
}

// party returns the existing party for the mutation's relation code or
// auto-creates one. The relation code is the canonical name; the display
// name from the cache is secondary.
func (b *Builder) party(tx *gorm.DB, m mutation.Mutation, kind models.PartyKind) (models.Party, *models.RecordError) {
	if m.RelationCode == "" {
		return models.Party{}, models.NewRecordError(models.CategoryMissingReference,
			fmt.Errorf("mutation %d has no relation code", m.ID), true)
	}

	displayName := m.RelationCode
	if relation, ok := b.cache.Relation(m.RelationCode); ok && relation.Name != "" {
		displayName = relation.Name
	}

	party, err := models.EnsureParty(tx, kind, m.RelationCode, displayName)
	if err != nil {
		if errors.Is(err, models.ErrPartyNotUnique) {
			return models.Party{}, models.NewRecordError(models.CategoryPartyConflict,
				fmt.Errorf("mutation %d: relation code %q: %w", m.ID, m.RelationCode, err), false)
		}
		return models.Party{}, models.NewRecordError(models.CategorySubmitRejected, err, true)
	}

	return party, nil
}
