package eboekhouden

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

// ErrUnresolvedID means a numeric REST identifier has no entry in the lookup
// tables. Mutations carrying such an id cannot be normalized.
var ErrUnresolvedID = errors.New("id could not be resolved to a code")

// Cache owns the per-run lookup tables: ledgers, relations and VAT codes.
// It is loaded once before any mutation is normalized and is read-only
// afterwards, so no locking is needed.
type Cache struct {
	ledgersByID     map[int64]LedgerEntry
	ledgersByCode   map[string]LedgerEntry
	relationsByID   map[int64]RelationEntry
	relationsByCode map[string]RelationEntry
	vatByCode       map[string]VATEntry
}

// CacheSource provides the three lookup tables. Both the adapter and test
// doubles implement it.
type CacheSource interface {
	FetchLedgers(ctx context.Context) ([]LedgerEntry, error)
	FetchRelations(ctx context.Context) ([]RelationEntry, error)
	FetchVATCodes(ctx context.Context) ([]VATEntry, error)
}

// NewCache returns an empty cache. Initialize must be called before use.
func NewCache() *Cache {
	return &Cache{
		ledgersByID:     map[int64]LedgerEntry{},
		ledgersByCode:   map[string]LedgerEntry{},
		relationsByID:   map[int64]RelationEntry{},
		relationsByCode: map[string]RelationEntry{},
		vatByCode:       map[string]VATEntry{},
	}
}

// Initialize loads all lookup tables from the source.
func (c *Cache) Initialize(ctx context.Context, source CacheSource, log zerolog.Logger) error {
	ledgers, err := source.FetchLedgers(ctx)
	if err != nil {
		return fmt.Errorf("loading ledgers: %w", err)
	}
	for _, ledger := range ledgers {
		c.ledgersByID[ledger.ID] = ledger
		c.ledgersByCode[ledger.Code] = ledger
	}

	relations, err := source.FetchRelations(ctx)
	if err != nil {
		return fmt.Errorf("loading relations: %w", err)
	}
	for _, relation := range relations {
		c.relationsByID[relation.ID] = relation
		c.relationsByCode[relation.Code] = relation
	}

	vatCodes, err := source.FetchVATCodes(ctx)
	if err != nil {
		return fmt.Errorf("loading VAT codes: %w", err)
	}
	for _, vat := range vatCodes {
		c.vatByCode[vat.Code] = vat
	}

	log.Info().
		Int("ledgers", len(ledgers)).
		Int("relations", len(relations)).
		Int("vatCodes", len(vatCodes)).
		Msg("lookup cache initialized")

	return nil
}

// AccountCode resolves a REST ledger id to its account code.
func (c *Cache) AccountCode(ledgerID int64) (string, bool) {
	ledger, ok := c.ledgersByID[ledgerID]
	return ledger.Code, ok
}

// RelationCode resolves a REST relation id to its relation code.
func (c *Cache) RelationCode(relationID int64) (string, bool) {
	relation, ok := c.relationsByID[relationID]
	return relation.Code, ok
}

// Ledger returns the cached ledger entry for an account code.
func (c *Cache) Ledger(code string) (LedgerEntry, bool) {
	ledger, ok := c.ledgersByCode[code]
	return ledger, ok
}

// Relation returns the cached relation entry for a relation code.
func (c *Cache) Relation(code string) (RelationEntry, bool) {
	relation, ok := c.relationsByCode[code]
	return relation, ok
}

// VATCodeKnown reports whether the VAT code exists in the external ledger.
func (c *Cache) VATCodeKnown(code string) bool {
	_, ok := c.vatByCode[code]
	return ok
}

// AccountKind derives the fundamental account type from the first digit of a
// numeric account code per the Dutch decimal chart.
func (c *Cache) AccountKind(code string) models.RootType {
	return models.RootTypeForCode(code)
}

// ConvertRESTToSOAP translates a REST mutation into the SOAP shape,
// resolving numeric ids to codes field by field. An unresolvable id returns
// ErrUnresolvedID; such mutations are refused by the normalizer.
func (c *Cache) ConvertRESTToSOAP(m RestMutation) (SoapMutation, error) {
	converted := SoapMutation{
		MutationNr:    m.ID,
		Type:          m.Type,
		Date:          m.Date,
		InvoiceNumber: m.InvoiceNumber,
		EntryNumber:   m.EntryNumber,
		Description:   m.Description,
		InExVat:       m.InExVat,
		PaymentTerm:   m.TermOfPayment,
		Amount:        m.Amount,
		Cancelled:     m.Cancelled,
	}

	if m.LedgerID != 0 {
		code, ok := c.AccountCode(m.LedgerID)
		if !ok {
			return SoapMutation{}, fmt.Errorf("%w: ledger id %d on mutation %d", ErrUnresolvedID, m.LedgerID, m.ID)
		}
		converted.LedgerCode = code
	}

	if m.RelationID != 0 {
		code, ok := c.RelationCode(m.RelationID)
		if !ok {
			return SoapMutation{}, fmt.Errorf("%w: relation id %d on mutation %d", ErrUnresolvedID, m.RelationID, m.ID)
		}
		converted.RelationCode = code
	}

	converted.Rows = make([]SoapMutationRow, 0, len(m.Rows))
	for _, row := range m.Rows {
		code, ok := c.AccountCode(row.LedgerID)
		if !ok {
			return SoapMutation{}, fmt.Errorf("%w: ledger id %d on a row of mutation %d", ErrUnresolvedID, row.LedgerID, m.ID)
		}

		converted.Rows = append(converted.Rows, SoapMutationRow{
			CounterAccount: code,
			Amount:         row.Amount,
			VatCode:        row.VatCode,
			VatAmount:      row.VatAmount,
			Description:    row.Description,
		})
	}

	return converted, nil
}
