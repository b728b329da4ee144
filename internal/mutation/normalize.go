package mutation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

// NoVATCode replaces VAT codes the external ledger does not know. The
// replacement is recorded as a warning, not a failure.
const NoVATCode = "GEEN"

// Options control normalization behavior.
type Options struct {
	// FallbackCounterAccount is substituted for lines whose counter
	// account field is empty in the SOAP response. When unset, such
	// lines fail the mutation with a missing-reference error.
	FallbackCounterAccount string
}

// Normalizer converts raw API records into canonical Mutations. REST-shaped
// records are first translated to the SOAP shape through the lookup cache.
type Normalizer struct {
	cache *eboekhouden.Cache
	opts  Options
	now   func() time.Time
}

// NewNormalizer returns a normalizer backed by an initialized cache. now is
// used for the no-future-dates check; pass time.Now outside of tests.
func NewNormalizer(cache *eboekhouden.Cache, opts Options, now func() time.Time) *Normalizer {
	return &Normalizer{cache: cache, opts: opts, now: now}
}

// Normalize converts one raw record into a canonical Mutation. Violated
// invariants return a RecordError; the warnings slice carries VAT code
// substitutions.
func (n *Normalizer) Normalize(raw eboekhouden.RawMutation) (Mutation, []string, error) {
	var soap eboekhouden.SoapMutation

	switch {
	case raw.SOAP != nil:
		soap = *raw.SOAP
	case raw.REST != nil:
		var err error
		soap, err = n.cache.ConvertRESTToSOAP(*raw.REST)
		if err != nil {
			return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference, err, true)
		}
	default:
		return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference, errors.New("raw mutation has neither shape"), false)
	}

	m := Mutation{
		ID:              soap.MutationNr,
		Type:            Type(soap.Type),
		Description:     strings.TrimSpace(soap.Description),
		InvoiceNumber:   strings.TrimSpace(soap.InvoiceNumber),
		EntryNumber:     strings.TrimSpace(soap.EntryNumber),
		LedgerCode:      strings.TrimSpace(soap.LedgerCode),
		RelationCode:    strings.TrimSpace(soap.RelationCode),
		InclVAT:         !strings.EqualFold(soap.InExVat, "EX"),
		PaymentTermDays: soap.PaymentTerm,
		Amount:          soap.Amount,
		Cancelled:       soap.Cancelled,
	}

	date, err := parseDate(soap.Date)
	if err != nil {
		return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference,
			fmt.Errorf("mutation %d: %w", m.ID, err), false)
	}

	// A date equal to today is fine, strictly future dates are not.
	// Parsed dates are UTC midnights, so today is built from the clock's
	// calendar date rather than truncated in UTC, which would misread
	// today as future near midnight in zones ahead of UTC.
	year, month, day := n.now().Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.After(today) {
		return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference,
			fmt.Errorf("mutation %d is dated in the future: %s", m.ID, soap.Date), false)
	}
	m.Date = date

	var warnings []string
	for i, row := range soap.Rows {
		line := Line{
			CounterAccount: strings.TrimSpace(row.CounterAccount),
			Amount:         row.Amount,
			VATCode:        strings.TrimSpace(row.VatCode),
			VATAmount:      row.VatAmount,
			Description:    strings.TrimSpace(row.Description),
		}

		// Some SOAP responses leave the counter account empty. Only an
		// explicitly configured fallback may fill the gap.
		if line.CounterAccount == "" {
			if n.opts.FallbackCounterAccount == "" {
				return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference,
					fmt.Errorf("mutation %d: row %d has no counter account", m.ID, i+1), true)
			}

			warnings = append(warnings, fmt.Sprintf("row %d: empty counter account replaced with configured fallback %s", i+1, n.opts.FallbackCounterAccount))
			line.CounterAccount = n.opts.FallbackCounterAccount
		}

		if line.VATCode == "" {
			line.VATCode = NoVATCode
		} else if !n.cache.VATCodeKnown(line.VATCode) {
			warnings = append(warnings, fmt.Sprintf("row %d: unknown VAT code %q replaced with %s", i+1, line.VATCode, NoVATCode))
			line.VATCode = NoVATCode
		}

		m.Lines = append(m.Lines, line)
	}

	// The wire amount is absent on some record shapes; the line total is
	// authoritative then. Memorials must already sum to their header
	// amount, which is normally zero.
	lineTotal := m.LineTotal()
	if m.Amount.IsZero() && m.Type != TypeMemorial {
		m.Amount = lineTotal
	} else if lineTotal.Sub(m.Amount).Abs().GreaterThan(models.BalanceTolerance) {
		return Mutation{}, nil, models.NewRecordError(models.CategoryLineTotalMismatch,
			fmt.Errorf("mutation %d: line total %s does not match header amount %s", m.ID, lineTotal, m.Amount), false)
	}

	if m.Type.Invoice() {
		// Payments may lack both references; the classifier demotes them
		// to journal entries for later reconciliation
		if m.InvoiceNumber == "" && m.EntryNumber == "" &&
			(m.Type == TypePurchaseInvoice || m.Type == TypeSalesInvoice) {
			return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference,
				fmt.Errorf("mutation %d has neither an invoice number nor an entry number", m.ID), true)
		}
		if m.InvoiceNumber != "" && m.EntryNumber != "" {
			return Mutation{}, nil, models.NewRecordError(models.CategoryMissingReference,
				fmt.Errorf("mutation %d has both an invoice number and an entry number", m.ID), false)
		}
	}

	return m, warnings, nil
}

// parseDate accepts the two date shapes the APIs produce: plain ISO dates
// and full RFC 3339 timestamps.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("date is empty")
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if date, err := time.Parse(layout, value); err == nil {
			return date.Truncate(24 * time.Hour), nil
		}
	}

	return time.Time{}, fmt.Errorf("date %q is not ISO-8601", value)
}
