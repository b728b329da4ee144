// Package eboekhouden talks to the e-Boekhouden bookkeeping service over its
// REST and SOAP APIs and caches the lookup tables needed to translate the
// REST API's numeric IDs back to stable codes.
package eboekhouden

import (
	"github.com/shopspring/decimal"
)

// Source mutation types as they appear on the wire.
const (
	TypeOpeningBalance  = 0
	TypePurchaseInvoice = 1
	TypeSalesInvoice    = 2
	TypeCustomerPayment = 3
	TypeSupplierPayment = 4
	TypeMoneyReceived   = 5
	TypeMoneySent       = 6
	TypeMemorial        = 7
)

// AllTypes lists every source mutation type.
var AllTypes = []int{0, 1, 2, 3, 4, 5, 6, 7}

// LedgerCategory is the category the external ledger assigns to an account.
type LedgerCategory string

const (
	CategoryCash      LedgerCategory = "FIN-cash"
	CategoryBank      LedgerCategory = "FIN-bank"
	CategoryPSP       LedgerCategory = "FIN-psp"
	CategoryDebtors   LedgerCategory = "DEB"
	CategoryCreditors LedgerCategory = "CRED"
	CategoryAsset     LedgerCategory = "BAL-asset"
	CategoryLiability LedgerCategory = "BAL-liability"
	CategoryEquity    LedgerCategory = "BAL-equity"
	CategoryIncome    LedgerCategory = "VW-income"
	CategoryExpense   LedgerCategory = "VW-expense"
	CategoryOther     LedgerCategory = "other"
)

// Financial reports whether the category is one of the FIN money accounts.
func (c LedgerCategory) Financial() bool {
	return c == CategoryCash || c == CategoryBank || c == CategoryPSP
}

// RestMutation is a mutation as the REST API returns it. List calls return
// shallow records without rows; Rows is only populated after a detail fetch.
type RestMutation struct {
	ID            int64             `json:"id"`
	Type          int               `json:"type"`
	Date          string            `json:"date"`
	Description   string            `json:"description"`
	InvoiceNumber string            `json:"invoiceNumber"`
	EntryNumber   string            `json:"entryNumber"`
	LedgerID      int64             `json:"ledgerId"`
	RelationID    int64             `json:"relationId"`
	InExVat       string            `json:"inExVat"`
	TermOfPayment int               `json:"termOfPayment"`
	Amount        decimal.Decimal   `json:"amount"`
	Cancelled     bool              `json:"cancelled"`
	Rows          []RestMutationRow `json:"rows"`
}

// RestMutationRow is one line of a REST mutation. Accounts are numeric IDs
// that must be resolved through the lookup cache.
type RestMutationRow struct {
	LedgerID    int64           `json:"ledgerId"`
	Amount      decimal.Decimal `json:"amount"`
	VatCode     string          `json:"vatCode"`
	VatAmount   decimal.Decimal `json:"vatAmount"`
	Description string          `json:"description"`
}

// SoapMutation is a mutation in the SOAP shape: codes instead of IDs. This is
// also the canonical raw shape the normalizer consumes; REST mutations are
// converted into it by the lookup cache.
type SoapMutation struct {
	MutationNr    int64             `xml:"MutatieNr"`
	Type          int               `xml:"Soort"`
	Date          string            `xml:"Datum"`
	LedgerCode    string            `xml:"Rekening"`
	RelationCode  string            `xml:"RelatieCode"`
	InvoiceNumber string            `xml:"Factuurnummer"`
	EntryNumber   string            `xml:"Boekstuk"`
	Description   string            `xml:"Omschrijving"`
	InExVat       string            `xml:"InExBTW"`
	PaymentTerm   int               `xml:"Betalingstermijn"`
	Amount        decimal.Decimal   `xml:"Bedrag"`
	Cancelled     bool              `xml:"Vervallen"`
	Rows          []SoapMutationRow `xml:"MutatieRegels>cMutatieListRegel"`
}

// SoapMutationRow is one line of a SOAP mutation.
type SoapMutationRow struct {
	CounterAccount string          `xml:"TegenrekeningCode"`
	Amount         decimal.Decimal `xml:"BedragInclBTW"`
	VatCode        string          `xml:"BTWCode"`
	VatAmount      decimal.Decimal `xml:"BTWBedrag"`
	Description    string          `xml:"Omschrijving"`
}

// RawMutation is either-shaped: exactly one of REST and SOAP is set,
// depending on which API served the record.
type RawMutation struct {
	REST *RestMutation
	SOAP *SoapMutation
}

// ExternalID returns the mutation's stable external id.
func (r RawMutation) ExternalID() int64 {
	if r.REST != nil {
		return r.REST.ID
	}
	if r.SOAP != nil {
		return r.SOAP.MutationNr
	}
	return 0
}

// LedgerEntry is one cached row of the external chart of accounts.
type LedgerEntry struct {
	ID       int64
	Code     string
	Name     string
	Category LedgerCategory
}

// RelationKind classifies a cached relation.
type RelationKind string

const (
	RelationCustomer RelationKind = "customer"
	RelationSupplier RelationKind = "supplier"
	RelationUnknown  RelationKind = "unknown"
)

// RelationEntry is one cached external relation.
type RelationEntry struct {
	ID             int64
	Code           string
	Name           string
	Kind           RelationKind
	DefaultAccount string
}

// VATEntry is one cached VAT code.
type VATEntry struct {
	ID         int64
	Code       string
	Percentage decimal.Decimal
}
