// Package mutation defines the canonical mutation shape every downstream
// component consumes, and the normalizer that produces it from raw API
// records.
package mutation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the source mutation type. The numeric values are fixed on the
// wire.
type Type int

const (
	TypeOpeningBalance Type = iota
	TypePurchaseInvoice
	TypeSalesInvoice
	TypeCustomerPayment
	TypeSupplierPayment
	TypeMoneyReceived
	TypeMoneySent
	TypeMemorial
)

func (t Type) String() string {
	switch t {
	case TypeOpeningBalance:
		return "opening-balance"
	case TypePurchaseInvoice:
		return "purchase-invoice"
	case TypeSalesInvoice:
		return "sales-invoice"
	case TypeCustomerPayment:
		return "customer-payment"
	case TypeSupplierPayment:
		return "supplier-payment"
	case TypeMoneyReceived:
		return "money-received"
	case TypeMoneySent:
		return "money-sent"
	case TypeMemorial:
		return "memorial"
	}

	return "unknown"
}

// Invoice reports whether the type creates or settles an invoice. These
// types carry at most one of invoice number and entry number; the invoice
// types additionally require one to be present.
func (t Type) Invoice() bool {
	switch t {
	case TypePurchaseInvoice, TypeSalesInvoice, TypeCustomerPayment, TypeSupplierPayment:
		return true
	}

	return false
}

// Mutation is one canonical transaction from the source ledger. All ids have
// been resolved to codes by the time a Mutation exists.
type Mutation struct {
	ID              int64
	Date            time.Time
	Type            Type
	Description     string
	InvoiceNumber   string
	EntryNumber     string
	LedgerCode      string
	RelationCode    string
	InclVAT         bool
	PaymentTermDays int
	Amount          decimal.Decimal
	Cancelled       bool
	Lines           []Line
}

// Line is one row of a mutation. The counter account code must resolve to an
// active internal account at build time.
type Line struct {
	CounterAccount string
	Amount         decimal.Decimal
	VATCode        string
	VATAmount      decimal.Decimal
	Description    string
}

// LineTotal returns the sum of all line amounts.
func (m Mutation) LineTotal() decimal.Decimal {
	var total decimal.Decimal
	for _, line := range m.Lines {
		total = total.Add(line.Amount)
	}

	return total
}
