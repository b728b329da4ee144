// Package classify decides which target document kind a canonical mutation
// becomes. Classification is a pure function of the mutation and the ledger
// category of its primary account.
package classify

import (
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/mutation"
)

// DocumentKind is the target document a mutation maps to.
type DocumentKind string

const (
	KindOpeningBalance  DocumentKind = "opening-balance"
	KindSalesInvoice    DocumentKind = "sales-invoice"
	KindPurchaseInvoice DocumentKind = "purchase-invoice"
	KindCustomerPayment DocumentKind = "customer-payment"
	KindSupplierPayment DocumentKind = "supplier-payment"
	KindJournalEntry    DocumentKind = "journal-entry"
)

// Verdict is the classification result. Unreconciled marks payments demoted
// to journal entries because they carry no invoice reference at all; the
// reconciliation engine revisits them later.
type Verdict struct {
	Kind         DocumentKind
	Unreconciled bool

	// BankDebit is set for money-received journals, BankCredit for
	// money-sent ones; the builder uses them to place the bank leg.
	BankDebit  bool
	BankCredit bool
}

// Classify maps a mutation to its target document kind. category is the
// ledger category of the mutation's primary account.
func Classify(m mutation.Mutation, category eboekhouden.LedgerCategory) Verdict {
	switch m.Type {
	case mutation.TypeOpeningBalance:
		return Verdict{Kind: KindOpeningBalance}

	case mutation.TypePurchaseInvoice:
		return Verdict{Kind: KindPurchaseInvoice}

	case mutation.TypeSalesInvoice:
		return Verdict{Kind: KindSalesInvoice}

	case mutation.TypeCustomerPayment:
		// A payment without any invoice reference can never be matched;
		// it becomes a journal entry flagged for later reconciliation.
		if m.InvoiceNumber == "" && m.EntryNumber == "" {
			return Verdict{Kind: KindJournalEntry, Unreconciled: true, BankDebit: true}
		}
		return Verdict{Kind: KindCustomerPayment}

	case mutation.TypeSupplierPayment:
		if m.InvoiceNumber == "" && m.EntryNumber == "" {
			return Verdict{Kind: KindJournalEntry, Unreconciled: true, BankCredit: true}
		}
		return Verdict{Kind: KindSupplierPayment}

	case mutation.TypeMoneyReceived:
		return Verdict{Kind: KindJournalEntry, BankDebit: category.Financial()}

	case mutation.TypeMoneySent:
		return Verdict{Kind: KindJournalEntry, BankCredit: category.Financial()}
	}

	return Verdict{Kind: KindJournalEntry}
}
