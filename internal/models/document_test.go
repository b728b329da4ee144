package models_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

func (suite *TestSuiteStandard) testInvoice(kind models.InvoiceKind, mutationID int64, number string) models.Invoice {
	party := suite.createTestParty(models.PartyCustomer, "M-1000")

	invoice := models.Invoice{
		Kind:                  kind,
		Company:               "vereniging",
		PartyID:               party.ID,
		PostingDate:           time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:               time.Date(2019, 3, 31, 0, 0, 0, 0, time.UTC),
		PartyAccount:          "13900",
		Total:                 decimal.NewFromInt(50),
		DocStatus:             models.DocStatusDraft,
		ExternalMutationID:    mutationID,
		ExternalInvoiceNumber: number,
	}

	suite.Require().NoError(suite.db.Create(&invoice).Error)
	return invoice
}

func (suite *TestSuiteStandard) TestInvoiceDuplicateMutationID() {
	_ = suite.testInvoice(models.InvoiceSales, 100, "F-100")

	duplicate := models.Invoice{
		Kind:                  models.InvoiceSales,
		ExternalMutationID:    100,
		ExternalInvoiceNumber: "F-101",
	}
	err := suite.db.Create(&duplicate).Error
	suite.Assert().ErrorIs(err, models.ErrMutationIDNotUnique)
}

func (suite *TestSuiteStandard) TestInvoiceDuplicateNumber() {
	_ = suite.testInvoice(models.InvoicePurchase, 200, "INK-1")

	duplicate := models.Invoice{
		Kind:                  models.InvoicePurchase,
		ExternalMutationID:    201,
		ExternalInvoiceNumber: "INK-1",
	}
	err := suite.db.Create(&duplicate).Error
	suite.Assert().ErrorIs(err, models.ErrInvoiceNumberNotUnique)
}

func (suite *TestSuiteStandard) TestInvoiceUniquePerKind() {
	_ = suite.testInvoice(models.InvoiceSales, 300, "DOC-1")

	// The same mutation id and number may exist for the other kind
	other := models.Invoice{
		Kind:                  models.InvoicePurchase,
		ExternalMutationID:    300,
		ExternalInvoiceNumber: "DOC-1",
	}
	suite.Assert().NoError(suite.db.Create(&other).Error)
}

func (suite *TestSuiteStandard) TestInvoiceSubmit() {
	invoice := suite.testInvoice(models.InvoiceSales, 400, "F-400")

	suite.Require().NoError(invoice.Submit(suite.db))
	suite.Assert().Equal(models.DocStatusSubmitted, invoice.DocStatus)
	suite.Assert().True(invoice.Outstanding.Equal(invoice.Total))

	// A second submit is rejected
	suite.Assert().ErrorIs(invoice.Submit(suite.db), models.ErrDocumentNotSubmittable)
}

func (suite *TestSuiteStandard) TestOpenInvoicesOldestFirst() {
	party := suite.createTestParty(models.PartyCustomer, "M-2000")

	for i, date := range []time.Time{
		time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
	} {
		invoice := models.Invoice{
			Kind:                  models.InvoiceSales,
			PartyID:               party.ID,
			PostingDate:           date,
			Total:                 decimal.NewFromInt(10),
			DocStatus:             models.DocStatusDraft,
			ExternalMutationID:    int64(500 + i),
			ExternalInvoiceNumber: "",
		}
		invoice.ExternalInvoiceNumber = invoice.PostingDate.Format("F-2006-01")
		suite.Require().NoError(suite.db.Create(&invoice).Error)
		suite.Require().NoError(invoice.Submit(suite.db))
	}

	open, err := models.OpenInvoicesForParty(suite.db, models.InvoiceSales, party.ID)
	suite.Require().NoError(err)
	suite.Require().Len(open, 3)
	suite.Assert().Equal("F-2019-01", open[0].ExternalInvoiceNumber)
	suite.Assert().Equal("F-2019-03", open[1].ExternalInvoiceNumber)
	suite.Assert().Equal("F-2019-05", open[2].ExternalInvoiceNumber)
}

func (suite *TestSuiteStandard) TestPaymentDuplicateMutationID() {
	payment := models.PaymentEntry{
		Direction:          models.PaymentIn,
		Amount:             decimal.NewFromInt(25),
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: 600,
	}
	suite.Require().NoError(suite.db.Create(&payment).Error)

	duplicate := models.PaymentEntry{
		Direction:          models.PaymentIn,
		ExternalMutationID: 600,
	}
	err := suite.db.Create(&duplicate).Error
	suite.Assert().ErrorIs(err, models.ErrMutationIDNotUnique)
}

func (suite *TestSuiteStandard) TestPaymentCancel() {
	payment := models.PaymentEntry{
		Direction:          models.PaymentIn,
		Amount:             decimal.NewFromInt(25),
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: 601,
	}
	suite.Require().NoError(suite.db.Create(&payment).Error)

	// Drafts cannot be cancelled
	suite.Assert().ErrorIs(payment.Cancel(suite.db), models.ErrDocumentNotCancellable)

	suite.Require().NoError(payment.Submit(suite.db))
	suite.Require().NoError(payment.Cancel(suite.db))
	suite.Assert().Equal(models.DocStatusCancelled, payment.DocStatus)
}

func (suite *TestSuiteStandard) TestUnreconciledPayments() {
	party := suite.createTestParty(models.PartyCustomer, "M-3000")

	withReference := models.PaymentEntry{
		Company:            "vereniging",
		Direction:          models.PaymentIn,
		PartyID:            party.ID,
		Amount:             decimal.NewFromInt(10),
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: 700,
	}
	suite.Require().NoError(suite.db.Create(&withReference).Error)
	suite.Require().NoError(withReference.Submit(suite.db))

	invoice := suite.testInvoice(models.InvoiceSales, 701, "F-701")
	reference := models.PaymentReference{
		PaymentEntryID: withReference.ID,
		InvoiceID:      invoice.ID,
		InvoiceNumber:  invoice.ExternalInvoiceNumber,
		Allocated:      decimal.NewFromInt(10),
	}
	suite.Require().NoError(suite.db.Create(&reference).Error)

	without := models.PaymentEntry{
		Company:            "vereniging",
		Direction:          models.PaymentIn,
		PartyID:            party.ID,
		Amount:             decimal.NewFromInt(20),
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: 702,
	}
	suite.Require().NoError(suite.db.Create(&without).Error)
	suite.Require().NoError(without.Submit(suite.db))

	payments, err := models.UnreconciledPayments(suite.db, "vereniging")
	suite.Require().NoError(err)
	suite.Require().Len(payments, 1)
	suite.Assert().Equal(int64(702), payments[0].ExternalMutationID)
}

func (suite *TestSuiteStandard) TestJournalBalanced() {
	journal := models.JournalEntry{
		Lines: []models.JournalLine{
			{AccountCode: "1000", Debit: decimal.NewFromInt(100)},
			{AccountCode: "8000", Credit: decimal.NewFromFloat(99.995)},
		},
	}
	suite.Assert().True(journal.Balanced())

	journal.Lines[1].Credit = decimal.NewFromFloat(99.50)
	suite.Assert().False(journal.Balanced())
}

func (suite *TestSuiteStandard) TestJournalDuplicatePerKind() {
	journal := models.JournalEntry{
		Kind:               models.JournalGeneral,
		DocStatus:          models.DocStatusDraft,
		ExternalMutationID: 800,
	}
	suite.Require().NoError(suite.db.Create(&journal).Error)

	duplicate := models.JournalEntry{
		Kind:               models.JournalGeneral,
		ExternalMutationID: 800,
	}
	suite.Assert().ErrorIs(suite.db.Create(&duplicate).Error, models.ErrMutationIDNotUnique)

	// The opening kind has its own id space
	opening := models.JournalEntry{
		Kind:               models.JournalOpening,
		ExternalMutationID: 800,
	}
	suite.Assert().NoError(suite.db.Create(&opening).Error)
}
