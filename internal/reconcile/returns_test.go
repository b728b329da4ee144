package reconcile_test

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/reconcile"
)

func (suite *TestSuiteStandard) TestParseReturnFile() {
	file := strings.NewReader("member_id,amount,return_reason,return_code\n" +
		"M-0001,50.00,Insufficient funds,AM04\n" +
		"M-0002,12.50,Account closed,AC04\n")

	records, err := reconcile.ParseReturnFile(file)
	suite.Require().NoError(err)
	suite.Require().Len(records, 2)

	suite.Assert().Equal("M-0001", records[0].MemberID)
	suite.Assert().True(records[0].Amount.Equal(decimal.RequireFromString("50.00")))
	suite.Assert().Equal("Insufficient funds", records[0].Reason)
	suite.Assert().Equal("AM04", records[0].Code)
	suite.Assert().Equal("AC04", records[1].Code)
}

func (suite *TestSuiteStandard) TestParseReturnFileEmpty() {
	records, err := reconcile.ParseReturnFile(strings.NewReader(""))
	suite.Require().NoError(err)
	suite.Assert().Empty(records)
}

func (suite *TestSuiteStandard) TestParseReturnFileBadAmount() {
	file := strings.NewReader("member_id,amount,return_reason,return_code\n" +
		"M-0001,fifty,Insufficient funds,AM04\n")

	_, err := reconcile.ParseReturnFile(file)
	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), "line 2")
	suite.Assert().Contains(err.Error(), "decimal")
}

func (suite *TestSuiteStandard) TestParseReturnFileNegativeAmount() {
	file := strings.NewReader("member_id,amount,return_reason,return_code\n" +
		"M-0001,-50.00,Insufficient funds,AM04\n")

	_, err := reconcile.ParseReturnFile(file)
	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), "must be positive")
}

func (suite *TestSuiteStandard) TestParseReturnFileWrongColumnCount() {
	file := strings.NewReader("member_id,amount,return_reason,return_code\n" +
		"M-0001,50.00,Insufficient funds\n")

	_, err := reconcile.ParseReturnFile(file)
	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), "line 2")
}

// settledInvoice builds an invoice settled by a reconciled payment, the
// starting state for every return.
func (suite *TestSuiteStandard) settledInvoice() (models.Invoice, models.PaymentEntry) {
	invoice := suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(50), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	payment := suite.createPayment(2, "F-2019-001", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Require().Equal(uint(1), stats.Matched)

	return invoice, payment
}

func (suite *TestSuiteStandard) TestLedgerBatchSource() {
	suite.settledInvoice()

	entry, err := reconcile.NewLedgerBatchSource(suite.db).EntryForMember("M-0001", decimal.NewFromInt(50))
	suite.Require().NoError(err)
	suite.Assert().Equal("M-0001", entry.RelationCode)
	suite.Assert().Equal("F-2019-001", entry.InvoiceNumber)
}

func (suite *TestSuiteStandard) TestLedgerBatchSourceUnknownMember() {
	_, err := reconcile.NewLedgerBatchSource(suite.db).EntryForMember("M-9999", decimal.NewFromInt(50))
	suite.Assert().Error(err)
}

func (suite *TestSuiteStandard) TestProcessReturns() {
	invoice, payment := suite.settledInvoice()

	records := []reconcile.ReturnRecord{
		{MemberID: "M-0001", Amount: decimal.NewFromInt(50), Reason: "Insufficient funds", Code: "AM04"},
	}

	stats, err := suite.engine.ProcessReturns("vereniging", records, reconcile.NewLedgerBatchSource(suite.db))
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Reversed)
	suite.Assert().Equal(uint(0), stats.Failed)

	// The payment is cancelled
	var reloaded models.PaymentEntry
	suite.Require().NoError(suite.db.First(&reloaded, "id = ?", payment.ID).Error)
	suite.Assert().Equal(models.DocStatusCancelled, reloaded.DocStatus)

	// The invoice is open again
	suite.Require().NoError(suite.db.First(&invoice, "id = ?", invoice.ID).Error)
	suite.Assert().True(invoice.Outstanding.Equal(decimal.NewFromInt(50)))

	// The reference is gone, even for unscoped queries
	var count int64
	suite.db.Unscoped().Model(&models.PaymentReference{}).Count(&count)
	suite.Assert().Equal(int64(0), count)

	// The reversal journal books the money back out of the bank
	journal, err := models.JournalByMutationID(suite.db, models.JournalGeneral, -payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Assert().Equal(models.DocStatusSubmitted, journal.DocStatus)
	suite.Assert().Contains(journal.Remark, "AM04")

	var lines []models.JournalLine
	suite.Require().NoError(suite.db.Where("journal_entry_id = ?", journal.ID).Find(&lines).Error)
	suite.Require().Len(lines, 2)

	byAccount := map[string]models.JournalLine{}
	for _, line := range lines {
		byAccount[line.AccountCode] = line
	}
	suite.Assert().True(byAccount["13900"].Debit.Equal(decimal.NewFromInt(50)))
	suite.Assert().True(byAccount["1010"].Credit.Equal(decimal.NewFromInt(50)))
}

func (suite *TestSuiteStandard) TestProcessReturnsUnknownMember() {
	suite.settledInvoice()

	records := []reconcile.ReturnRecord{
		{MemberID: "M-9999", Amount: decimal.NewFromInt(50), Reason: "Account closed", Code: "AC04"},
	}

	stats, err := suite.engine.ProcessReturns("vereniging", records, reconcile.NewLedgerBatchSource(suite.db))
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Failed)

	// Nothing was reversed and the failure is on record
	var failures []models.FailedRecord
	suite.Require().NoError(suite.db.Find(&failures).Error)
	suite.Require().Len(failures, 1)
	suite.Assert().Equal(models.CategoryReconciliationFailed, failures[0].ErrorCategory)
	suite.Assert().Equal("sepa-return", failures[0].RecordKind)
}
