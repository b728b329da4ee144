package reconcile_test

import (
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"github.com/verenigingen/boekhouden-import/internal/reconcile"
	"gorm.io/gorm"
)

type TestSuiteStandard struct {
	suite.Suite
	db     *gorm.DB
	engine *reconcile.Engine
	party  models.Party
}

func TestStandard(t *testing.T) {
	suite.Run(t, new(TestSuiteStandard))
}

func (suite *TestSuiteStandard) SetupTest() {
	err := models.Connect(":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		log.Fatalf("Database initialization failed with: %#v", err)
	}
	suite.db = models.DB
	suite.engine = reconcile.New(suite.db, uuid.Nil, zerolog.Nop())

	suite.party, err = models.EnsureParty(suite.db, models.PartyCustomer, "M-0001", "Jansen")
	suite.Require().NoError(err)
}

func (suite *TestSuiteStandard) TearDownTest() {
	sqlDB, err := suite.db.DB()
	if err != nil {
		log.Fatalf("Database connection for teardown failed with: %#v", err)
	}
	sqlDB.Close()
}

func (suite *TestSuiteStandard) createInvoice(mutationID int64, number string, total decimal.Decimal, postingDate time.Time) models.Invoice {
	invoice := models.Invoice{
		Kind:                  models.InvoiceSales,
		Company:               "vereniging",
		PartyID:               suite.party.ID,
		PostingDate:           postingDate,
		DueDate:               postingDate.AddDate(0, 0, 30),
		PartyAccount:          "13900",
		Total:                 total,
		DocStatus:             models.DocStatusDraft,
		ExternalMutationID:    mutationID,
		ExternalInvoiceNumber: number,
	}
	suite.Require().NoError(suite.db.Create(&invoice).Error)
	suite.Require().NoError(invoice.Submit(suite.db))

	return invoice
}

func (suite *TestSuiteStandard) createPayment(mutationID int64, invoiceNumber string, amount decimal.Decimal) models.PaymentEntry {
	payment := models.PaymentEntry{
		Company:               "vereniging",
		Direction:             models.PaymentIn,
		PartyKind:             models.PartyCustomer,
		PartyID:               suite.party.ID,
		Amount:                amount,
		PostingDate:           time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
		BankAccount:           "1010",
		Title:                 "Payment",
		DocStatus:             models.DocStatusDraft,
		ExternalMutationID:    mutationID,
		ExternalInvoiceNumber: invoiceNumber,
	}
	suite.Require().NoError(suite.db.Create(&payment).Error)
	suite.Require().NoError(payment.Submit(suite.db))

	return payment
}

func (suite *TestSuiteStandard) TestReconcileExplicitInvoiceNumber() {
	invoice := suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(50), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	payment := suite.createPayment(2, "F-2019-001", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Matched)
	suite.Assert().Equal(uint(0), stats.Unreconciled)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Require().Len(reloaded.References, 1)
	suite.Assert().Equal(invoice.ID, reloaded.References[0].InvoiceID)
	suite.Assert().True(reloaded.References[0].Allocated.Equal(decimal.NewFromInt(50)))

	suite.Require().NoError(suite.db.First(&invoice, "id = ?", invoice.ID).Error)
	suite.Assert().True(invoice.Outstanding.IsZero())
}

func (suite *TestSuiteStandard) TestReconcileUnknownInvoiceNumber() {
	payment := suite.createPayment(2, "F-2019-999", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Unreconciled)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Assert().Equal("[UNRECONCILED] Payment", reloaded.Title)
	suite.Assert().Contains(reloaded.Remarks, "Unreconciled Invoice: F-2019-999")
	suite.Assert().False(reloaded.Reconciled())
}

func (suite *TestSuiteStandard) TestReconcileExactAmountOldestFirst() {
	older := suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(50), time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	suite.createInvoice(2, "F-2019-002", decimal.NewFromInt(50), time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC))
	payment := suite.createPayment(3, "", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Matched)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Require().Len(reloaded.References, 1)
	suite.Assert().Equal(older.ID, reloaded.References[0].InvoiceID)
}

func (suite *TestSuiteStandard) TestReconcileSubsetMatch() {
	suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(30), time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	suite.createInvoice(2, "F-2019-002", decimal.NewFromInt(20), time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC))
	payment := suite.createPayment(3, "", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Matched)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Assert().Len(reloaded.References, 2)

	var open []models.Invoice
	suite.Require().NoError(suite.db.Where("outstanding > 0").Find(&open).Error)
	suite.Assert().Empty(open)
}

func (suite *TestSuiteStandard) TestReconcileAmbiguousSubset() {
	suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(30), time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	suite.createInvoice(2, "F-2019-002", decimal.NewFromInt(30), time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.createInvoice(3, "F-2019-003", decimal.NewFromInt(20), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	payment := suite.createPayment(4, "", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Unreconciled)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Assert().False(reloaded.Reconciled())
}

func (suite *TestSuiteStandard) TestReconcileSecondPassIsNoop() {
	suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(50), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	suite.createPayment(2, "F-2019-001", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Require().Equal(uint(1), stats.Matched)

	stats, err = suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(reconcile.Stats{}, stats)

	var count int64
	suite.db.Model(&models.PaymentReference{}).Count(&count)
	suite.Assert().Equal(int64(1), count)
}

func (suite *TestSuiteStandard) TestReconcileClearsMarkerOnLaterMatch() {
	payment := suite.createPayment(2, "F-2019-001", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Require().Equal(uint(1), stats.Unreconciled)

	// The invoice arrives in a later run
	suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(50), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))

	stats, err = suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Matched)

	reloaded, err := models.PaymentByMutationID(suite.db, payment.ExternalMutationID)
	suite.Require().NoError(err)
	suite.Assert().Equal("Payment", reloaded.Title)
	suite.Assert().True(reloaded.Reconciled())
}

func (suite *TestSuiteStandard) TestReconcilePartialAmountStaysOpen() {
	invoice := suite.createInvoice(1, "F-2019-001", decimal.NewFromInt(80), time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	suite.createPayment(2, "F-2019-001", decimal.NewFromInt(50))

	stats, err := suite.engine.ReconcilePayments("vereniging")
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), stats.Matched)

	suite.Require().NoError(suite.db.First(&invoice, "id = ?", invoice.ID).Error)
	suite.Assert().True(invoice.Outstanding.Equal(decimal.NewFromInt(30)))
}
