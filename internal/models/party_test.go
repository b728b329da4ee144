package models_test

import (
	"github.com/verenigingen/boekhouden-import/internal/models"
)

func (suite *TestSuiteStandard) TestEnsurePartyIdempotent() {
	first, err := models.EnsureParty(suite.db, models.PartyCustomer, "M-0001", "Jansen")
	suite.Require().NoError(err)

	second, err := models.EnsureParty(suite.db, models.PartyCustomer, "M-0001", "A different name")
	suite.Require().NoError(err)

	suite.Assert().Equal(first.ID, second.ID)

	// The display name of the winning row is kept
	suite.Assert().Equal("Jansen", second.DisplayName)
}

func (suite *TestSuiteStandard) TestEnsurePartyPerKind() {
	customer, err := models.EnsureParty(suite.db, models.PartyCustomer, "R-1", "Relation 1")
	suite.Require().NoError(err)

	// The same relation code may exist once per kind
	supplier, err := models.EnsureParty(suite.db, models.PartySupplier, "R-1", "Relation 1")
	suite.Require().NoError(err)

	suite.Assert().NotEqual(customer.ID, supplier.ID)
}

func (suite *TestSuiteStandard) TestPartyDuplicateInsert() {
	_ = suite.createTestParty(models.PartyCustomer, "M-0002")

	duplicate := models.Party{Kind: models.PartyCustomer, RelationCode: "M-0002"}
	err := suite.db.Create(&duplicate).Error
	suite.Assert().ErrorIs(err, models.ErrPartyNotUnique)
}

func (suite *TestSuiteStandard) TestPartyByRelationCodeNotFound() {
	_, err := models.PartyByRelationCode(suite.db, models.PartySupplier, "missing")
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
}
