package models_test

import (
	"github.com/verenigingen/boekhouden-import/internal/models"
)

func (suite *TestSuiteStandard) TestAccountTrimWhitespace() {
	account := models.Account{
		Code:     " 13900\t",
		Name:     " Debtors ",
		RootType: models.RootTypeAsset,
		Active:   true,
	}

	err := suite.db.Create(&account).Error
	suite.Require().NoError(err)

	suite.Assert().Equal("13900", account.Code)
	suite.Assert().Equal("Debtors", account.Name)
}

func (suite *TestSuiteStandard) TestAccountDuplicateCodes() {
	_ = suite.createTestAccount("13900", models.RootTypeAsset)

	duplicate := models.Account{
		Code:     "13900",
		Name:     "Also debtors",
		RootType: models.RootTypeAsset,
		Active:   true,
	}

	err := suite.db.Create(&duplicate).Error
	suite.Assert().ErrorIs(err, models.ErrAccountCodeNotUnique)
}

func (suite *TestSuiteStandard) TestAccountByCode() {
	_ = suite.createTestAccount("8000", models.RootTypeIncome)

	account, err := models.AccountByCode(suite.db, "8000")
	suite.Require().NoError(err)
	suite.Assert().Equal(models.RootTypeIncome, account.RootType)
}

func (suite *TestSuiteStandard) TestAccountByCodeNotFound() {
	_, err := models.AccountByCode(suite.db, "0000")
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
}

func (suite *TestSuiteStandard) TestAccountByCodeInactive() {
	account := models.Account{
		Code:     "4400",
		Name:     "Retired account",
		RootType: models.RootTypeLiability,
		Active:   false,
	}
	suite.Require().NoError(suite.db.Create(&account).Error)

	_, err := models.AccountByCode(suite.db, "4400")
	suite.Assert().ErrorIs(err, models.ErrResourceNotFound)
}

func (suite *TestSuiteStandard) TestRootTypeForCode() {
	tests := []struct {
		code     string
		rootType models.RootType
	}{
		{"0100", models.RootTypeAsset},
		{"13900", models.RootTypeAsset},
		{"2000", models.RootTypeEquity},
		{"3000", models.RootTypeLiability},
		{"44002", models.RootTypeLiability},
		{"5500", models.RootTypeLiability},
		{"6100", models.RootTypeLiability},
		{"7000", models.RootTypeIncome},
		{"8100", models.RootTypeExpense},
		{"9999", models.RootTypeExpense},
		{"", models.RootTypeUnknown},
		{"X100", models.RootTypeUnknown},
	}

	for _, tt := range tests {
		suite.Assert().Equal(tt.rootType, models.RootTypeForCode(tt.code), "code %q", tt.code)
	}
}
