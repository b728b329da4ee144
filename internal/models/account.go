package models

import (
	"strings"

	"gorm.io/gorm"
)

// RootType is the fundamental balance-sheet or P&L classification of an
// internal account.
type RootType string

const (
	RootTypeAsset     RootType = "asset"
	RootTypeLiability RootType = "liability"
	RootTypeEquity    RootType = "equity"
	RootTypeIncome    RootType = "income"
	RootTypeExpense   RootType = "expense"
	RootTypeUnknown   RootType = "unknown"
)

// Account is an internal ledger account. Target documents only ever refer to
// accounts by code, never by row ID, so that the chart can be re-seeded
// without touching documents.
type Account struct {
	DefaultModel
	Code     string `gorm:"uniqueIndex"`
	Name     string
	RootType RootType
	Active   bool
}

// BeforeSave trims whitespace from all strings.
func (a *Account) BeforeSave(_ *gorm.DB) error {
	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)

	return nil
}

// AccountByCode returns the active account with the given code.
func AccountByCode(db *gorm.DB, code string) (Account, error) {
	var account Account
	err := db.Where(&Account{Code: code, Active: true}).First(&account).Error
	return account, err
}

// RootTypeForCode derives the root type from the first digit of a numeric
// account code, following the Dutch decimal chart convention: 0xxx/1xxx
// asset, 2xxx equity, 3xxx-6xxx liability, 7xxx income, 8xxx/9xxx expense.
func RootTypeForCode(code string) RootType {
	if code == "" {
		return RootTypeUnknown
	}

	switch code[0] {
	case '0', '1':
		return RootTypeAsset
	case '2':
		return RootTypeEquity
	case '3', '4', '5', '6':
		return RootTypeLiability
	case '7':
		return RootTypeIncome
	case '8', '9':
		return RootTypeExpense
	}

	return RootTypeUnknown
}
