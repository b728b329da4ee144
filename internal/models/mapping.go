package models

import (
	"gorm.io/gorm"
)

// AccountMapping is a per-company override that pins an external ledger code
// to an internal account. The external code may be a glob pattern, e.g.
// "49*"; exact matches always win over patterns, patterns are tried in
// ascending priority order.
type AccountMapping struct {
	DefaultModel
	Company      string `gorm:"index"`
	ExternalCode string
	AccountCode  string
	Priority     uint
}

// MappingsForCompany returns all overrides for a company, ordered by
// priority.
func MappingsForCompany(db *gorm.DB, company string) ([]AccountMapping, error) {
	var mappings []AccountMapping
	err := db.Where(&AccountMapping{Company: company}).Order("priority asc").Find(&mappings).Error
	return mappings, err
}
