package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// PartyKind distinguishes customers from suppliers. The same relation code
// may exist once per kind.
type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartySupplier PartyKind = "supplier"
)

// Party is the durable mapping between an external relation and the internal
// accounting party. The relation code is the canonical name; the display
// name from the external ledger is secondary and never overwrites an
// existing name.
type Party struct {
	DefaultModel
	Kind         PartyKind `gorm:"uniqueIndex:party_kind_relation_code"`
	RelationCode string    `gorm:"uniqueIndex:party_kind_relation_code"`
	DisplayName  string
}

// BeforeSave trims whitespace from all strings.
func (p *Party) BeforeSave(_ *gorm.DB) error {
	p.RelationCode = strings.TrimSpace(p.RelationCode)
	p.DisplayName = strings.TrimSpace(p.DisplayName)

	return nil
}

// PartyByRelationCode returns the party for a relation code and kind.
func PartyByRelationCode(db *gorm.DB, kind PartyKind, code string) (Party, error) {
	var party Party
	err := db.Where(&Party{Kind: kind, RelationCode: code}).First(&party).Error
	return party, err
}

// EnsureParty returns the existing party for (kind, relation code) or creates
// it. Creation races are resolved by the unique index: a duplicate-insert
// error triggers a re-read of the winning row.
func EnsureParty(db *gorm.DB, kind PartyKind, code, displayName string) (Party, error) {
	party, err := PartyByRelationCode(db, kind, code)
	if err == nil {
		return party, nil
	}
	if !errors.Is(err, ErrResourceNotFound) {
		return Party{}, err
	}

	party = Party{Kind: kind, RelationCode: code, DisplayName: displayName}
	err = db.Create(&party).Error
	if err != nil {
		if errors.Is(err, ErrPartyNotUnique) {
			return PartyByRelationCode(db, kind, code)
		}
		return Party{}, err
	}

	return party, nil
}
