package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Connect opens the SQLite database and configures the connection pool.
func Connect(dsn string) error {
	config := &gorm.Config{
		Logger: &logger{
			Logger: log.Logger,
		},
		// Set generated timestamps in UTC
		NowFunc: func() time.Time {
			return time.Now().In(time.UTC)
		},
	}

	db, err := gorm.Open(sqlite.Open(dsn), config)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database object: %w", err)
	}

	// Get new connections after one hour
	sqlDB.SetConnMaxLifetime(time.Hour)

	// This is done to prevent SQLITE_BUSY errors. It also makes the
	// "single active run per company" check race-free: there is only ever
	// one writer.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	err = migrate(db)
	if err != nil {
		return err
	}

	// Query callbacks
	err = db.Callback().Query().After("*").Register("boekhouden_import:after_query", queryCallback)
	if err != nil {
		return err
	}

	// Create callbacks
	err = db.Callback().Create().After("*").Register("boekhouden_import:after_create", createUpdateCallback)
	if err != nil {
		return err
	}

	// Update callbacks
	err = db.Callback().Update().After("*").Register("boekhouden_import:after_update", createUpdateCallback)
	if err != nil {
		return err
	}

	// Set the exported variable
	DB = db

	return nil
}

// queryCallback replaces the generic "no record" error with a more user
// friendly one
func queryCallback(db *gorm.DB) {
	if errors.Is(db.Error, gorm.ErrRecordNotFound) {
		// Use the table name as information about the type of resource
		// and replace "_" with "[space]"
		name := strings.ReplaceAll(db.Statement.Table, "_", " ")

		// Replace pluralized "ies" with "y"
		match := regexp.MustCompile("ies$")
		name = match.ReplaceAllString(name, "y")

		// Remove plural "s"
		name = strings.TrimRight(name, "s")

		db.Error = fmt.Errorf("%w %s matching your query", ErrResourceNotFound, name)
	}
}

// createUpdateCallback inspects errors returned by the database for create
// and update calls and replaces them with user friendly ones
func createUpdateCallback(db *gorm.DB) {
	if db.Error == nil {
		return
	}

	msg := db.Error.Error()

	// Account codes are globally unique
	if strings.Contains(msg, "UNIQUE constraint failed: accounts.code") {
		db.Error = ErrAccountCodeNotUnique
	}

	// Relation codes are unique per party kind. The builder relies on this
	// error to re-read a concurrently created party.
	if strings.Contains(msg, "UNIQUE constraint failed: parties.kind, parties.relation_code") {
		db.Error = ErrPartyNotUnique
	}

	// Idempotency: one document per (kind, external mutation id) ...
	if strings.Contains(msg, "invoices.kind, invoices.external_mutation_id") ||
		strings.Contains(msg, "payment_entries.external_mutation_id") ||
		strings.Contains(msg, "journal_entries.kind, journal_entries.external_mutation_id") {
		db.Error = ErrMutationIDNotUnique
	}

	// ... and one invoice per (kind, external invoice number)
	if strings.Contains(msg, "invoices.kind, invoices.external_invoice_number") {
		db.Error = ErrInvoiceNumberNotUnique
	}
}

// migrate migrates all models to the schema defined in the code.
func migrate(db *gorm.DB) (err error) {
	err = db.AutoMigrate(
		Account{},
		AccountMapping{},
		Party{},
		Invoice{},
		InvoiceLine{},
		PaymentEntry{},
		PaymentReference{},
		JournalEntry{},
		JournalLine{},
		ImportRun{},
		FailedRecord{},
	)
	if err != nil {
		return fmt.Errorf("error during DB migration: %w", err)
	}

	return nil
}
