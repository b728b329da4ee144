// Package config loads the import configuration from a TOML file with
// environment variable overrides for the credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds every recognized option.
type Config struct {
	// External ledger access
	APIURL            string `toml:"api_url" validate:"required,url"`
	APIToken          string `toml:"api_token" validate:"required"`
	SoapURL           string `toml:"soap_url" validate:"omitempty,url"`
	SoapUsername      string `toml:"soap_username"`
	SoapSecurityCode1 string `toml:"soap_security_code_1"`
	SoapSecurityCode2 string `toml:"soap_security_code_2"`

	// Document defaults
	DefaultCompany            string `toml:"default_company" validate:"required"`
	DefaultCostCenter         string `toml:"default_cost_center"`
	ReceivableAccountForSales string `toml:"receivable_account_for_sales"`
	PayableAccount            string `toml:"payable_account"`
	DefaultBankAccount        string `toml:"default_bank_account"`
	ItemForIncome             string `toml:"item_for_income"`
	ItemForExpense            string `toml:"item_for_expense"`
	FallbackCounterAccount    string `toml:"fallback_counter_account"`
	OpeningBalanceDate        string `toml:"opening_balance_date" validate:"omitempty,datetime=2006-01-02"`

	// Paging
	BatchSize int `toml:"batch_size" validate:"gte=0,lte=2000"`

	// Process
	Database string `toml:"database"`
	Bind     string `toml:"bind"`

	// Seeded resources
	Accounts        []SeedAccount `toml:"account" validate:"dive"`
	AccountMappings []SeedMapping `toml:"account_mapping" validate:"dive"`
	Uncategorized   Uncategorized `toml:"uncategorized"`
}

// SeedAccount is one internal chart-of-accounts row ensured at startup.
type SeedAccount struct {
	Code     string `toml:"code" validate:"required"`
	Name     string `toml:"name" validate:"required"`
	RootType string `toml:"root_type" validate:"required,oneof=asset liability equity income expense"`
}

// SeedMapping is one account mapping row ensured at startup.
type SeedMapping struct {
	ExternalCode string `toml:"external_code" validate:"required"`
	Account      string `toml:"account" validate:"required"`
	Priority     uint   `toml:"priority"`
}

// Uncategorized names the fallback account per root type.
type Uncategorized struct {
	Asset     string `toml:"asset"`
	Liability string `toml:"liability"`
	Equity    string `toml:"equity"`
	Income    string `toml:"income"`
	Expense   string `toml:"expense"`
}

// Load reads the TOML file at path and applies environment overrides. The
// credentials can live outside the file: EB_API_TOKEN, EB_SOAP_USERNAME,
// EB_SOAP_SECURITY_CODE_1 and EB_SOAP_SECURITY_CODE_2 take precedence.
func Load(path string) (Config, error) {
	config := Config{
		Database: "data/import.db",
		Bind:     ":8080",
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	if token, ok := os.LookupEnv("EB_API_TOKEN"); ok {
		config.APIToken = token
	}
	if username, ok := os.LookupEnv("EB_SOAP_USERNAME"); ok {
		config.SoapUsername = username
	}
	if code, ok := os.LookupEnv("EB_SOAP_SECURITY_CODE_1"); ok {
		config.SoapSecurityCode1 = code
	}
	if code, ok := os.LookupEnv("EB_SOAP_SECURITY_CODE_2"); ok {
		config.SoapSecurityCode2 = code
	}

	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// OpeningDate returns the configured opening balance date, zero when unset.
func (c Config) OpeningDate() time.Time {
	if c.OpeningBalanceDate == "" {
		return time.Time{}
	}

	date, err := time.Parse("2006-01-02", c.OpeningBalanceDate)
	if err != nil {
		// Load validated the format already
		return time.Time{}
	}

	return date
}

// SoapConfigured reports whether the SOAP fallback credentials are complete.
func (c Config) SoapConfigured() bool {
	return c.SoapURL != "" && c.SoapUsername != "" && c.SoapSecurityCode1 != "" && c.SoapSecurityCode2 != ""
}
