// Package resolve maps external ledger codes and categories to internal
// accounts. Resolution is layered: explicit per-company overrides win, then
// category mappings, then the Dutch code-range heuristic, then a configured
// uncategorized account per root type.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ryanuber/go-glob"
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
	"github.com/verenigingen/boekhouden-import/internal/models"
	"gorm.io/gorm"
)

// Default internal account codes. 13900 holds general sales receivables;
// 13500 is reserved for membership contribution receivables and is only
// reachable through an explicit override.
const (
	DefaultReceivable       = "13900"
	ContributionsReceivable = "13500"
)

// Config sets the configurable account defaults.
type Config struct {
	ReceivableForSales string // defaults to DefaultReceivable
	Payable            string
	DefaultBank        string
	DefaultCostCenter  string

	// Uncategorized is the fallback account per root type.
	Uncategorized map[models.RootType]string
}

// Resolution is a resolved internal account reference.
type Resolution struct {
	AccountCode string
	RootType    models.RootType
}

// Resolver resolves external account codes for one company. The override
// table is loaded once; the resolver is read-only afterwards. Account
// lookups run on the transaction the caller passes in, so resolution works
// inside the builder's per-mutation transaction on a single-connection pool.
type Resolver struct {
	cache    *eboekhouden.Cache
	company  string
	cfg      Config
	mappings []models.AccountMapping
}

// New loads the company's override table and returns a resolver.
func New(db *gorm.DB, cache *eboekhouden.Cache, company string, cfg Config) (*Resolver, error) {
	if cfg.ReceivableForSales == "" {
		cfg.ReceivableForSales = DefaultReceivable
	}

	mappings, err := models.MappingsForCompany(db, company)
	if err != nil {
		return nil, fmt.Errorf("loading account mappings: %w", err)
	}

	return &Resolver{
		cache:    cache,
		company:  company,
		cfg:      cfg,
		mappings: mappings,
	}, nil
}

// Resolve maps an external ledger code to an internal account. Lookups run
// on tx; description feeds the keyword refinement of the code-range
// heuristic.
func (r *Resolver) Resolve(tx *gorm.DB, externalCode string, description string) (Resolution, error) {
	var category eboekhouden.LedgerCategory
	if ledger, ok := r.cache.Ledger(externalCode); ok {
		category = ledger.Category
	}

	// 1. Explicit override
	if code, ok := r.override(externalCode); ok {
		return r.resolution(tx, code, externalCode)
	}

	// 2. Category mapping
	switch category {
	case eboekhouden.CategoryDebtors:
		return r.resolution(tx, r.cfg.ReceivableForSales, externalCode)
	case eboekhouden.CategoryCreditors:
		if r.cfg.Payable != "" {
			return r.resolution(tx, r.cfg.Payable, externalCode)
		}
	case eboekhouden.CategoryCash, eboekhouden.CategoryBank, eboekhouden.CategoryPSP:
		// A money account usually exists internally under the same code
		if _, err := models.AccountByCode(tx, externalCode); err == nil {
			return r.resolution(tx, externalCode, externalCode)
		}
		if r.cfg.DefaultBank != "" {
			return r.resolution(tx, r.cfg.DefaultBank, externalCode)
		}
	}

	// 3. Code-range heuristic: an identically coded internal account wins,
	// otherwise the first digit decides the root type.
	if account, err := models.AccountByCode(tx, externalCode); err == nil {
		return Resolution{AccountCode: account.Code, RootType: account.RootType}, nil
	}

	rootType := models.RootTypeForCode(externalCode)
	if refined := refineByKeywords(description); refined != models.RootTypeUnknown {
		rootType = refined
	}

	// 4. Uncategorized fallback for the derived root type
	if code, ok := r.cfg.Uncategorized[rootType]; ok && code != "" {
		return r.resolution(tx, code, externalCode)
	}

	return Resolution{}, models.NewRecordError(models.CategoryAccountUnresolvable,
		fmt.Errorf("no internal account for external code %q (category %q)", externalCode, category), true)
}

// ReceivableForSales returns the receivable account for a sales invoice of
// the given external ledger code. The contribution receivable (13500) is
// never chosen implicitly; only an explicit override reaches it.
func (r *Resolver) ReceivableForSales(tx *gorm.DB, externalCode string) (Resolution, error) {
	if code, ok := r.override(externalCode); ok {
		return r.resolution(tx, code, externalCode)
	}

	code := r.cfg.ReceivableForSales
	if code == ContributionsReceivable {
		// Contribution receivables are reserved for membership dues
		code = DefaultReceivable
	}

	return r.resolution(tx, code, externalCode)
}

// Payable returns the payable account for a purchase invoice.
func (r *Resolver) Payable(tx *gorm.DB, externalCode string) (Resolution, error) {
	if code, ok := r.override(externalCode); ok {
		return r.resolution(tx, code, externalCode)
	}
	if r.cfg.Payable == "" {
		return Resolution{}, models.NewRecordError(models.CategoryAccountUnresolvable,
			errors.New("no payable account configured"), true)
	}

	return r.resolution(tx, r.cfg.Payable, externalCode)
}

// BankAccount resolves the internal money account for a FIN ledger code.
func (r *Resolver) BankAccount(tx *gorm.DB, externalCode string) (Resolution, error) {
	return r.Resolve(tx, externalCode, "")
}

// CostCenter returns the cost center for a line, falling back to the
// configured default.
func (r *Resolver) CostCenter(costCenter string) string {
	if costCenter != "" {
		return costCenter
	}

	return r.cfg.DefaultCostCenter
}

// override returns the mapped internal account for an external code. Exact
// matches win over glob patterns; patterns apply in priority order.
func (r *Resolver) override(externalCode string) (string, bool) {
	for _, mapping := range r.mappings {
		if mapping.ExternalCode == externalCode {
			return mapping.AccountCode, true
		}
	}

	for _, mapping := range r.mappings {
		if strings.ContainsAny(mapping.ExternalCode, "*?") && glob.Glob(mapping.ExternalCode, externalCode) {
			return mapping.AccountCode, true
		}
	}

	return "", false
}

// resolution verifies that the internal account exists and is active.
func (r *Resolver) resolution(tx *gorm.DB, code, externalCode string) (Resolution, error) {
	account, err := models.AccountByCode(tx, code)
	if err != nil {
		if errors.Is(err, models.ErrResourceNotFound) {
			return Resolution{}, models.NewRecordError(models.CategoryAccountUnresolvable,
				fmt.Errorf("internal account %q for external code %q does not exist or is inactive", code, externalCode), true)
		}
		return Resolution{}, err
	}

	return Resolution{AccountCode: account.Code, RootType: account.RootType}, nil
}

// refineByKeywords sharpens the code-range root type using description
// keywords: volunteer reimbursements route to expense claims, payment
// processor lines to bank charges.
func refineByKeywords(description string) models.RootType {
	description = strings.ToLower(description)

	for _, keyword := range []string{"vrijwilliger", "declaratie", "onkosten"} {
		if strings.Contains(description, keyword) {
			return models.RootTypeExpense
		}
	}

	for _, keyword := range []string{"mollie", "sisow", "pay.nl", "transactiekosten"} {
		if strings.Contains(description, keyword) {
			return models.RootTypeExpense
		}
	}

	return models.RootTypeUnknown
}
