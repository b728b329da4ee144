// Package analyzer groups a run's failed records by error category and
// suggests remedial actions.
package analyzer

import (
	"fmt"
	"sort"

	"github.com/verenigingen/boekhouden-import/internal/models"
)

// Report is the grouped view over a run's failures.
type Report struct {
	Total      int                          `json:"total"`
	Retryable  int                          `json:"retryable"`
	ByCategory map[models.ErrorCategory]int `json:"byCategory"`
	Groups     []Group                      `json:"groups"`
}

// Group collects all failures of one category together with a suggested
// remedy.
type Group struct {
	Category   models.ErrorCategory  `json:"category"`
	Count      int                   `json:"count"`
	Suggestion string                `json:"suggestion"`
	Records    []models.FailedRecord `json:"records"`
}

// Analyze groups the failed records of a run.
func Analyze(records []models.FailedRecord) Report {
	report := Report{
		Total:      len(records),
		ByCategory: map[models.ErrorCategory]int{},
	}

	grouped := map[models.ErrorCategory][]models.FailedRecord{}
	for _, record := range records {
		grouped[record.ErrorCategory] = append(grouped[record.ErrorCategory], record)
		report.ByCategory[record.ErrorCategory]++
		if record.Retryable {
			report.Retryable++
		}
	}

	categories := make([]models.ErrorCategory, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return len(grouped[categories[i]]) > len(grouped[categories[j]])
	})

	for _, category := range categories {
		report.Groups = append(report.Groups, Group{
			Category:   category,
			Count:      len(grouped[category]),
			Suggestion: Suggestion(category),
			Records:    grouped[category],
		})
	}

	return report
}

// Suggestion returns the remedial action for an error category.
func Suggestion(category models.ErrorCategory) string {
	switch category {
	case models.CategoryMissingReference:
		return "A ledger id, relation id or invoice number could not be resolved. Check whether the relation exists; creating the missing customer or supplier usually fixes this."
	case models.CategoryLineTotalMismatch:
		return "The mutation's lines do not add up to its header amount. Correct the mutation in the source ledger and re-run the import."
	case models.CategoryUnbalancedJournal:
		return "Debits and credits differ. Correct the memorial booking in the source ledger."
	case models.CategoryAccountUnresolvable:
		return "No internal account maps to this external code. Add an account mapping for the code or its category."
	case models.CategoryPartyConflict:
		return "The relation code maps to more than one party. Merge or remove the duplicate party."
	case models.CategoryDuplicateMutation:
		return "A document for this mutation already exists. No action needed unless the existing document is wrong."
	case models.CategoryZeroAmountInvoice:
		return "Invoice and payment mutations must have a non-zero amount. Book the mutation as a memorial if it is intentional."
	case models.CategorySubmitRejected:
		return "The document could not be submitted and was rolled back. Inspect the error message and retry the run."
	case models.CategorySessionExpired:
		return "The API session could not be established or refreshed. Check the api token and SOAP credentials."
	case models.CategorySourcePagingFailed:
		return "A page fetch failed after all retries. Check the connectivity to the external ledger and re-run."
	case models.CategoryReconciliationFailed:
		return "The payment could not be linked to its invoice. Reconcile it manually or re-run reconciliation."
	}

	return fmt.Sprintf("No suggestion available for category %q.", category)
}
