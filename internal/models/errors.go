package models

import (
	"errors"
)

var (
	ErrGeneral          = errors.New("an error occurred on the server during your request")
	ErrResourceNotFound = errors.New("there is no")

	ErrAccountCodeNotUnique    = errors.New("the account code must be unique")
	ErrPartyNotUnique          = errors.New("a party with this relation code already exists for this kind")
	ErrMutationIDNotUnique     = errors.New("a document for this external mutation already exists")
	ErrInvoiceNumberNotUnique  = errors.New("an invoice with this external invoice number already exists")
	ErrRunActiveForCompany     = errors.New("an import run is already active for this company")
	ErrRunNotCancellable       = errors.New("only queued or running imports can be cancelled")
	ErrDocumentNotSubmittable  = errors.New("only draft documents can be submitted")
	ErrDocumentNotCancellable  = errors.New("only submitted documents can be cancelled")
	ErrAllocationExceedsAmount = errors.New("the allocated amount exceeds the payment amount")
)

// ErrorCategory classifies a record-local or run-fatal failure. The set is
// exhaustive for the import core; the analyzer keys its suggestions on it.
type ErrorCategory string

const (
	CategoryMissingReference     ErrorCategory = "missing-reference"
	CategoryLineTotalMismatch    ErrorCategory = "line-total-mismatch"
	CategoryUnbalancedJournal    ErrorCategory = "unbalanced-journal"
	CategoryAccountUnresolvable  ErrorCategory = "account-unresolvable"
	CategoryPartyConflict        ErrorCategory = "party-conflict"
	CategoryDuplicateMutation    ErrorCategory = "duplicate-mutation"
	CategoryZeroAmountInvoice    ErrorCategory = "zero-amount-invoice"
	CategorySubmitRejected       ErrorCategory = "submit-rejected"
	CategorySessionExpired       ErrorCategory = "session-expired"
	CategorySourcePagingFailed   ErrorCategory = "source-paging-failed"
	CategoryReconciliationFailed ErrorCategory = "reconciliation-failed"
)

// RunFatal reports whether a failure of this category aborts the whole run.
// Only source and session failures are run-fatal, everything else is logged
// per record and skipped.
func (c ErrorCategory) RunFatal() bool {
	return c == CategorySessionExpired || c == CategorySourcePagingFailed
}

// RecordError is a record-local failure carrying its category. It is stored
// as a FailedRecord and never aborts the run.
type RecordError struct {
	Category  ErrorCategory
	Err       error
	Retryable bool
}

func (e *RecordError) Error() string {
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError wraps err with an error category.
func NewRecordError(category ErrorCategory, err error, retryable bool) *RecordError {
	return &RecordError{Category: category, Err: err, Retryable: retryable}
}
