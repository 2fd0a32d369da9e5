package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeTransientIO          = "TRANSIENT_IO"
	ErrCodeMalformedInput       = "MALFORMED_INPUT"
	ErrCodeInsufficientEvidence = "INSUFFICIENT_EVIDENCE"
	ErrCodeTaxonomyViolation    = "TAXONOMY_VIOLATION"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Input errors: skipped and logged, never abort a pass
var (
	ErrDocumentUnreadable = NewDomainError(ErrCodeMalformedInput, "document is unreadable or not text")
	ErrDocumentTooShort   = NewDomainError(ErrCodeMalformedInput, "document content below minimum length")
	ErrThreadEmpty        = NewDomainError(ErrCodeMalformedInput, "email thread has no messages")
)

// Pipeline outcomes
var (
	// ErrInsufficientEvidence is surfaced as an explicit abstention, not a failure.
	ErrInsufficientEvidence = NewDomainError(ErrCodeInsufficientEvidence, "retrieved context cannot ground a response")
	// ErrTaxonomyViolation marks labels outside the configured set; such labels are discarded.
	ErrTaxonomyViolation = NewDomainError(ErrCodeTaxonomyViolation, "classification returned label outside taxonomy")
	// ErrClassificationFailed is non-fatal: the thread stays eligible for drafting.
	ErrClassificationFailed = NewDomainError(ErrCodeTransientIO, "classification call failed after retries")
)

// Validation errors
var (
	ErrVaultPathRequired = NewDomainError(ErrCodeValidation, "vault path is required")
	ErrEmptyEmbedding    = NewDomainError(ErrCodeValidation, "embedding vector is empty")
)
