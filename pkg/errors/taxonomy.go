package errors

import "net/http"

// Error codes for the seven kinds of spec §7's error taxonomy.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeAuth          = "AUTH_ERROR"
	CodeConflict      = "CONFLICT"
	CodeSemantic      = "SEMANTIC_FAILURE"
	CodeTransient     = "TRANSIENT_STORE_ERROR"
	CodeFatalInternal = "FATAL_INTERNAL_ERROR"
)

// NewValidationError builds a ValidationError: rejected input (missing
// field, too-short notes). Surfaced as 400.
func NewValidationError(operation, message string, details interface{}) *ClassifiedError {
	return New(CodeValidation, message, ClassValidation).
		WithDetails(details).
		withOperation(operation)
}

// NewNotFoundError builds a NotFoundError: unknown task or queue entry.
// Surfaced as 404.
func NewNotFoundError(operation, message string) *ClassifiedError {
	return New(CodeNotFound, message, ClassNotFound).withOperation(operation)
}

// NewAuthError builds an AuthError: bad bearer token or bad passphrase.
// Surfaced as 401/403.
func NewAuthError(operation, message string) *ClassifiedError {
	return New(CodeAuth, message, ClassAuthentication).withOperation(operation)
}

// NewConflictError builds a ConflictError: duplicate passphrase
// registration, double-dispatch attempt. Surfaced as 409.
func NewConflictError(operation, message string) *ClassifiedError {
	return New(CodeConflict, message, ClassConflict).withOperation(operation)
}

// NewSemanticFailure builds a SemanticFailure: outcome downgraded by the
// indicator scan. Not an error returned to the caller, but logged with the
// matched indicator.
func NewSemanticFailure(operation, matchedIndicator string) *ClassifiedError {
	return New(CodeSemantic, "semantic completion check downgraded outcome", ClassValidation).
		WithMetadata("matched_indicator", matchedIndicator).
		withOperation(operation)
}

// NewTransientStoreError builds a TransientStoreError: retried at the
// caller's side; surfaced as 500 with the wrapped cause's message, which is
// not redacted in any environment.
func NewTransientStoreError(operation string, cause error) *ClassifiedError {
	return Wrap(cause, CodeTransient, ClassTransient).withOperation(operation)
}

// NewFatalInternalError builds a FatalInternalError: programming bugs;
// surfaced as 500 with the full message in every environment.
func NewFatalInternalError(operation string, cause error) *ClassifiedError {
	return Wrap(cause, CodeFatalInternal, ClassPermanent).withOperation(operation)
}

func (e *ClassifiedError) withOperation(operation string) *ClassifiedError {
	e.Operation = operation
	return e
}

// HTTPStatus maps a ClassifiedError's code to the HTTP status spec §7
// declares for it.
func HTTPStatus(err *ClassifiedError) int {
	switch err.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeTransient, CodeFatalInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
