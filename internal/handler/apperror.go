package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidValue          = &AppError{http.StatusBadRequest, "INVALID_VALUE", "Value must be greater than zero and fit the destination balance"}
	ErrInvalidRoute          = &AppError{http.StatusBadRequest, "INVALID_ROUTE", "These roles cannot take part in this transfer"}
	ErrInsufficientFunds     = &AppError{http.StatusConflict, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrAccountNotFound       = &AppError{http.StatusConflict, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrSelfTransfer          = &AppError{http.StatusConflict, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrAccountExists         = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "An account with this role and sub-identity already exists"}
	ErrReversalNotAllowed    = &AppError{http.StatusConflict, "REVERSAL_NOT_ALLOWED", "This transfer cannot be reversed"}
	ErrAlreadyReversed       = &AppError{http.StatusConflict, "ALREADY_REVERSED", "This transfer has already been reversed"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrTransferTimeout       = &AppError{http.StatusServiceUnavailable, "TRANSFER_TIMEOUT", "Timed out waiting for the account lock, please retry"}
	ErrPersistenceFailure    = &AppError{http.StatusServiceUnavailable, "PERSISTENCE_FAILURE", "The transfer could not be stored, please retry"}
	ErrLedgerReadOnly        = &AppError{http.StatusServiceUnavailable, "LEDGER_READ_ONLY", "Ledger is read-only until it is reconciled"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
