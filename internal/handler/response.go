package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// domainErrors is checked in order; the first match wins. Timeouts come
// before persistence so a lock wait is never reported as a storage fault.
var domainErrors = []struct {
	err    error
	appErr *AppError
}{
	{domain.ErrLedgerReadOnly, ErrLedgerReadOnly},
	{domain.ErrInvalidValue, ErrInvalidValue},
	{domain.ErrInvalidRequest, ErrInvalidRequest},
	{domain.ErrInvalidRoute, ErrInvalidRoute},
	{domain.ErrInsufficientFunds, ErrInsufficientFunds},
	{domain.ErrAccountNotFound, ErrAccountNotFound},
	{domain.ErrSelfTransfer, ErrSelfTransfer},
	{domain.ErrAccountExists, ErrAccountExists},
	{domain.ErrReversalNotAllowed, ErrReversalNotAllowed},
	{domain.ErrAlreadyReversed, ErrAlreadyReversed},
	{domain.ErrTransferTimeout, ErrTransferTimeout},
	{domain.ErrPersistenceFailure, ErrPersistenceFailure},
	{domain.ErrVersionConflict, ErrVersionConflict},
	{domain.ErrNotFound, ErrResourceNotFound},
}

func RespondDomainError(w http.ResponseWriter, err error) {
	RespondAppError(w, appErrorFor(err), nil)
}

func appErrorFor(err error) *AppError {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return m.appErr
		}
	}
	slog.Error("unhandled domain error", "error", err)
	return ErrInternalError
}
