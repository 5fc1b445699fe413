package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidValue       = errors.New("value must be greater than zero and fit the destination balance")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSelfTransfer       = errors.New("cannot transfer to same account")
	ErrTransferTimeout    = errors.New("timed out waiting for account lock")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidRoute       = errors.New("roles cannot take part in this transfer")
	ErrAccountExists      = errors.New("account already exists")
	ErrLedgerReadOnly     = errors.New("ledger is read-only until reconciled")
	ErrReversalNotAllowed = errors.New("transfer cannot be reversed")
	ErrAlreadyReversed    = errors.New("transfer already reversed")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
)
