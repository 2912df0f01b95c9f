package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrOperationFailed     = errors.New("storage operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid execution context for query")
	ErrInvalidTransition   = errors.New("invalid payment state transition")
	ErrRetryBudgetExceeded = errors.New("payment retry budget exhausted")
	ErrConflictResolved    = errors.New("conflict is not pending")
)
