package domain

import "errors"

// Request-time errors. These are returned to the caller and never partially applied.
var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAccountNotFound     = errors.New("account not found")
)

// Ledger errors. Nothing is mutated locally beyond what already succeeded.
var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrLedgerRejected    = errors.New("ledger rejected transfer")
)

// Round lifecycle errors
var (
	ErrRoundClosed       = errors.New("round is closed for stakes")
	ErrRoundStillOpen    = errors.New("round has not reached its close time")
	ErrRoundAlreadyDrawn = errors.New("round already drawn")
)

// Custody and deposit errors
var (
	ErrTreasuryNotSet        = errors.New("treasury account not set")
	ErrConsolidationInFlight = errors.New("consolidation already in flight")
	ErrWithdrawalInFlight    = errors.New("withdrawal already in flight")
	ErrDuplicateDeposit      = errors.New("deposit reference already recorded")
	ErrDepositNotFound       = errors.New("pending deposit not found")
)
