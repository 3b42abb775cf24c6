package interfaces

import (
	"context"
	"fmt"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
)

// LedgerClient is the narrow interface to the external token ledger.
// Every call may fail independently of local state.
type LedgerClient interface {
	// BalanceOf returns the confirmed balance of a ledger account
	BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error)

	// Transfer moves funds out of one of the custody owner's sub-accounts and returns the block index
	Transfer(ctx context.Context, args TransferArgs) (uint64, error)
}

// TransferArgs describes a single ledger transfer
type TransferArgs struct {
	FromSubaccount []byte
	To             entities.LedgerAccount
	Amount         uint64
	Fee            uint64
	Memo           []byte
	CreatedAt      time.Time // Used by the ledger for deduplication
}

// TransferErrorKind enumerates the business errors a ledger can return for a transfer
type TransferErrorKind string

const (
	TransferErrorInsufficientFunds      TransferErrorKind = "insufficient_funds"
	TransferErrorBadFee                 TransferErrorKind = "bad_fee"
	TransferErrorTooOld                 TransferErrorKind = "too_old"
	TransferErrorCreatedInFuture        TransferErrorKind = "created_in_future"
	TransferErrorDuplicate              TransferErrorKind = "duplicate"
	TransferErrorTemporarilyUnavailable TransferErrorKind = "temporarily_unavailable"
	TransferErrorGeneric                TransferErrorKind = "generic"
)

// TransferError is a ledger-level rejection of a transfer
type TransferError struct {
	Kind        TransferErrorKind
	ExpectedFee uint64 // Set for BadFee
	DuplicateOf uint64 // Set for Duplicate
	Balance     uint64 // Set for InsufficientFunds
	Message     string
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case TransferErrorBadFee:
		return fmt.Sprintf("ledger transfer failed: bad fee, expected %d", e.ExpectedFee)
	case TransferErrorDuplicate:
		return fmt.Sprintf("ledger transfer failed: duplicate of block %d", e.DuplicateOf)
	case TransferErrorInsufficientFunds:
		return fmt.Sprintf("ledger transfer failed: insufficient funds, balance %d", e.Balance)
	}
	if e.Message != "" {
		return fmt.Sprintf("ledger transfer failed: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("ledger transfer failed: %s", e.Kind)
}

// Unwrap maps the ledger error onto the domain taxonomy
func (e *TransferError) Unwrap() error {
	if e.Kind == TransferErrorTemporarilyUnavailable {
		return domain.ErrLedgerUnavailable
	}
	return domain.ErrLedgerRejected
}
