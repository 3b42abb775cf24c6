package interfaces

import (
	"context"
	"time"

	"gambler/lottery-engine/domain/entities"
)

// RoundService owns the current round and the draw
type RoundService interface {
	// OpenNewRound replaces the current round with a fresh one (id = previous + 1)
	OpenNewRound(ctx context.Context) (*entities.Round, error)

	// PlaceStake debits the ticket price and adds one entry to the current round
	PlaceStake(ctx context.Context, identity entities.Identity) (*StakeResult, error)

	// MaybeDraw draws and rotates the current round if its close time has passed
	MaybeDraw(ctx context.Context, now time.Time) (*DrawResult, error)

	// TriggerDraw is the operator-only entry to the same draw routine
	TriggerDraw(ctx context.Context, caller entities.Identity, roundID uint64) (*DrawResult, error)

	// CurrentRound returns a copy of the current round
	CurrentRound(ctx context.Context) *entities.Round

	// RoundHistory returns copies of the retained completed rounds, newest last
	RoundHistory(ctx context.Context) []*entities.Round
}

// StakeResult is returned from a successful stake
type StakeResult struct {
	RoundID    uint64
	EntryCount int // Entries held by the identity in the round after this stake
	PrizePool  uint64
	NewBalance uint64
}

// DrawResult describes a completed draw. Nil from MaybeDraw means nothing was due.
type DrawResult struct {
	Round     *entities.Round // The completed round
	Winner    *entities.Identity
	PrizePool uint64
	NextRound *entities.Round
}

// ReconciliationService credits externally confirmed deposits exactly once
type ReconciliationService interface {
	// Reconcile brings one identity's recorded deposits up to the externally confirmed total
	Reconcile(ctx context.Context, identity entities.Identity) (*ReconcileResult, error)

	// ReconcileAll reconciles every known identity, independently
	ReconcileAll(ctx context.Context) *SweepSummary
}

// ReconcileResult describes the outcome of one reconciliation
type ReconcileResult struct {
	Identity  entities.Identity
	Confirmed uint64 // Externally confirmed deposits, including funds already swept
	Recorded  uint64 // Deposit-derived credits before this call
	Credited  uint64
	Deferred  bool // Credit postponed by the win cool-down
}

// ConsolidationService sweeps custodial balances into the treasury
type ConsolidationService interface {
	// Consolidate sweeps the identity's custodial balance into the treasury
	Consolidate(ctx context.Context, identity entities.Identity) (*SweepResult, error)

	// ConsolidateAll sweeps every known identity, independently
	ConsolidateAll(ctx context.Context) *SweepSummary

	// ResumePending re-submits sweeps whose ledger outcome is unknown
	ResumePending(ctx context.Context) *SweepSummary
}

// SweepResult describes one consolidation attempt
type SweepResult struct {
	Identity    entities.Identity
	Observed    uint64 // Custodial balance read before the transfer
	Transferred uint64 // Amount that landed in the treasury
	Fee         uint64
	ExternalRef *uint64
}

// SweepSummary aggregates a periodic pass over all identities
type SweepSummary struct {
	Processed int
	Succeeded int
	Failed    int
	Total     uint64 // Amount credited or transferred during the pass
}

// WithdrawalService pays out recorded balances from the treasury
type WithdrawalService interface {
	Withdraw(ctx context.Context, identity entities.Identity, amount uint64) (*WithdrawalResult, error)

	// ResumePending re-submits withdrawals whose ledger outcome is unknown
	ResumePending(ctx context.Context) *SweepSummary
}

// WithdrawalResult describes a completed payout
type WithdrawalResult struct {
	Identity    entities.Identity
	Amount      uint64 // Debited from the balance
	Transferred uint64 // Received by the identity after the ledger fee
	Fee         uint64
	ExternalRef uint64
	NewBalance  uint64
}

// AccountService manages the account directory, claimed deposits and the treasury
type AccountService interface {
	CreateAccount(ctx context.Context, identity entities.Identity) (*entities.Account, error)
	GetAccount(ctx context.Context, identity entities.Identity) (*entities.Account, error)
	RecordDeposit(ctx context.Context, identity entities.Identity, amount, externalRef uint64) (*entities.PendingDeposit, error)
	ConfirmDeposit(ctx context.Context, caller entities.Identity, externalRef uint64) (*entities.Account, error)
	PendingDeposits(ctx context.Context, identity entities.Identity) ([]*entities.PendingDeposit, error)
	SetTreasury(ctx context.Context, caller entities.Identity, treasury entities.LedgerAccount) error
	Treasury(ctx context.Context) (*entities.LedgerAccount, error)
	DepositAddress(identity entities.Identity) (entities.LedgerAccount, error)
	Stats(ctx context.Context) entities.Stats
}

// SnapshotService checkpoints and restores the engine state
type SnapshotService interface {
	Checkpoint(ctx context.Context) error
	Restore(ctx context.Context) error
}
