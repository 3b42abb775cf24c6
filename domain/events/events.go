package events

import "gambler/lottery-engine/domain/entities"

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange       EventType = "balance_change"
	EventTypeRoundOpened         EventType = "round_opened"
	EventTypeRoundDrawn          EventType = "round_drawn"
	EventTypeDepositReconciled   EventType = "deposit_reconciled"
	EventTypeCustodySwept        EventType = "custody_swept"
	EventTypeWithdrawalCompleted EventType = "withdrawal_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	Identity        entities.Identity        `json:"identity"`
	OldBalance      uint64                   `json:"old_balance"`
	NewBalance      uint64                   `json:"new_balance"`
	TransactionType entities.TransactionType `json:"transaction_type"`
	Amount          uint64                   `json:"amount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// RoundOpenedEvent is emitted when a new round becomes current
type RoundOpenedEvent struct {
	RoundID    uint64 `json:"round_id"`
	ClosesAt   int64  `json:"closes_at"`
	Commitment string `json:"commitment"`
}

func (e RoundOpenedEvent) Type() EventType {
	return EventTypeRoundOpened
}

// RoundDrawnEvent is emitted when a round is closed. Winner is empty for a round without entries.
type RoundDrawnEvent struct {
	RoundID    uint64            `json:"round_id"`
	Winner     entities.Identity `json:"winner,omitempty"`
	PrizePool  uint64            `json:"prize_pool"`
	EntryCount int               `json:"entry_count"`
	Seed       string            `json:"seed"`
}

func (e RoundDrawnEvent) Type() EventType {
	return EventTypeRoundDrawn
}

// DepositReconciledEvent is emitted when externally confirmed deposits are credited
type DepositReconciledEvent struct {
	Identity  entities.Identity `json:"identity"`
	Credited  uint64            `json:"credited"`
	Confirmed uint64            `json:"confirmed"`
}

func (e DepositReconciledEvent) Type() EventType {
	return EventTypeDepositReconciled
}

// CustodySweptEvent is emitted after funds land in the treasury
type CustodySweptEvent struct {
	Identity    entities.Identity `json:"identity"`
	Amount      uint64            `json:"amount"`
	Fee         uint64            `json:"fee"`
	ExternalRef uint64            `json:"external_ref"`
}

func (e CustodySweptEvent) Type() EventType {
	return EventTypeCustodySwept
}

// WithdrawalCompletedEvent is emitted after a payout transfer succeeds
type WithdrawalCompletedEvent struct {
	Identity    entities.Identity `json:"identity"`
	Amount      uint64            `json:"amount"`
	ExternalRef uint64            `json:"external_ref"`
}

func (e WithdrawalCompletedEvent) Type() EventType {
	return EventTypeWithdrawalCompleted
}
