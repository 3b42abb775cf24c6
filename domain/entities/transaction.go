package entities

import "time"

// Transaction is an immutable entry in an account's audit log
type Transaction struct {
	Amount      uint64          `json:"amount"`
	Fee         uint64          `json:"fee,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        TransactionType `json:"type"`
	ExternalRef *uint64         `json:"external_ref,omitempty"`
	Address     *LedgerAccount  `json:"address,omitempty"`
	RoundID     *uint64         `json:"round_id,omitempty"`
}

// HasExternalRef returns true if the entry carries a ledger receipt
func (t *Transaction) HasExternalRef() bool {
	return t.ExternalRef != nil
}

// Winning records a round won by an account
type Winning struct {
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	RoundID   uint64    `json:"round_id"`
}
