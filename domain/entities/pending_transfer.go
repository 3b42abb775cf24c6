package entities

import (
	"bytes"
	"time"
)

// PendingTransfer is a ledger transfer out of custody whose outcome is not yet known.
// It is re-submitted with exactly these arguments until the ledger either applies it
// (or reports it as a duplicate) or rejects it outright.
type PendingTransfer struct {
	Identity  Identity      `json:"identity"`
	From      LedgerAccount `json:"from"`
	To        LedgerAccount `json:"to"`
	Amount    uint64        `json:"amount"` // Received by To
	Fee       uint64        `json:"fee"`
	Debit     uint64        `json:"debit,omitempty"` // Withdrawals: held now, debited once settled
	Memo      []byte        `json:"memo"`
	CreatedAt time.Time     `json:"created_at"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"last_error,omitempty"`
}

// Same reports whether other describes the same submission
func (p *PendingTransfer) Same(other *PendingTransfer) bool {
	if p == nil || other == nil {
		return false
	}
	return p.Identity == other.Identity && bytes.Equal(p.Memo, other.Memo) && p.CreatedAt.Equal(other.CreatedAt)
}

// Clone returns a copy that can be used outside the state lock
func (p *PendingTransfer) Clone() *PendingTransfer {
	if p == nil {
		return nil
	}
	c := *p
	c.Memo = append([]byte(nil), p.Memo...)
	c.From.Subaccount = append([]byte(nil), p.From.Subaccount...)
	c.To.Subaccount = append([]byte(nil), p.To.Subaccount...)
	return &c
}
