package entities

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gambler/lottery-engine/domain"
)

// Account is a user's internal ledger entry in the account directory
type Account struct {
	Identity         Identity      `json:"identity"`
	Balance          uint64        `json:"balance"`
	Held             uint64        `json:"held"` // Reserved by an in-flight withdrawal
	DepositAddress   LedgerAccount `json:"deposit_address"`
	Transactions     []Transaction `json:"transactions"`
	Winnings         []Winning     `json:"winnings"`
	LastReconciledAt *time.Time    `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// NewAccount creates an empty account with its custodial deposit address
func NewAccount(identity Identity, depositAddress LedgerAccount, now time.Time) *Account {
	return &Account{
		Identity:       identity,
		DepositAddress: depositAddress,
		Transactions:   []Transaction{},
		Winnings:       []Winning{},
		CreatedAt:      now,
	}
}

// Available returns the balance not reserved by an in-flight withdrawal
func (a *Account) Available() uint64 {
	if a.Held >= a.Balance {
		return 0
	}
	return a.Balance - a.Held
}

// Credit increases the balance and appends the entry to the log
func (a *Account) Credit(tx Transaction) error {
	if !tx.Type.IsCredit() {
		return fmt.Errorf("transaction type %s is not a credit", tx.Type)
	}
	if tx.Amount == 0 {
		return errors.New("credit amount cannot be zero")
	}
	if a.Balance > math.MaxUint64-tx.Amount {
		return fmt.Errorf("credit of %d overflows balance %d", tx.Amount, a.Balance)
	}
	a.Balance += tx.Amount
	a.Transactions = append(a.Transactions, tx)
	return nil
}

// Debit decreases the balance and appends the entry to the log.
// Funds held for a withdrawal can only be debited by that withdrawal.
func (a *Account) Debit(tx Transaction) error {
	if !tx.Type.IsDebit() {
		return fmt.Errorf("transaction type %s is not a debit", tx.Type)
	}
	if tx.Amount == 0 {
		return errors.New("debit amount cannot be zero")
	}
	spendable := a.Available()
	if tx.Type == TransactionTypeWithdraw {
		spendable = a.Balance
	}
	if spendable < tx.Amount {
		return fmt.Errorf("%w: have %d available, need %d", domain.ErrInsufficientBalance, spendable, tx.Amount)
	}
	a.Balance -= tx.Amount
	a.Transactions = append(a.Transactions, tx)
	return nil
}

// Record appends a log entry that does not change the balance
func (a *Account) Record(tx Transaction) error {
	if tx.Type.AffectsBalance() {
		return fmt.Errorf("transaction type %s changes the balance", tx.Type)
	}
	a.Transactions = append(a.Transactions, tx)
	return nil
}

// RecordedDeposits sums every deposit-derived credit in the log
func (a *Account) RecordedDeposits() uint64 {
	var total uint64
	for i := range a.Transactions {
		if a.Transactions[i].Type.IsDepositDerived() {
			total += a.Transactions[i].Amount
		}
	}
	return total
}

// SweptFrom sums the funds (amount plus fee) that successful sweeps moved out of the address
func (a *Account) SweptFrom(address LedgerAccount) uint64 {
	var total uint64
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		if tx.Type != TransactionTypeConsolidationSweep || tx.Address == nil {
			continue
		}
		if tx.Address.Equal(address) {
			total += tx.Amount + tx.Fee
		}
	}
	return total
}

// HasExternalRef returns true if an entry of the given type already carries the receipt
func (a *Account) HasExternalRef(tt TransactionType, ref uint64) bool {
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		if tx.Type == tt && tx.ExternalRef != nil && *tx.ExternalRef == ref {
			return true
		}
	}
	return false
}

// LastWinAt returns the timestamp of the most recent win credit, if any
func (a *Account) LastWinAt() (time.Time, bool) {
	for i := len(a.Transactions) - 1; i >= 0; i-- {
		if a.Transactions[i].Type == TransactionTypeWin {
			return a.Transactions[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// VerifyBalance replays the log and checks it against the recorded balance
func (a *Account) VerifyBalance() error {
	var replayed uint64
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		switch {
		case tx.Type.IsCredit():
			replayed += tx.Amount
		case tx.Type.IsDebit():
			if replayed < tx.Amount {
				return fmt.Errorf("account %s log goes negative at entry %d", a.Identity, i)
			}
			replayed -= tx.Amount
		}
	}
	if replayed != a.Balance {
		return fmt.Errorf("account %s balance %d does not match log total %d", a.Identity, a.Balance, replayed)
	}
	if a.Held > a.Balance {
		return fmt.Errorf("account %s holds %d above balance %d", a.Identity, a.Held, a.Balance)
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store
func (a *Account) Clone() *Account {
	c := *a
	c.Transactions = append([]Transaction(nil), a.Transactions...)
	c.Winnings = append([]Winning(nil), a.Winnings...)
	if a.LastReconciledAt != nil {
		t := *a.LastReconciledAt
		c.LastReconciledAt = &t
	}
	return &c
}
