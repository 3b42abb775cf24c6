package entities

// TransactionType represents the kind of an account log entry
type TransactionType string

const (
	// Balance credits
	TransactionTypeDeposit              TransactionType = "deposit"
	TransactionTypeWin                  TransactionType = "win"
	TransactionTypeReconciliationCredit TransactionType = "reconciliation_credit"

	// Balance debits
	TransactionTypeBet      TransactionType = "bet"
	TransactionTypeWithdraw TransactionType = "withdraw"

	// Custody movements, no balance effect
	TransactionTypeConsolidationSweep TransactionType = "consolidation_sweep"
)

// IsDepositDerived returns true if the entry credits externally deposited funds
func (tt TransactionType) IsDepositDerived() bool {
	return tt == TransactionTypeDeposit ||
		tt == TransactionTypeReconciliationCredit
}

// IsCredit returns true if the entry increases the account balance
func (tt TransactionType) IsCredit() bool {
	return tt.IsDepositDerived() || tt == TransactionTypeWin
}

// IsDebit returns true if the entry decreases the account balance
func (tt TransactionType) IsDebit() bool {
	return tt == TransactionTypeBet ||
		tt == TransactionTypeWithdraw
}

// AffectsBalance returns true if the entry changes the account balance
func (tt TransactionType) AffectsBalance() bool {
	return tt.IsCredit() || tt.IsDebit()
}

// String returns the string representation of the transaction type
func (tt TransactionType) String() string {
	return string(tt)
}
