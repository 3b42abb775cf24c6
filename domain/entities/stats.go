package entities

// Stats holds derived, monotonic counters. They are never a source of truth.
type Stats struct {
	RoundsCompleted       uint64 `json:"rounds_completed"`
	TotalBets             uint64 `json:"total_bets"`
	TotalWinnings         uint64 `json:"total_winnings"`
	ActiveAccounts        uint64 `json:"active_accounts"`
	TotalDepositsRecorded uint64 `json:"total_deposits_recorded"`
	TotalSwept            uint64 `json:"total_swept"`
	TotalWithdrawn        uint64 `json:"total_withdrawn"`
}
