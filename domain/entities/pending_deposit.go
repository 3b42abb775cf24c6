package entities

import "time"

// DepositStatus is the confirmation state of a claimed external deposit
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
)

// PendingDeposit is a deposit claimed by a user and not yet reflected in their balance
type PendingDeposit struct {
	Identity    Identity      `json:"identity"`
	Amount      uint64        `json:"amount"`
	ExternalRef uint64        `json:"external_ref"`
	Status      DepositStatus `json:"status"`
	RecordedAt  time.Time     `json:"recorded_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
}

// IsPending returns true if the deposit has not been credited
func (d *PendingDeposit) IsPending() bool {
	return d.Status == DepositStatusPending
}

// Confirm marks the deposit as credited
func (d *PendingDeposit) Confirm(at time.Time) {
	d.Status = DepositStatusConfirmed
	d.ConfirmedAt = &at
}
