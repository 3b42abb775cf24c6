package entities

import (
	"fmt"
	"time"
)

// Round is a single lottery round. Exactly one round is current at any instant.
type Round struct {
	ID        uint64     `json:"id"`
	Entries   []Identity `json:"entries"` // One entry per stake, repeats allowed
	PrizePool uint64     `json:"prize_pool"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosesAt  time.Time  `json:"closes_at"`
	Winner    *Identity  `json:"winner,omitempty"`
	DrawnAt   *time.Time `json:"drawn_at,omitempty"`

	// Commit-reveal randomness. Commitment is published at open, Seed only after the draw.
	Commitment string `json:"commitment"`
	Seed       string `json:"seed,omitempty"`
}

// NewRound opens a round with an empty entry list
func NewRound(id uint64, openedAt time.Time, duration time.Duration, commitment string) *Round {
	return &Round{
		ID:         id,
		Entries:    []Identity{},
		OpenedAt:   openedAt,
		ClosesAt:   openedAt.Add(duration),
		Commitment: commitment,
	}
}

// IsDrawn returns true once the round has been closed by a draw or rotation
func (r *Round) IsDrawn() bool {
	return r.DrawnAt != nil
}

// CanAcceptStakes returns true if a stake placed at now belongs to this round
func (r *Round) CanAcceptStakes(now time.Time) bool {
	return !r.IsDrawn() && now.Before(r.ClosesAt)
}

// IsExpired returns true if the close time has been reached
func (r *Round) IsExpired(now time.Time) bool {
	return !now.Before(r.ClosesAt)
}

// AddEntry appends a stake entry and grows the prize pool by the ticket price
func (r *Round) AddEntry(identity Identity, ticketPrice uint64) {
	r.Entries = append(r.Entries, identity)
	r.PrizePool += ticketPrice
}

// CountEntries returns how many entries the identity holds in this round
func (r *Round) CountEntries(identity Identity) int {
	n := 0
	for _, e := range r.Entries {
		if e == identity {
			n++
		}
	}
	return n
}

// Complete records the draw outcome. Winner is nil for a round without entries.
func (r *Round) Complete(winner *Identity, seed string, at time.Time) {
	r.Winner = winner
	r.Seed = seed
	r.DrawnAt = &at
}

// ValidatePrizePool checks the pool against entries × ticket price
func (r *Round) ValidatePrizePool(ticketPrice uint64) error {
	expected := uint64(len(r.Entries)) * ticketPrice
	if r.PrizePool != expected {
		return fmt.Errorf("round %d prize pool %d does not equal %d entries x %d", r.ID, r.PrizePool, len(r.Entries), ticketPrice)
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store
func (r *Round) Clone() *Round {
	c := *r
	c.Entries = append([]Identity(nil), r.Entries...)
	if r.Winner != nil {
		w := *r.Winner
		c.Winner = &w
	}
	if r.DrawnAt != nil {
		t := *r.DrawnAt
		c.DrawnAt = &t
	}
	return &c
}
