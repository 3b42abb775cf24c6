package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gambler/lottery-engine/domain/entities"
)

// Operation names a long-running per-identity action guarded by an in-flight marker
type Operation string

const (
	OperationConsolidate Operation = "consolidate"
	OperationWithdraw    Operation = "withdraw"
)

// State is the process-wide engine state. It is only touched through a Store.
type State struct {
	Accounts        map[entities.Identity]*entities.Account `json:"accounts"`
	CurrentRound    *entities.Round                         `json:"current_round"`
	History         []*entities.Round                       `json:"history"`
	Stats           entities.Stats                          `json:"stats"`
	Treasury        *entities.LedgerAccount                 `json:"treasury,omitempty"`
	PendingDeposits map[uint64]*entities.PendingDeposit     `json:"pending_deposits"`

	// Custody transfers submitted to the ledger without a known outcome, at most one
	// withdrawal and one sweep per identity
	PendingWithdrawals map[entities.Identity]*entities.PendingTransfer `json:"pending_withdrawals"`
	PendingSweeps      map[entities.Identity]*entities.PendingTransfer `json:"pending_sweeps"`
}

// NewState returns an empty state without a current round
func NewState() *State {
	return &State{
		Accounts:        make(map[entities.Identity]*entities.Account),
		History:         []*entities.Round{},
		PendingDeposits: make(map[uint64]*entities.PendingDeposit),

		PendingWithdrawals: make(map[entities.Identity]*entities.PendingTransfer),
		PendingSweeps:      make(map[entities.Identity]*entities.PendingTransfer),
	}
}

// Account returns the account for an identity
func (st *State) Account(identity entities.Identity) (*entities.Account, bool) {
	account, ok := st.Accounts[identity]
	return account, ok
}

// Identities returns all known identities in a stable order
func (st *State) Identities() []entities.Identity {
	ids := make([]entities.Identity, 0, len(st.Accounts))
	for id := range st.Accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingFor returns the unconfirmed deposits of an identity, oldest first
func (st *State) PendingFor(identity entities.Identity) []*entities.PendingDeposit {
	var pending []*entities.PendingDeposit
	for _, d := range st.PendingDeposits {
		if d.Identity == identity && d.IsPending() {
			pending = append(pending, d)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].RecordedAt.Equal(pending[j].RecordedAt) {
			return pending[i].ExternalRef < pending[j].ExternalRef
		}
		return pending[i].RecordedAt.Before(pending[j].RecordedAt)
	})
	return pending
}

// Validate checks the invariants a restored state must satisfy
func (st *State) Validate(ticketPrice uint64) error {
	if st.Accounts == nil || st.PendingDeposits == nil || st.PendingWithdrawals == nil || st.PendingSweeps == nil {
		return fmt.Errorf("state is missing account, deposit or transfer maps")
	}
	for id, account := range st.Accounts {
		if account == nil || account.Identity != id {
			return fmt.Errorf("account entry %s is inconsistent", id)
		}
		if err := account.VerifyBalance(); err != nil {
			return err
		}
		var held uint64
		if withdrawal, ok := st.PendingWithdrawals[id]; ok && withdrawal != nil {
			held = withdrawal.Debit
		}
		if account.Held != held {
			return fmt.Errorf("account %s holds %d but its pending withdrawal covers %d", id, account.Held, held)
		}
		if account.Held > account.Balance {
			return fmt.Errorf("account %s holds %d of a balance of %d", id, account.Held, account.Balance)
		}
	}
	for _, pending := range []map[entities.Identity]*entities.PendingTransfer{st.PendingWithdrawals, st.PendingSweeps} {
		for id, transfer := range pending {
			if transfer == nil || transfer.Identity != id {
				return fmt.Errorf("pending transfer entry %s is inconsistent", id)
			}
			if _, ok := st.Accounts[id]; !ok {
				return fmt.Errorf("pending transfer for unknown account %s", id)
			}
		}
	}
	if st.CurrentRound != nil {
		if st.CurrentRound.IsDrawn() {
			return fmt.Errorf("current round %d is already drawn", st.CurrentRound.ID)
		}
		if err := st.CurrentRound.ValidatePrizePool(ticketPrice); err != nil {
			return err
		}
	}
	return nil
}

// Store serialises access to the engine state. Ledger calls must never run while
// the state lock is held; callers read external state first and re-check inside Update.
type Store struct {
	mu    sync.Mutex
	state *State

	inflightMu sync.Mutex
	inflight   map[Operation]map[entities.Identity]struct{}
}

// New creates a store holding an empty state
func New() *Store {
	return &Store{
		state:    NewState(),
		inflight: make(map[Operation]map[entities.Identity]struct{}),
	}
}

// Update runs fn with exclusive access to the state. fn must validate before mutating
// so that a returned error leaves the state untouched.
func (s *Store) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// View runs fn with exclusive read access to the state
func (s *Store) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Marshal encodes the whole state as JSON
func (s *Store) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// Replace swaps in a restored state
func (s *Store) Replace(state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// TryBegin marks op as in flight for the identity. It returns false if it already is.
func (s *Store) TryBegin(op Operation, identity entities.Identity) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	ids, ok := s.inflight[op]
	if !ok {
		ids = make(map[entities.Identity]struct{})
		s.inflight[op] = ids
	}
	if _, busy := ids[identity]; busy {
		return false
	}
	ids[identity] = struct{}{}
	return true
}

// End clears the in-flight marker set by TryBegin
func (s *Store) End(op Operation, identity entities.Identity) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight[op], identity)
}

// Unmarshal decodes a state produced by Marshal
func Unmarshal(data []byte) (*State, error) {
	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Accounts == nil {
		state.Accounts = make(map[entities.Identity]*entities.Account)
	}
	if state.PendingDeposits == nil {
		state.PendingDeposits = make(map[uint64]*entities.PendingDeposit)
	}
	if state.History == nil {
		state.History = []*entities.Round{}
	}
	if state.PendingWithdrawals == nil {
		state.PendingWithdrawals = make(map[entities.Identity]*entities.PendingTransfer)
	}
	if state.PendingSweeps == nil {
		state.PendingSweeps = make(map[entities.Identity]*entities.PendingTransfer)
	}
	return state, nil
}
