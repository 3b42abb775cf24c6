package services

import (
	"context"
	"fmt"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"

	log "github.com/sirupsen/logrus"
)

// accountService manages the account directory, claimed deposits and the treasury
type accountService struct {
	store          *store.Store
	clock          interfaces.Clock
	eventPublisher interfaces.EventPublisher
	custodyOwner   entities.Identity
	operator       entities.Identity
}

// NewAccountService creates a new account service
func NewAccountService(
	st *store.Store,
	clock interfaces.Clock,
	eventPublisher interfaces.EventPublisher,
	custodyOwner entities.Identity,
	operator entities.Identity,
) interfaces.AccountService {
	return &accountService{
		store:          st,
		clock:          clock,
		eventPublisher: eventPublisher,
		custodyOwner:   custodyOwner,
		operator:       operator,
	}
}

// CreateAccount returns the identity's account, creating it on first use
func (s *accountService) CreateAccount(ctx context.Context, identity entities.Identity) (*entities.Account, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var (
		account *entities.Account
		created bool
	)
	err := s.store.Update(func(st *store.State) error {
		a, isNew := s.ensureAccountLocked(st, identity)
		account = a.Clone()
		created = isNew
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		log.WithField("identity", identity).Info("Created account")
	}
	return account, nil
}

// GetAccount returns a copy of the identity's account
func (s *accountService) GetAccount(ctx context.Context, identity entities.Identity) (*entities.Account, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var account *entities.Account
	s.store.View(func(st *store.State) {
		if a, ok := st.Account(identity); ok {
			account = a.Clone()
		}
	})
	if account == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
	}
	return account, nil
}

// RecordDeposit stores a deposit claimed by the user. It is credited once the ledger
// confirms it during reconciliation, or when the operator confirms it.
func (s *accountService) RecordDeposit(ctx context.Context, identity entities.Identity, amount, externalRef uint64) (*entities.PendingDeposit, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", domain.ErrValidation)
	}

	var deposit entities.PendingDeposit
	err := s.store.Update(func(st *store.State) error {
		if _, exists := st.PendingDeposits[externalRef]; exists {
			return fmt.Errorf("%w: %d", domain.ErrDuplicateDeposit, externalRef)
		}
		s.ensureAccountLocked(st, identity)

		d := &entities.PendingDeposit{
			Identity:    identity,
			Amount:      amount,
			ExternalRef: externalRef,
			Status:      entities.DepositStatusPending,
			RecordedAt:  s.clock.Now(),
		}
		st.PendingDeposits[externalRef] = d
		deposit = *d
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"identity":     identity,
		"amount":       amount,
		"external_ref": externalRef,
	}).Info("Recorded pending deposit")
	return &deposit, nil
}

// ConfirmDeposit credits a pending deposit on the operator's word
func (s *accountService) ConfirmDeposit(ctx context.Context, caller entities.Identity, externalRef uint64) (*entities.Account, error) {
	if err := requireOperator(s.operator, caller); err != nil {
		return nil, err
	}

	pending := newPendingEvents(s.eventPublisher)
	var account *entities.Account

	err := s.store.Update(func(st *store.State) error {
		deposit, ok := st.PendingDeposits[externalRef]
		if !ok {
			return fmt.Errorf("%w: %d", domain.ErrDepositNotFound, externalRef)
		}
		if !deposit.IsPending() {
			return fmt.Errorf("%w: %d already confirmed", domain.ErrDuplicateDeposit, externalRef)
		}
		a, ok := st.Account(deposit.Identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, deposit.Identity)
		}

		now := s.clock.Now()
		oldBalance := a.Balance
		tx := entities.Transaction{
			Amount:      deposit.Amount,
			Timestamp:   now,
			Type:        entities.TransactionTypeDeposit,
			ExternalRef: uint64Ptr(externalRef),
		}
		if err := a.Credit(tx); err != nil {
			return err
		}
		deposit.Confirm(now)
		st.Stats.TotalDepositsRecorded += deposit.Amount

		account = a.Clone()
		pending.add(balanceChanged(a, oldBalance, tx))
		return nil
	})
	if err != nil {
		return nil, err
	}

	pending.flush()
	log.WithFields(log.Fields{
		"identity":     account.Identity,
		"external_ref": externalRef,
	}).Info("Operator confirmed deposit")
	return account, nil
}

// PendingDeposits returns the identity's unconfirmed deposits, oldest first
func (s *accountService) PendingDeposits(ctx context.Context, identity entities.Identity) ([]*entities.PendingDeposit, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var deposits []*entities.PendingDeposit
	s.store.View(func(st *store.State) {
		for _, d := range st.PendingFor(identity) {
			c := *d
			deposits = append(deposits, &c)
		}
	})
	return deposits, nil
}

// SetTreasury sets the ledger account that sweeps pay into and withdrawals pay out of.
// It must belong to the custody owner, since the engine can only sign for that owner.
func (s *accountService) SetTreasury(ctx context.Context, caller entities.Identity, treasury entities.LedgerAccount) error {
	if err := requireOperator(s.operator, caller); err != nil {
		return err
	}
	if err := treasury.Owner.Validate(); err != nil {
		return err
	}
	if treasury.Owner != s.custodyOwner {
		return fmt.Errorf("%w: treasury must be owned by %s", domain.ErrValidation, s.custodyOwner)
	}
	if n := len(treasury.Subaccount); n != 0 && n != entities.SubaccountLength {
		return fmt.Errorf("%w: subaccount must be %d bytes", domain.ErrValidation, entities.SubaccountLength)
	}

	t := entities.LedgerAccount{
		Owner:      treasury.Owner,
		Subaccount: append([]byte(nil), treasury.Subaccount...),
	}
	_ = s.store.Update(func(st *store.State) error {
		st.Treasury = &t
		return nil
	})

	log.WithField("treasury", t.String()).Info("Treasury account set")
	return nil
}

// Treasury returns the configured treasury account
func (s *accountService) Treasury(ctx context.Context) (*entities.LedgerAccount, error) {
	var treasury *entities.LedgerAccount
	s.store.View(func(st *store.State) {
		if st.Treasury != nil {
			t := *st.Treasury
			t.Subaccount = append([]byte(nil), st.Treasury.Subaccount...)
			treasury = &t
		}
	})
	if treasury == nil {
		return nil, domain.ErrTreasuryNotSet
	}
	return treasury, nil
}

// DepositAddress returns the custodial address the identity deposits into
func (s *accountService) DepositAddress(identity entities.Identity) (entities.LedgerAccount, error) {
	if err := identity.Validate(); err != nil {
		return entities.LedgerAccount{}, err
	}
	return entities.CustodialAccountFor(s.custodyOwner, identity), nil
}

// Stats returns a copy of the engine counters
func (s *accountService) Stats(ctx context.Context) entities.Stats {
	var stats entities.Stats
	s.store.View(func(st *store.State) {
		stats = st.Stats
	})
	return stats
}

// ensureAccountLocked returns the identity's account, creating it if missing
func (s *accountService) ensureAccountLocked(st *store.State, identity entities.Identity) (*entities.Account, bool) {
	if account, ok := st.Account(identity); ok {
		return account, false
	}
	account := entities.NewAccount(identity, entities.CustodialAccountFor(s.custodyOwner, identity), s.clock.Now())
	st.Accounts[identity] = account
	st.Stats.ActiveAccounts++
	return account, true
}
