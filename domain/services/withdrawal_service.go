package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// withdrawalService pays recorded balances out of the treasury
type withdrawalService struct {
	store          *store.Store
	ledger         interfaces.LedgerClient
	reconciler     interfaces.ReconciliationService
	consolidator   interfaces.ConsolidationService
	clock          interfaces.Clock
	eventPublisher interfaces.EventPublisher
	metrics        interfaces.Metrics
	fee            *TransferFee
	callTimeout    time.Duration
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(
	st *store.Store,
	ledger interfaces.LedgerClient,
	reconciler interfaces.ReconciliationService,
	consolidator interfaces.ConsolidationService,
	clock interfaces.Clock,
	eventPublisher interfaces.EventPublisher,
	metrics interfaces.Metrics,
	fee *TransferFee,
	callTimeout time.Duration,
) interfaces.WithdrawalService {
	return &withdrawalService{
		store:          st,
		ledger:         ledger,
		reconciler:     reconciler,
		consolidator:   consolidator,
		clock:          clock,
		eventPublisher: eventPublisher,
		metrics:        metrics,
		fee:            fee,
		callTimeout:    callTimeout,
	}
}

// Withdraw debits amount from the balance and sends amount minus the ledger fee to the
// identity's own ledger account. The funds are held while the transfer is in flight and the
// balance is only debited once the ledger has accepted it.
//
// A withdrawal whose outcome was lost is resolved first by re-submitting it unchanged. If it
// settles, its result is returned and no new transfer is started.
func (s *withdrawalService) Withdraw(ctx context.Context, identity entities.Identity, amount uint64) (*interfaces.WithdrawalResult, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	fee := s.fee.Get()
	if amount <= fee {
		return nil, fmt.Errorf("%w: amount %d must exceed the transfer fee %d", domain.ErrValidation, amount, fee)
	}
	if !s.store.TryBegin(store.OperationWithdraw, identity) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWithdrawalInFlight, identity)
	}
	defer s.store.End(store.OperationWithdraw, identity)

	var (
		found    bool
		previous *entities.PendingTransfer
	)
	s.store.View(func(st *store.State) {
		_, found = st.Account(identity)
		previous = st.PendingWithdrawals[identity].Clone()
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
	}

	if previous != nil {
		result, outcome, err := s.settle(ctx, previous)
		switch outcome {
		case transferSettled:
			return result, err
		case transferUnresolved:
			return nil, fmt.Errorf("%w: earlier withdrawal of %s is still unresolved: %v", domain.ErrWithdrawalInFlight, identity, err)
		}
	}

	// Bring the balance and the treasury up to date first; neither is required to succeed
	if _, err := s.reconciler.Reconcile(ctx, identity); err != nil {
		log.WithFields(log.Fields{
			"identity": identity,
			"error":    err,
		}).Warn("Reconciliation before withdrawal failed")
	}
	if _, err := s.consolidator.Consolidate(ctx, identity); err != nil && !errors.Is(err, domain.ErrConsolidationInFlight) {
		log.WithFields(log.Fields{
			"identity": identity,
			"error":    err,
		}).Warn("Consolidation before withdrawal failed")
	}

	fee = s.fee.Get()
	if amount <= fee {
		return nil, fmt.Errorf("%w: amount %d must exceed the transfer fee %d", domain.ErrValidation, amount, fee)
	}

	var pending *entities.PendingTransfer
	err := s.store.Update(func(st *store.State) error {
		if st.Treasury == nil {
			return domain.ErrTreasuryNotSet
		}
		account, ok := st.Account(identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
		}
		if _, busy := st.PendingWithdrawals[identity]; busy {
			return fmt.Errorf("%w: %s", domain.ErrWithdrawalInFlight, identity)
		}
		if account.Available() < amount {
			return fmt.Errorf("%w: have %d available, need %d", domain.ErrInsufficientBalance, account.Available(), amount)
		}

		memo := uuid.New()
		record := &entities.PendingTransfer{
			Identity:  identity,
			From:      *st.Treasury,
			To:        entities.ExternalAccountFor(identity),
			Amount:    amount - fee,
			Fee:       fee,
			Debit:     amount,
			Memo:      memo[:],
			CreatedAt: s.clock.Now(),
		}
		account.Held += amount
		st.PendingWithdrawals[identity] = record
		pending = record.Clone()
		return nil
	})
	if err != nil {
		s.metrics.RecordWithdrawal(OutcomeFailure, 0)
		return nil, err
	}

	result, _, err := s.settle(ctx, pending)
	return result, err
}

// ResumePending re-submits every withdrawal whose outcome is unknown, for example after a
// lost reply or a restart. Withdrawals currently being handled by Withdraw are skipped.
func (s *withdrawalService) ResumePending(ctx context.Context) *interfaces.SweepSummary {
	var pending []*entities.PendingTransfer
	s.store.View(func(st *store.State) {
		for _, id := range st.Identities() {
			if record, ok := st.PendingWithdrawals[id]; ok {
				pending = append(pending, record.Clone())
			}
		}
	})

	summary := &interfaces.SweepSummary{}
	for _, record := range pending {
		if !s.store.TryBegin(store.OperationWithdraw, record.Identity) {
			continue
		}
		summary.Processed++
		result, outcome, err := s.settle(ctx, record)
		s.store.End(store.OperationWithdraw, record.Identity)

		switch {
		case outcome == transferSettled && err == nil:
			summary.Succeeded++
			summary.Total += result.Amount
		case outcome == transferRejected:
			// Resolved: the hold is released
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}
	return summary
}

// settle submits a pending withdrawal and applies the outcome: a settled transfer debits the
// held funds, a rejection releases them, and anything else leaves the hold for a retry.
func (s *withdrawalService) settle(ctx context.Context, pending *entities.PendingTransfer) (*interfaces.WithdrawalResult, transferOutcome, error) {
	identity := pending.Identity
	ref, outcome, err := submitTransfer(ctx, s.ledger, s.fee, s.callTimeout, pending)

	switch outcome {
	case transferRejected:
		s.release(pending)
		s.metrics.RecordWithdrawal(OutcomeFailure, 0)
		return nil, outcome, fmt.Errorf("failed to transfer withdrawal for %s: %w", identity, err)
	case transferUnresolved:
		s.noteAttempt(pending, err)
		s.metrics.RecordWithdrawal(OutcomeFailure, 0)
		log.WithFields(log.Fields{
			"identity": identity,
			"amount":   pending.Debit,
			"error":    err,
		}).Warn("Withdrawal outcome unknown, it will be re-submitted")
		return nil, outcome, fmt.Errorf("failed to transfer withdrawal for %s: %w", identity, err)
	}

	published := newPendingEvents(s.eventPublisher)
	result := &interfaces.WithdrawalResult{
		Identity:    identity,
		Amount:      pending.Debit,
		Transferred: pending.Amount,
		Fee:         pending.Fee,
		ExternalRef: ref,
	}
	err = s.store.Update(func(st *store.State) error {
		account, ok := st.Account(identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
		}
		if !pending.Same(st.PendingWithdrawals[identity]) {
			return fmt.Errorf("%w: withdrawal of %s was already resolved", domain.ErrWithdrawalInFlight, identity)
		}
		oldBalance := account.Balance
		tx := entities.Transaction{
			Amount:      pending.Debit,
			Fee:         pending.Fee,
			Timestamp:   s.clock.Now(),
			Type:        entities.TransactionTypeWithdraw,
			ExternalRef: uint64Ptr(ref),
		}
		if err := account.Debit(tx); err != nil {
			return err
		}
		account.Held -= pending.Debit
		delete(st.PendingWithdrawals, identity)
		st.Stats.TotalWithdrawn += pending.Debit
		result.NewBalance = account.Balance

		published.add(balanceChanged(account, oldBalance, tx))
		published.add(events.WithdrawalCompletedEvent{
			Identity:    identity,
			Amount:      pending.Debit,
			ExternalRef: ref,
		})
		return nil
	})
	if err != nil {
		// The ledger already paid out; the hold and the record stay so the funds cannot be spent twice
		log.WithFields(log.Fields{
			"identity":     identity,
			"amount":       pending.Debit,
			"external_ref": ref,
			"error":        err,
		}).Error("Failed to record completed withdrawal")
		s.metrics.RecordWithdrawal(OutcomeFailure, 0)
		return nil, outcome, err
	}

	published.flush()
	s.metrics.RecordWithdrawal(OutcomeSuccess, pending.Debit)
	log.WithFields(log.Fields{
		"identity":     identity,
		"amount":       utils.FormatTokens(pending.Debit),
		"external_ref": ref,
		"attempts":     pending.Attempts + 1,
	}).Info("Withdrawal completed")
	return result, outcome, nil
}

// release drops a rejected withdrawal and frees its held funds
func (s *withdrawalService) release(pending *entities.PendingTransfer) {
	_ = s.store.Update(func(st *store.State) error {
		if !pending.Same(st.PendingWithdrawals[pending.Identity]) {
			return nil
		}
		delete(st.PendingWithdrawals, pending.Identity)
		if account, ok := st.Account(pending.Identity); ok {
			if account.Held >= pending.Debit {
				account.Held -= pending.Debit
			} else {
				account.Held = 0
			}
		}
		return nil
	})
}

func (s *withdrawalService) noteAttempt(pending *entities.PendingTransfer, cause error) {
	_ = s.store.Update(func(st *store.State) error {
		if record := st.PendingWithdrawals[pending.Identity]; pending.Same(record) {
			record.Attempts++
			record.LastError = cause.Error()
		}
		return nil
	})
}
