package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/utils"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// reconciliationService credits deposits confirmed on the ledger exactly once
type reconciliationService struct {
	store          *store.Store
	ledger         interfaces.LedgerClient
	clock          interfaces.Clock
	eventPublisher interfaces.EventPublisher
	metrics        interfaces.Metrics
	winCooldown    time.Duration
	callTimeout    time.Duration
	concurrency    int
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	st *store.Store,
	ledger interfaces.LedgerClient,
	clock interfaces.Clock,
	eventPublisher interfaces.EventPublisher,
	metrics interfaces.Metrics,
	winCooldown time.Duration,
	callTimeout time.Duration,
	concurrency int,
) interfaces.ReconciliationService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &reconciliationService{
		store:          st,
		ledger:         ledger,
		clock:          clock,
		eventPublisher: eventPublisher,
		metrics:        metrics,
		winCooldown:    winCooldown,
		callTimeout:    callTimeout,
		concurrency:    concurrency,
	}
}

// Reconcile compares the deposits confirmed on the ledger with the deposits already credited
// and credits the difference. Funds that a sweep moved out of the deposit address still count
// as confirmed.
func (s *reconciliationService) Reconcile(ctx context.Context, identity entities.Identity) (*interfaces.ReconcileResult, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	// The sweep total is read before the ledger so that a sweep finishing in between
	// can only make confirmed smaller, never larger
	var (
		address     entities.LedgerAccount
		sweptBefore uint64
		found       bool
	)
	s.store.View(func(st *store.State) {
		if account, ok := st.Account(identity); ok {
			found = true
			address = account.DepositAddress
			sweptBefore = account.SweptFrom(address)
		}
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
	}

	callCtx, cancel := withLedgerTimeout(ctx, s.callTimeout)
	custodial, err := s.ledger.BalanceOf(callCtx, address)
	cancel()
	if err != nil {
		s.metrics.RecordReconciliation(OutcomeFailure, 0)
		return nil, fmt.Errorf("failed to read deposit balance of %s: %w", identity, err)
	}
	if custodial > math.MaxUint64-sweptBefore {
		return nil, fmt.Errorf("confirmed deposits of %s overflow", identity)
	}
	confirmed := custodial + sweptBefore

	pending := newPendingEvents(s.eventPublisher)
	result := &interfaces.ReconcileResult{Identity: identity, Confirmed: confirmed}

	err = s.store.Update(func(st *store.State) error {
		account, ok := st.Account(identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
		}
		now := s.clock.Now()

		result.Recorded = account.RecordedDeposits()
		if confirmed <= result.Recorded {
			account.LastReconciledAt = &now
			return nil
		}

		if lastWin, ok := account.LastWinAt(); ok && now.Sub(lastWin) < s.winCooldown {
			result.Deferred = true
			return nil
		}

		delta := confirmed - result.Recorded
		if account.Balance > math.MaxUint64-delta {
			return fmt.Errorf("credit of %d overflows balance of %s", delta, identity)
		}

		oldBalance := account.Balance
		remaining := delta
		for _, deposit := range st.PendingFor(identity) {
			if deposit.Amount == 0 || deposit.Amount > remaining {
				continue
			}
			tx := entities.Transaction{
				Amount:      deposit.Amount,
				Timestamp:   now,
				Type:        entities.TransactionTypeDeposit,
				ExternalRef: uint64Ptr(deposit.ExternalRef),
			}
			if err := account.Credit(tx); err != nil {
				return err
			}
			deposit.Confirm(now)
			remaining -= deposit.Amount
		}
		if remaining > 0 {
			tx := entities.Transaction{
				Amount:    remaining,
				Timestamp: now,
				Type:      entities.TransactionTypeReconciliationCredit,
			}
			if err := account.Credit(tx); err != nil {
				return err
			}
		}

		account.LastReconciledAt = &now
		st.Stats.TotalDepositsRecorded += delta
		result.Credited = delta

		pending.add(events.BalanceChangeEvent{
			Identity:        identity,
			OldBalance:      oldBalance,
			NewBalance:      account.Balance,
			TransactionType: entities.TransactionTypeReconciliationCredit,
			Amount:          delta,
		})
		pending.add(events.DepositReconciledEvent{
			Identity:  identity,
			Credited:  delta,
			Confirmed: confirmed,
		})
		return nil
	})
	if err != nil {
		s.metrics.RecordReconciliation(OutcomeFailure, 0)
		return nil, err
	}

	pending.flush()
	switch {
	case result.Deferred:
		s.metrics.RecordReconciliation(OutcomeDeferred, 0)
		log.WithField("identity", identity).Debug("Deposit credit deferred after recent win")
	case result.Credited > 0:
		s.metrics.RecordReconciliation(OutcomeSuccess, result.Credited)
		log.WithFields(log.Fields{
			"identity":  identity,
			"credited":  utils.FormatTokens(result.Credited),
			"confirmed": utils.FormatTokens(result.Confirmed),
		}).Info("Credited confirmed deposits")
	default:
		s.metrics.RecordReconciliation(OutcomeSkipped, 0)
	}
	return result, nil
}

// ReconcileAll reconciles every known identity. A failing identity is logged and retried on
// the next pass.
func (s *reconciliationService) ReconcileAll(ctx context.Context) *interfaces.SweepSummary {
	var identities []entities.Identity
	s.store.View(func(st *store.State) {
		identities = st.Identities()
	})

	summary := &interfaces.SweepSummary{Processed: len(identities)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, identity := range identities {
		g.Go(func() error {
			result, err := s.Reconcile(gctx, identity)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				log.WithFields(log.Fields{
					"identity": identity,
					"error":    err,
				}).Warn("Failed to reconcile deposits")
				return nil
			}
			summary.Succeeded++
			summary.Total += result.Credited
			return nil
		})
	}
	_ = g.Wait()

	if summary.Failed > 0 || summary.Total > 0 {
		log.WithFields(log.Fields{
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"credited":  utils.FormatTokens(summary.Total),
		}).Info("Completed reconciliation pass")
	}
	return summary
}
