package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// consolidationService moves custodial deposit balances into the treasury
type consolidationService struct {
	store          *store.Store
	ledger         interfaces.LedgerClient
	clock          interfaces.Clock
	eventPublisher interfaces.EventPublisher
	metrics        interfaces.Metrics
	fee            *TransferFee
	callTimeout    time.Duration
	concurrency    int
}

// NewConsolidationService creates a new consolidation service
func NewConsolidationService(
	st *store.Store,
	ledger interfaces.LedgerClient,
	clock interfaces.Clock,
	eventPublisher interfaces.EventPublisher,
	metrics interfaces.Metrics,
	fee *TransferFee,
	callTimeout time.Duration,
	concurrency int,
) interfaces.ConsolidationService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &consolidationService{
		store:          st,
		ledger:         ledger,
		clock:          clock,
		eventPublisher: eventPublisher,
		metrics:        metrics,
		fee:            fee,
		callTimeout:    callTimeout,
		concurrency:    concurrency,
	}
}

// Consolidate sweeps the identity's custodial balance minus the fee into the treasury.
// The account balance is never changed; the sweep is only recorded in the log.
//
// A sweep whose outcome was lost is re-submitted unchanged first. Until it resolves no new
// sweep is started for the identity.
func (s *consolidationService) Consolidate(ctx context.Context, identity entities.Identity) (*interfaces.SweepResult, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if !s.store.TryBegin(store.OperationConsolidate, identity) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConsolidationInFlight, identity)
	}
	defer s.store.End(store.OperationConsolidate, identity)

	var (
		address  entities.LedgerAccount
		treasury *entities.LedgerAccount
		previous *entities.PendingTransfer
		found    bool
	)
	s.store.View(func(st *store.State) {
		if account, ok := st.Account(identity); ok {
			found = true
			address = account.DepositAddress
		}
		if st.Treasury != nil {
			t := *st.Treasury
			treasury = &t
		}
		previous = st.PendingSweeps[identity].Clone()
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
	}

	if previous != nil {
		result, outcome, err := s.settle(ctx, previous)
		if outcome != transferRejected {
			return result, err
		}
	}

	if treasury == nil {
		return nil, domain.ErrTreasuryNotSet
	}

	callCtx, cancel := withLedgerTimeout(ctx, s.callTimeout)
	balance, err := s.ledger.BalanceOf(callCtx, address)
	cancel()
	if err != nil {
		s.metrics.RecordSweep(OutcomeFailure, 0)
		return nil, fmt.Errorf("failed to read deposit balance of %s: %w", identity, err)
	}

	fee := s.fee.Get()
	if balance <= fee {
		s.metrics.RecordSweep(OutcomeSkipped, 0)
		return &interfaces.SweepResult{Identity: identity, Observed: balance}, nil
	}

	var pending *entities.PendingTransfer
	err = s.store.Update(func(st *store.State) error {
		if _, busy := st.PendingSweeps[identity]; busy {
			return fmt.Errorf("%w: %s", domain.ErrConsolidationInFlight, identity)
		}
		memo := uuid.New()
		record := &entities.PendingTransfer{
			Identity:  identity,
			From:      address,
			To:        *treasury,
			Amount:    balance - fee,
			Fee:       fee,
			Memo:      memo[:],
			CreatedAt: s.clock.Now(),
		}
		st.PendingSweeps[identity] = record
		pending = record.Clone()
		return nil
	})
	if err != nil {
		s.metrics.RecordSweep(OutcomeFailure, 0)
		return nil, err
	}

	result, _, err := s.settle(ctx, pending)
	if result != nil {
		result.Observed = balance
	}
	return result, err
}

// ResumePending re-submits every sweep whose outcome is unknown without starting new ones
func (s *consolidationService) ResumePending(ctx context.Context) *interfaces.SweepSummary {
	var pending []*entities.PendingTransfer
	s.store.View(func(st *store.State) {
		for _, id := range st.Identities() {
			if record, ok := st.PendingSweeps[id]; ok {
				pending = append(pending, record.Clone())
			}
		}
	})

	summary := &interfaces.SweepSummary{}
	for _, record := range pending {
		if !s.store.TryBegin(store.OperationConsolidate, record.Identity) {
			continue
		}
		summary.Processed++
		result, outcome, err := s.settle(ctx, record)
		s.store.End(store.OperationConsolidate, record.Identity)

		switch {
		case outcome == transferSettled && err == nil:
			summary.Succeeded++
			summary.Total += result.Transferred
		case outcome == transferRejected:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}
	return summary
}

// settle submits a pending sweep. A settled sweep is recorded against the deposit address
// it drained; a rejected one is dropped; an unresolved one is kept for the next attempt.
func (s *consolidationService) settle(ctx context.Context, pending *entities.PendingTransfer) (*interfaces.SweepResult, transferOutcome, error) {
	identity := pending.Identity
	ref, outcome, err := submitTransfer(ctx, s.ledger, s.fee, s.callTimeout, pending)

	switch outcome {
	case transferRejected:
		_ = s.store.Update(func(st *store.State) error {
			if pending.Same(st.PendingSweeps[identity]) {
				delete(st.PendingSweeps, identity)
			}
			return nil
		})
		s.metrics.RecordSweep(OutcomeFailure, 0)
		return nil, outcome, fmt.Errorf("failed to sweep deposits of %s: %w", identity, err)
	case transferUnresolved:
		_ = s.store.Update(func(st *store.State) error {
			if record := st.PendingSweeps[identity]; pending.Same(record) {
				record.Attempts++
				record.LastError = err.Error()
			}
			return nil
		})
		s.metrics.RecordSweep(OutcomeFailure, 0)
		log.WithFields(log.Fields{
			"identity": identity,
			"amount":   pending.Amount,
			"error":    err,
		}).Warn("Sweep outcome unknown, it will be re-submitted")
		return nil, outcome, fmt.Errorf("failed to sweep deposits of %s: %w", identity, err)
	}

	published := newPendingEvents(s.eventPublisher)
	err = s.store.Update(func(st *store.State) error {
		account, ok := st.Account(identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
		}
		if pending.Same(st.PendingSweeps[identity]) {
			delete(st.PendingSweeps, identity)
		}
		if account.HasExternalRef(entities.TransactionTypeConsolidationSweep, ref) {
			return nil
		}
		sweptFrom := pending.From
		if err := account.Record(entities.Transaction{
			Amount:      pending.Amount,
			Fee:         pending.Fee,
			Timestamp:   s.clock.Now(),
			Type:        entities.TransactionTypeConsolidationSweep,
			ExternalRef: uint64Ptr(ref),
			Address:     &sweptFrom,
		}); err != nil {
			return err
		}
		st.Stats.TotalSwept += pending.Amount
		published.add(sweptEvent(pending, ref))
		return nil
	})
	if err != nil {
		s.metrics.RecordSweep(OutcomeFailure, 0)
		return nil, outcome, err
	}

	published.flush()
	s.metrics.RecordSweep(OutcomeSuccess, pending.Amount)
	log.WithFields(log.Fields{
		"identity":     identity,
		"amount":       utils.FormatTokens(pending.Amount),
		"external_ref": ref,
		"attempts":     pending.Attempts + 1,
	}).Info("Swept deposits into treasury")

	return &interfaces.SweepResult{
		Identity:    identity,
		Transferred: pending.Amount,
		Fee:         pending.Fee,
		ExternalRef: uint64Ptr(ref),
	}, outcome, nil
}

// ConsolidateAll sweeps every known identity. Failures are logged and retried on the next pass.
func (s *consolidationService) ConsolidateAll(ctx context.Context) *interfaces.SweepSummary {
	var (
		identities  []entities.Identity
		treasurySet bool
	)
	s.store.View(func(st *store.State) {
		identities = st.Identities()
		treasurySet = st.Treasury != nil
	})

	summary := &interfaces.SweepSummary{}
	if !treasurySet {
		log.Debug("Treasury not set, skipping consolidation pass")
		return summary
	}
	summary.Processed = len(identities)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, identity := range identities {
		g.Go(func() error {
			result, err := s.Consolidate(gctx, identity)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				log.WithFields(log.Fields{
					"identity": identity,
					"error":    err,
				}).Warn("Failed to consolidate deposits")
				return nil
			}
			summary.Succeeded++
			summary.Total += result.Transferred
			return nil
		})
	}
	_ = g.Wait()

	if summary.Failed > 0 || summary.Total > 0 {
		log.WithFields(log.Fields{
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"swept":     utils.FormatTokens(summary.Total),
		}).Info("Completed consolidation pass")
	}
	return summary
}

func sweptEvent(pending *entities.PendingTransfer, ref uint64) events.CustodySweptEvent {
	return events.CustodySweptEvent{
		Identity:    pending.Identity,
		Amount:      pending.Amount,
		Fee:         pending.Fee,
		ExternalRef: ref,
	}
}
