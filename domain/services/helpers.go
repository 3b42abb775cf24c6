package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// Metric outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeDeferred = "deferred"
)

// SystemClock returns the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordStake()                                   {}
func (NoopMetrics) RecordDraw(prizePool uint64, hadWinner bool)    {}
func (NoopMetrics) RecordReconciliation(outcome string, n uint64)  {}
func (NoopMetrics) RecordSweep(outcome string, amount uint64)      {}
func (NoopMetrics) RecordWithdrawal(outcome string, amount uint64) {}

// TransferFee is the fee attached to ledger transfers. A BadFee rejection replaces it
// with the fee the ledger expects so the next attempt succeeds.
type TransferFee struct {
	value atomic.Uint64
}

// NewTransferFee creates a fee holder with the configured starting fee
func NewTransferFee(initial uint64) *TransferFee {
	f := &TransferFee{}
	f.value.Store(initial)
	return f
}

// Get returns the current fee
func (f *TransferFee) Get() uint64 {
	return f.value.Load()
}

// Set replaces the current fee
func (f *TransferFee) Set(fee uint64) {
	old := f.value.Swap(fee)
	if old != fee {
		log.WithFields(log.Fields{
			"old_fee": old,
			"new_fee": fee,
		}).Info("Ledger transfer fee updated")
	}
}

// pendingEvents holds events raised inside a store update until the update has been applied
type pendingEvents struct {
	publisher interfaces.EventPublisher
	events    []events.Event
}

func newPendingEvents(publisher interfaces.EventPublisher) *pendingEvents {
	return &pendingEvents{publisher: publisher}
}

func (p *pendingEvents) add(event events.Event) {
	p.events = append(p.events, event)
}

// flush publishes the held events. Publish failures are logged and do not fail the operation.
func (p *pendingEvents) flush() {
	if p.publisher == nil {
		return
	}
	for _, event := range p.events {
		if err := p.publisher.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event")
		}
	}
	p.events = p.events[:0]
}

// withLedgerTimeout bounds a single ledger call
func withLedgerTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// transferOutcome classifies a ledger reply to a custody transfer
type transferOutcome int

const (
	// transferSettled means the ledger applied the transfer, now or on an earlier submission
	transferSettled transferOutcome = iota
	// transferRejected means the ledger refused it and nothing moved
	transferRejected
	// transferUnresolved means the reply was lost or the ledger could not decide
	transferUnresolved
)

// submitTransfer sends a pending transfer with its recorded arguments and classifies the reply.
// A BadFee rejection updates fee for the next transfer.
func submitTransfer(ctx context.Context, ledger interfaces.LedgerClient, fee *TransferFee, timeout time.Duration, pending *entities.PendingTransfer) (uint64, transferOutcome, error) {
	callCtx, cancel := withLedgerTimeout(ctx, timeout)
	ref, err := ledger.Transfer(callCtx, interfaces.TransferArgs{
		FromSubaccount: pending.From.Subaccount,
		To:             pending.To,
		Amount:         pending.Amount,
		Fee:            pending.Fee,
		Memo:           pending.Memo,
		CreatedAt:      pending.CreatedAt,
	})
	cancel()
	if err == nil {
		return ref, transferSettled, nil
	}

	var transferErr *interfaces.TransferError
	if errors.As(err, &transferErr) {
		switch transferErr.Kind {
		case interfaces.TransferErrorDuplicate:
			return transferErr.DuplicateOf, transferSettled, nil
		case interfaces.TransferErrorTemporarilyUnavailable:
			return 0, transferUnresolved, err
		case interfaces.TransferErrorBadFee:
			fee.Set(transferErr.ExpectedFee)
		}
		return 0, transferRejected, err
	}
	if errors.Is(err, domain.ErrLedgerRejected) {
		return 0, transferRejected, err
	}
	// Timeouts, dropped connections and unknown failures may still have been applied
	return 0, transferUnresolved, err
}

// requireOperator rejects any caller other than the configured operator
func requireOperator(operator, caller entities.Identity) error {
	if operator == "" || caller != operator {
		return fmt.Errorf("%w: %s is not the operator", domain.ErrUnauthorized, caller)
	}
	return nil
}

func balanceChanged(account *entities.Account, oldBalance uint64, tx entities.Transaction) events.BalanceChangeEvent {
	return events.BalanceChangeEvent{
		Identity:        account.Identity,
		OldBalance:      oldBalance,
		NewBalance:      account.Balance,
		TransactionType: tx.Type,
		Amount:          tx.Amount,
	}
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
