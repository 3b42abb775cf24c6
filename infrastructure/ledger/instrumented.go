package ledger

import (
	"context"
	"errors"
	"time"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// CallRecorder receives one observation per ledger call
type CallRecorder interface {
	RecordLedgerCall(method, outcome string, duration time.Duration)
}

// InstrumentedClient decorates a LedgerClient with metrics and debug logging
type InstrumentedClient struct {
	next     interfaces.LedgerClient
	recorder CallRecorder
}

// compile-time interface check
var _ interfaces.LedgerClient = (*InstrumentedClient)(nil)

// NewInstrumentedClient wraps next. A nil recorder only logs.
func NewInstrumentedClient(next interfaces.LedgerClient, recorder CallRecorder) *InstrumentedClient {
	return &InstrumentedClient{next: next, recorder: recorder}
}

func (c *InstrumentedClient) BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error) {
	start := time.Now()
	balance, err := c.next.BalanceOf(ctx, account)
	c.observe("balance_of", start, err, log.Fields{"account": account.String(), "balance": balance})
	return balance, err
}

func (c *InstrumentedClient) Transfer(ctx context.Context, args interfaces.TransferArgs) (uint64, error) {
	start := time.Now()
	index, err := c.next.Transfer(ctx, args)
	c.observe("transfer", start, err, log.Fields{
		"to":     args.To.String(),
		"amount": args.Amount,
		"fee":    args.Fee,
		"block":  index,
	})
	return index, err
}

func (c *InstrumentedClient) observe(method string, start time.Time, err error, fields log.Fields) {
	elapsed := time.Since(start)
	outcome := callOutcome(err)

	if c.recorder != nil {
		c.recorder.RecordLedgerCall(method, outcome, elapsed)
	}

	entry := log.WithFields(fields).WithFields(log.Fields{
		"method":   method,
		"outcome":  outcome,
		"duration": elapsed,
	})
	if err != nil {
		entry.WithError(err).Debug("Ledger call failed")
		return
	}
	entry.Debug("Ledger call completed")
}

// callOutcome classifies a ledger call result for metrics
func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var transferErr *interfaces.TransferError
	if errors.As(err, &transferErr) {
		return string(transferErr.Kind)
	}
	return "unavailable"
}
