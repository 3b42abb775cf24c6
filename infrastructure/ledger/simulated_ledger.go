package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const (
	// Transfers older than this are rejected as too old
	transactionWindow = 24 * time.Hour
	// Tolerated clock drift for created-at timestamps in the future
	permittedDrift = time.Minute
)

// SimulatedLedger is an in-process ledger for development and tests. Only the
// custody owner can send; fees are burned.
type SimulatedLedger struct {
	mu           sync.Mutex
	custodyOwner entities.Identity
	fee          uint64
	balances     map[string]uint64
	seen         map[string]uint64 // dedup key -> block index
	nextBlock    uint64
	now          func() time.Time
}

// compile-time interface check
var _ interfaces.LedgerClient = (*SimulatedLedger)(nil)

// NewSimulatedLedger creates an empty ledger that charges fee per transfer
func NewSimulatedLedger(custodyOwner entities.Identity, fee uint64) *SimulatedLedger {
	return &SimulatedLedger{
		custodyOwner: custodyOwner,
		fee:          fee,
		balances:     make(map[string]uint64),
		seen:         make(map[string]uint64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the ledger's notion of now
func (l *SimulatedLedger) WithClock(now func() time.Time) *SimulatedLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// SetFee changes the fee subsequent transfers must carry
func (l *SimulatedLedger) SetFee(fee uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

// Mint credits an account out of thin air. Simulates an external deposit.
func (l *SimulatedLedger) Mint(account entities.LedgerAccount, amount uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account.String()] += amount
	index := l.nextBlock
	l.nextBlock++

	log.WithFields(log.Fields{
		"account": account.String(),
		"amount":  amount,
		"block":   index,
	}).Debug("Simulated ledger mint")
	return index
}

// BalanceOf returns the balance of account
func (l *SimulatedLedger) BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account.String()], nil
}

// Transfer moves amount from one of the custody owner's sub-accounts and burns the fee
func (l *SimulatedLedger) Transfer(ctx context.Context, args interfaces.TransferArgs) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if args.Fee != l.fee {
		return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorBadFee, ExpectedFee: l.fee}
	}

	if !args.CreatedAt.IsZero() {
		now := l.now()
		if args.CreatedAt.Before(now.Add(-transactionWindow)) {
			return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorTooOld}
		}
		if args.CreatedAt.After(now.Add(permittedDrift)) {
			return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorCreatedInFuture}
		}

		if index, ok := l.seen[dedupKey(args)]; ok {
			return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorDuplicate, DuplicateOf: index}
		}
	}

	from := entities.LedgerAccount{Owner: l.custodyOwner, Subaccount: args.FromSubaccount}
	fromKey := from.String()
	total := args.Amount + args.Fee
	if total < args.Amount || l.balances[fromKey] < total {
		return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorInsufficientFunds, Balance: l.balances[fromKey]}
	}

	l.balances[fromKey] -= total
	l.balances[args.To.String()] += args.Amount

	index := l.nextBlock
	l.nextBlock++
	if !args.CreatedAt.IsZero() {
		l.seen[dedupKey(args)] = index
	}

	log.WithFields(log.Fields{
		"from":   fromKey,
		"to":     args.To.String(),
		"amount": args.Amount,
		"fee":    args.Fee,
		"block":  index,
	}).Debug("Simulated ledger transfer")
	return index, nil
}

// dedupKey identifies a transfer by every field the ledger deduplicates on
func dedupKey(args interfaces.TransferArgs) string {
	var b bytes.Buffer
	b.WriteString(hex.EncodeToString(args.FromSubaccount))
	b.WriteByte('|')
	b.WriteString(args.To.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(args.Amount, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(args.Fee, 10))
	b.WriteByte('|')
	b.WriteString(hex.EncodeToString(args.Memo))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(args.CreatedAt.UnixNano(), 10))
	return b.String()
}
