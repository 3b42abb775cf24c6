package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/testhelpers"

	"github.com/stretchr/testify/require"
)

const (
	alice    = entities.Identity("alice-aaaaa")
	bob      = entities.Identity("bob22-aaaaa")
	carol    = entities.Identity("carol-aaaaa")
	operator = entities.Identity("opera-torid")
	custody  = entities.Identity("custo-dyaaa-cai")

	testTicketPrice = uint64(1)
	testFee         = uint64(10)
	testRoundLength = 5 * time.Minute
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testSecret() []byte {
	secret := make([]byte, BeaconSecretLength)
	for i := range secret {
		secret[i] = byte(i)
	}
	return secret
}

func testTreasury() entities.LedgerAccount {
	sub := make([]byte, entities.SubaccountLength)
	sub[31] = 1
	return entities.LedgerAccount{Owner: custody, Subaccount: sub}
}

// fakeLedger is an in-memory ledger that only lets the custody owner send funds
type fakeLedger struct {
	mu          sync.Mutex
	balances    map[string]uint64
	transfers   []interfaces.TransferArgs
	nextRef     uint64
	expectedFee uint64
	failNext    []error
	loseReplies int
	applied     map[string]uint64
	balanceErr  error
	onTransfer  func(interfaces.TransferArgs) // Runs before each transfer, outside the lock
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:    make(map[string]uint64),
		nextRef:     1000,
		expectedFee: testFee,
		applied:     make(map[string]uint64),
	}
}

func (l *fakeLedger) deposit(account entities.LedgerAccount, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account.String()] += amount
}

func (l *fakeLedger) balance(account entities.LedgerAccount) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account.String()]
}

func (l *fakeLedger) failTransfer(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = append(l.failNext, err)
}

// loseReply makes the next applied transfer report a timeout instead of its block index
func (l *fakeLedger) loseReply() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loseReplies++
}

func (l *fakeLedger) transferCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transfers)
}

func (l *fakeLedger) BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceErr != nil {
		return 0, l.balanceErr
	}
	return l.balances[account.String()], nil
}

func (l *fakeLedger) Transfer(ctx context.Context, args interfaces.TransferArgs) (uint64, error) {
	if l.onTransfer != nil {
		l.onTransfer(args)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.failNext) > 0 {
		err := l.failNext[0]
		l.failNext = l.failNext[1:]
		return 0, err
	}
	if args.Fee != l.expectedFee {
		return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorBadFee, ExpectedFee: l.expectedFee}
	}
	key := fmt.Sprintf("%x/%x/%d", args.FromSubaccount, args.Memo, args.CreatedAt.UnixNano())
	if ref, ok := l.applied[key]; ok {
		return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorDuplicate, DuplicateOf: ref}
	}
	from := entities.LedgerAccount{Owner: custody, Subaccount: args.FromSubaccount}.String()
	if l.balances[from] < args.Amount+args.Fee {
		return 0, &interfaces.TransferError{Kind: interfaces.TransferErrorInsufficientFunds, Balance: l.balances[from]}
	}
	l.balances[from] -= args.Amount + args.Fee
	l.balances[args.To.String()] += args.Amount
	l.transfers = append(l.transfers, args)
	l.nextRef++
	l.applied[key] = l.nextRef
	if l.loseReplies > 0 {
		l.loseReplies--
		return 0, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, context.DeadlineExceeded)
	}
	return l.nextRef, nil
}

// engineFixture wires every service against one store, a fake ledger and a fake clock
type engineFixture struct {
	store        *store.Store
	clock        *testhelpers.FakeClock
	publisher    *testhelpers.RecordingPublisher
	ledger       *fakeLedger
	fee          *TransferFee
	beacon       *CommitRevealBeacon
	accounts     interfaces.AccountService
	rounds       interfaces.RoundService
	reconciler   interfaces.ReconciliationService
	consolidator interfaces.ConsolidationService
	withdrawals  interfaces.WithdrawalService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureOn(t, newFakeLedger())
}

// newEngineFixtureOn builds a fixture against an existing ledger, as a restarted engine would see it
func newEngineFixtureOn(t *testing.T, ledger *fakeLedger) *engineFixture {
	t.Helper()

	beacon, err := NewCommitRevealBeacon(testSecret())
	require.NoError(t, err)

	f := &engineFixture{
		store:     store.New(),
		clock:     testhelpers.NewFakeClock(baseTime),
		publisher: &testhelpers.RecordingPublisher{},
		ledger:    ledger,
		fee:       NewTransferFee(testFee),
		beacon:    beacon,
	}
	f.accounts = NewAccountService(f.store, f.clock, f.publisher, custody, operator)
	f.rounds = NewRoundService(f.store, beacon, f.clock, f.publisher, NoopMetrics{}, RoundSettings{
		TicketPrice:   testTicketPrice,
		RoundDuration: testRoundLength,
		HistoryLimit:  10,
		Operator:      operator,
	})
	f.reconciler = NewReconciliationService(f.store, f.ledger, f.clock, f.publisher, NoopMetrics{}, 30*time.Second, time.Second, 2)
	f.consolidator = NewConsolidationService(f.store, f.ledger, f.clock, f.publisher, NoopMetrics{}, f.fee, time.Second, 2)
	f.withdrawals = NewWithdrawalService(f.store, f.ledger, f.reconciler, f.consolidator, f.clock, f.publisher, NoopMetrics{}, f.fee, time.Second)
	return f
}

// openRound makes a round with the given id current
func (f *engineFixture) openRound(t *testing.T, id uint64) {
	t.Helper()
	commitment, err := f.beacon.Commit(id)
	require.NoError(t, err)
	require.NoError(t, f.store.Update(func(st *store.State) error {
		st.CurrentRound = entities.NewRound(id, f.clock.Now(), testRoundLength, commitment)
		return nil
	}))
}

// fund creates the account and credits a deposit without touching the ledger
func (f *engineFixture) fund(t *testing.T, identity entities.Identity, amount uint64) {
	t.Helper()
	_, err := f.accounts.CreateAccount(context.Background(), identity)
	require.NoError(t, err)
	if amount == 0 {
		return
	}
	require.NoError(t, f.store.Update(func(st *store.State) error {
		account, _ := st.Account(identity)
		return account.Credit(entities.Transaction{
			Amount:    amount,
			Timestamp: f.clock.Now(),
			Type:      entities.TransactionTypeDeposit,
		})
	}))
}

// depositOnLedger sends funds to the identity's custodial deposit address
func (f *engineFixture) depositOnLedger(identity entities.Identity, amount uint64) {
	f.ledger.deposit(entities.CustodialAccountFor(custody, identity), amount)
}

func (f *engineFixture) setTreasury(t *testing.T) {
	t.Helper()
	require.NoError(t, f.accounts.SetTreasury(context.Background(), operator, testTreasury()))
}

func (f *engineFixture) account(t *testing.T, identity entities.Identity) *entities.Account {
	t.Helper()
	account, err := f.accounts.GetAccount(context.Background(), identity)
	require.NoError(t, err)
	return account
}

func (f *engineFixture) stats() entities.Stats {
	return f.accounts.Stats(context.Background())
}

func countType(account *entities.Account, tt entities.TransactionType) int {
	n := 0
	for _, tx := range account.Transactions {
		if tx.Type == tt {
			n++
		}
	}
	return n
}
