package testhelpers

import (
	"context"
	"sync"
	"time"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockLedgerClient is a mock implementation of LedgerClient
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedgerClient) Transfer(ctx context.Context, transfer interfaces.TransferArgs) (uint64, error) {
	args := m.Called(ctx, transfer)
	return args.Get(0).(uint64), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of SnapshotRepository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetLatest(ctx context.Context) (*entities.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	args := m.Called(ctx, keep)
	return args.Get(0).(int64), args.Error(1)
}

// MockRandomSource is a mock implementation of RandomSource
type MockRandomSource struct {
	mock.Mock
}

func (m *MockRandomSource) Commit(roundID uint64) (string, error) {
	args := m.Called(roundID)
	return args.String(0), args.Error(1)
}

func (m *MockRandomSource) Draw(round *entities.Round) (int, string, error) {
	args := m.Called(round)
	return args.Int(0), args.String(1), args.Error(2)
}

// MockReconciliationService is a mock implementation of ReconciliationService
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) Reconcile(ctx context.Context, identity entities.Identity) (*interfaces.ReconcileResult, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ReconcileResult), args.Error(1)
}

func (m *MockReconciliationService) ReconcileAll(ctx context.Context) *interfaces.SweepSummary {
	args := m.Called(ctx)
	return args.Get(0).(*interfaces.SweepSummary)
}

// MockConsolidationService is a mock implementation of ConsolidationService
type MockConsolidationService struct {
	mock.Mock
}

func (m *MockConsolidationService) Consolidate(ctx context.Context, identity entities.Identity) (*interfaces.SweepResult, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.SweepResult), args.Error(1)
}

func (m *MockConsolidationService) ConsolidateAll(ctx context.Context) *interfaces.SweepSummary {
	args := m.Called(ctx)
	return args.Get(0).(*interfaces.SweepSummary)
}

func (m *MockConsolidationService) ResumePending(ctx context.Context) *interfaces.SweepSummary {
	args := m.Called(ctx)
	return args.Get(0).(*interfaces.SweepSummary)
}

// MockWithdrawalService is a mock implementation of WithdrawalService
type MockWithdrawalService struct {
	mock.Mock
}

func (m *MockWithdrawalService) Withdraw(ctx context.Context, identity entities.Identity, amount uint64) (*interfaces.WithdrawalResult, error) {
	args := m.Called(ctx, identity, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.WithdrawalResult), args.Error(1)
}

func (m *MockWithdrawalService) ResumePending(ctx context.Context) *interfaces.SweepSummary {
	args := m.Called(ctx)
	return args.Get(0).(*interfaces.SweepSummary)
}

// MockSnapshotService is a mock implementation of SnapshotService
type MockSnapshotService struct {
	mock.Mock
}

func (m *MockSnapshotService) Checkpoint(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSnapshotService) Restore(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRoundService is a mock implementation of RoundService
type MockRoundService struct {
	mock.Mock
}

func (m *MockRoundService) OpenNewRound(ctx context.Context) (*entities.Round, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundService) PlaceStake(ctx context.Context, identity entities.Identity) (*interfaces.StakeResult, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.StakeResult), args.Error(1)
}

func (m *MockRoundService) MaybeDraw(ctx context.Context, now time.Time) (*interfaces.DrawResult, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DrawResult), args.Error(1)
}

func (m *MockRoundService) TriggerDraw(ctx context.Context, caller entities.Identity, roundID uint64) (*interfaces.DrawResult, error) {
	args := m.Called(ctx, caller, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DrawResult), args.Error(1)
}

func (m *MockRoundService) CurrentRound(ctx context.Context) *entities.Round {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*entities.Round)
}

func (m *MockRoundService) RoundHistory(ctx context.Context) []*entities.Round {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*entities.Round)
}

// FakeClock is a settable clock for tests
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock stopped at now
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// RecordingPublisher keeps every published event in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *RecordingPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns the published events in order
func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// OfType returns the published events of one type
func (p *RecordingPublisher) OfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range p.Events() {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}
