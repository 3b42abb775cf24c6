package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoundService_OpenNewRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)

	first, err := f.rounds.OpenNewRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.ID)
	assert.Empty(t, first.Entries)
	assert.Zero(t, first.PrizePool)
	assert.Equal(t, baseTime, first.OpenedAt)
	assert.Equal(t, baseTime.Add(testRoundLength), first.ClosesAt)
	assert.NotEmpty(t, first.Commitment)
	assert.Empty(t, first.Seed)

	// An empty round can be replaced
	second, err := f.rounds.OpenNewRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.ID)
	assert.NotEqual(t, first.Commitment, second.Commitment)

	// A round holding stakes cannot
	f.fund(t, alice, 5)
	_, err = f.rounds.PlaceStake(ctx, alice)
	require.NoError(t, err)
	_, err = f.rounds.OpenNewRound(ctx)
	assert.ErrorIs(t, err, domain.ErrRoundStillOpen)
	assert.Equal(t, uint64(1), f.rounds.CurrentRound(ctx).ID)

	assert.Len(t, f.publisher.OfType(events.EventTypeRoundOpened), 2)
}

func TestRoundService_PlaceStake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		identity  entities.Identity
		balance   uint64
		noAccount bool
		advance   time.Duration
		wantErr   error
	}{
		{
			name:     "stake accepted",
			identity: alice,
			balance:  3,
		},
		{
			name:     "invalid identity",
			identity: "Not A Principal",
			wantErr:  domain.ErrValidation,
		},
		{
			name:      "account missing",
			identity:  bob,
			noAccount: true,
			wantErr:   domain.ErrAccountNotFound,
		},
		{
			name:     "insufficient balance",
			identity: alice,
			balance:  0,
			wantErr:  domain.ErrInsufficientBalance,
		},
		{
			name:     "round already closed",
			identity: alice,
			balance:  3,
			advance:  testRoundLength,
			wantErr:  domain.ErrRoundClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newEngineFixture(t)
			f.openRound(t, 0)
			if !tt.noAccount && tt.identity.Validate() == nil {
				f.fund(t, tt.identity, tt.balance)
			}
			f.clock.Advance(tt.advance)

			result, err := f.rounds.PlaceStake(ctx, tt.identity)
			round := f.rounds.CurrentRound(ctx)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				assert.Empty(t, round.Entries)
				assert.Zero(t, round.PrizePool)
				if !tt.noAccount && tt.identity.Validate() == nil {
					assert.Equal(t, tt.balance, f.account(t, tt.identity).Balance)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint64(0), result.RoundID)
			assert.Equal(t, 1, result.EntryCount)
			assert.Equal(t, testTicketPrice, result.PrizePool)
			assert.Equal(t, tt.balance-testTicketPrice, result.NewBalance)
			assert.Equal(t, []entities.Identity{tt.identity}, round.Entries)

			account := f.account(t, tt.identity)
			bet := account.Transactions[len(account.Transactions)-1]
			assert.Equal(t, entities.TransactionTypeBet, bet.Type)
			require.NotNil(t, bet.RoundID)
			assert.Equal(t, uint64(0), *bet.RoundID)
			assert.Equal(t, uint64(1), f.stats().TotalBets)
		})
	}
}

func TestRoundService_PlaceStake_HeldFundsAreNotSpendable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.openRound(t, 0)
	f.fund(t, alice, 5)

	require.NoError(t, f.store.Update(func(st *store.State) error {
		account, _ := st.Account(alice)
		account.Held = 5
		return nil
	}))

	_, err := f.rounds.PlaceStake(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestRoundService_MaybeDraw_NothingBeforeClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.openRound(t, 0)
	f.fund(t, alice, 1)
	_, err := f.rounds.PlaceStake(ctx, alice)
	require.NoError(t, err)

	result, err := f.rounds.MaybeDraw(ctx, baseTime.Add(testRoundLength-time.Nanosecond))
	require.NoError(t, err)
	assert.Nil(t, result)

	round := f.rounds.CurrentRound(ctx)
	assert.Equal(t, uint64(0), round.ID)
	assert.False(t, round.IsDrawn())
	assert.Equal(t, uint64(0), f.stats().RoundsCompleted)
}

func TestRoundService_MaybeDraw_OpensRoundWhenNoneIsCurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)

	result, err := f.rounds.MaybeDraw(ctx, baseTime)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotNil(t, f.rounds.CurrentRound(ctx))
	assert.Equal(t, uint64(0), f.rounds.CurrentRound(ctx).ID)
}

func TestRoundService_DrawPaysWholePoolToOneEntrant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.openRound(t, 5)
	f.fund(t, alice, 3)
	f.fund(t, bob, 1)

	for i := 0; i < 3; i++ {
		_, err := f.rounds.PlaceStake(ctx, alice)
		require.NoError(t, err)
	}
	_, err := f.rounds.PlaceStake(ctx, bob)
	require.NoError(t, err)

	round := f.rounds.CurrentRound(ctx)
	assert.Equal(t, uint64(4), round.PrizePool)
	require.NoError(t, round.ValidatePrizePool(testTicketPrice))

	f.clock.Advance(testRoundLength)
	result, err := f.rounds.MaybeDraw(ctx, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Winner)

	assert.Equal(t, uint64(5), result.Round.ID)
	assert.Equal(t, uint64(4), result.PrizePool)
	assert.Contains(t, []entities.Identity{alice, bob}, *result.Winner)

	// The winner receives the full pool; the other entrant keeps nothing
	winner := f.account(t, *result.Winner)
	assert.Equal(t, uint64(4), winner.Balance)
	require.Len(t, winner.Winnings, 1)
	assert.Equal(t, entities.Winning{Amount: 4, Timestamp: f.clock.Now(), RoundID: 5}, winner.Winnings[0])
	for _, id := range []entities.Identity{alice, bob} {
		if id != *result.Winner {
			assert.Zero(t, f.account(t, id).Balance)
		}
	}

	// The next round is empty and current
	next := f.rounds.CurrentRound(ctx)
	assert.Equal(t, uint64(6), next.ID)
	assert.Empty(t, next.Entries)
	assert.Zero(t, next.PrizePool)
	assert.Equal(t, f.clock.Now().Add(testRoundLength), next.ClosesAt)

	history := f.rounds.RoundHistory(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(5), history[0].ID)
	assert.Equal(t, *result.Winner, *history[0].Winner)
	require.NoError(t, VerifyDraw(history[0]))

	stats := f.stats()
	assert.Equal(t, uint64(1), stats.RoundsCompleted)
	assert.Equal(t, uint64(4), stats.TotalBets)
	assert.Equal(t, uint64(4), stats.TotalWinnings)

	drawn := f.publisher.OfType(events.EventTypeRoundDrawn)
	require.Len(t, drawn, 1)
	assert.Equal(t, *result.Winner, drawn[0].(events.RoundDrawnEvent).Winner)

	// A second draw in the same instant does nothing
	again, err := f.rounds.MaybeDraw(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRoundService_DrawUsesRandomSourceIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.New()
	clock := testhelpers.NewFakeClock(baseTime)
	random := new(testhelpers.MockRandomSource)
	random.On("Commit", mock.AnythingOfType("uint64")).Return("commitment", nil)
	random.On("Draw", mock.AnythingOfType("*entities.Round")).Return(3, "seed", nil)

	accounts := NewAccountService(st, clock, nil, custody, operator)
	rounds := NewRoundService(st, random, clock, nil, NoopMetrics{}, RoundSettings{
		TicketPrice:   2,
		RoundDuration: time.Minute,
		HistoryLimit:  5,
		Operator:      operator,
	})

	_, err := rounds.OpenNewRound(ctx)
	require.NoError(t, err)
	for _, id := range []entities.Identity{alice, alice, carol, bob} {
		_, err := accounts.CreateAccount(ctx, id)
		require.NoError(t, err)
		require.NoError(t, st.Update(func(s *store.State) error {
			account, _ := s.Account(id)
			return account.Credit(entities.Transaction{Amount: 2, Type: entities.TransactionTypeDeposit})
		}))
		_, err = rounds.PlaceStake(ctx, id)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	result, err := rounds.MaybeDraw(ctx, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, bob, *result.Winner)
	assert.Equal(t, uint64(8), result.PrizePool)
	assert.Equal(t, "seed", result.Round.Seed)

	bobAccount, err := accounts.GetAccount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), bobAccount.Balance)
	random.AssertExpectations(t)
}

func TestRoundService_DrawFailureLeavesRoundUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.New()
	clock := testhelpers.NewFakeClock(baseTime)
	random := new(testhelpers.MockRandomSource)
	random.On("Commit", mock.AnythingOfType("uint64")).Return("commitment", nil)
	random.On("Draw", mock.AnythingOfType("*entities.Round")).Return(0, "", errors.New("beacon offline"))

	rounds := NewRoundService(st, random, clock, nil, NoopMetrics{}, RoundSettings{
		TicketPrice:   1,
		RoundDuration: time.Minute,
		HistoryLimit:  5,
		Operator:      operator,
	})
	_, err := rounds.OpenNewRound(ctx)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = rounds.MaybeDraw(ctx, clock.Now())
	require.Error(t, err)

	round := rounds.CurrentRound(ctx)
	assert.Equal(t, uint64(0), round.ID)
	assert.False(t, round.IsDrawn())
	assert.Empty(t, rounds.RoundHistory(ctx))
}

func TestRoundService_EmptyRoundRotatesWithoutPayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.openRound(t, 0)

	f.clock.Advance(testRoundLength)
	result, err := f.rounds.MaybeDraw(ctx, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.Winner)
	assert.Zero(t, result.PrizePool)
	assert.Equal(t, uint64(1), result.NextRound.ID)
	assert.Equal(t, uint64(1), f.stats().RoundsCompleted)
	assert.Zero(t, f.stats().TotalWinnings)
	require.NoError(t, VerifyDraw(result.Round))
}

func TestRoundService_TriggerDraw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		caller  entities.Identity
		roundID uint64
		advance time.Duration
		wantErr error
	}{
		{
			name:    "operator draws a closed round",
			caller:  operator,
			roundID: 2,
			advance: testRoundLength,
		},
		{
			name:    "non-operator rejected",
			caller:  alice,
			roundID: 2,
			advance: testRoundLength,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "round still open",
			caller:  operator,
			roundID: 2,
			wantErr: domain.ErrRoundStillOpen,
		},
		{
			name:    "earlier round already drawn",
			caller:  operator,
			roundID: 1,
			advance: testRoundLength,
			wantErr: domain.ErrRoundAlreadyDrawn,
		},
		{
			name:    "future round does not exist",
			caller:  operator,
			roundID: 3,
			advance: testRoundLength,
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newEngineFixture(t)
			f.openRound(t, 2)
			f.fund(t, alice, 1)
			_, err := f.rounds.PlaceStake(ctx, alice)
			require.NoError(t, err)
			f.clock.Advance(tt.advance)

			result, err := f.rounds.TriggerDraw(ctx, tt.caller, tt.roundID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, uint64(2), f.rounds.CurrentRound(ctx).ID)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, alice, *result.Winner)
			assert.Equal(t, uint64(3), f.rounds.CurrentRound(ctx).ID)

			// Each round id is drawn at most once
			_, err = f.rounds.TriggerDraw(ctx, operator, tt.roundID)
			assert.ErrorIs(t, err, domain.ErrRoundAlreadyDrawn)
		})
	}
}

func TestRoundService_HistoryIsBounded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := store.New()
	clock := testhelpers.NewFakeClock(baseTime)
	beacon, err := NewCommitRevealBeacon(testSecret())
	require.NoError(t, err)
	rounds := NewRoundService(st, beacon, clock, nil, NoopMetrics{}, RoundSettings{
		TicketPrice:   1,
		RoundDuration: time.Minute,
		HistoryLimit:  2,
		Operator:      operator,
	})
	_, err = rounds.OpenNewRound(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Minute)
		_, err := rounds.MaybeDraw(ctx, clock.Now())
		require.NoError(t, err)
	}

	history := rounds.RoundHistory(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].ID)
	assert.Equal(t, uint64(3), history[1].ID)
	assert.Equal(t, uint64(4), rounds.CurrentRound(ctx).ID)
}

func TestRoundService_ConcurrentStakesKeepPoolConsistent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.openRound(t, 0)
	f.fund(t, alice, 40)
	f.fund(t, bob, 40)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, id := range []entities.Identity{alice, bob} {
			wg.Add(1)
			go func(id entities.Identity) {
				defer wg.Done()
				_, _ = f.rounds.PlaceStake(ctx, id)
			}(id)
		}
	}
	wg.Wait()

	round := f.rounds.CurrentRound(ctx)
	assert.Len(t, round.Entries, 80)
	require.NoError(t, round.ValidatePrizePool(testTicketPrice))
	assert.Zero(t, f.account(t, alice).Balance)
	assert.Zero(t, f.account(t, bob).Balance)
	assert.Equal(t, uint64(80), f.stats().TotalBets)
}
