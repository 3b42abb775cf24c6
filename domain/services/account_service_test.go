package services

import (
	"context"
	"testing"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_CreateAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)

	account, err := f.accounts.CreateAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, account.Identity)
	assert.Zero(t, account.Balance)
	assert.Equal(t, entities.CustodialAccountFor(custody, alice), account.DepositAddress)
	assert.Equal(t, baseTime, account.CreatedAt)

	// Creating again returns the same account and does not count twice
	again, err := f.accounts.CreateAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, account.CreatedAt, again.CreatedAt)
	assert.Equal(t, uint64(1), f.stats().ActiveAccounts)

	_, err = f.accounts.CreateAccount(ctx, entities.AnonymousIdentity)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccountService_GetAccountReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	f.fund(t, alice, 10)

	account := f.account(t, alice)
	account.Balance = 1_000_000
	account.Transactions = nil

	fresh := f.account(t, alice)
	assert.Equal(t, uint64(10), fresh.Balance)
	assert.Len(t, fresh.Transactions, 1)

	_, err := f.accounts.GetAccount(ctx, bob)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountService_RecordDeposit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)

	deposit, err := f.accounts.RecordDeposit(ctx, alice, 25, 9)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, deposit.Status)
	assert.Equal(t, uint64(25), deposit.Amount)

	// The account is created on the first deposit, with nothing credited yet
	account := f.account(t, alice)
	assert.Zero(t, account.Balance)

	_, err = f.accounts.RecordDeposit(ctx, bob, 25, 9)
	assert.ErrorIs(t, err, domain.ErrDuplicateDeposit)

	_, err = f.accounts.RecordDeposit(ctx, alice, 0, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	pending, err := f.accounts.PendingDeposits(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(9), pending[0].ExternalRef)
}

func TestAccountService_ConfirmDeposit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEngineFixture(t)
	_, err := f.accounts.RecordDeposit(ctx, alice, 25, 9)
	require.NoError(t, err)

	_, err = f.accounts.ConfirmDeposit(ctx, alice, 9)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.accounts.ConfirmDeposit(ctx, operator, 10)
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)

	account, err := f.accounts.ConfirmDeposit(ctx, operator, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), account.Balance)
	assert.True(t, account.HasExternalRef(entities.TransactionTypeDeposit, 9))

	// A confirmed deposit is never credited again
	_, err = f.accounts.ConfirmDeposit(ctx, operator, 9)
	assert.ErrorIs(t, err, domain.ErrDuplicateDeposit)
	assert.Equal(t, uint64(25), f.account(t, alice).Balance)

	pending, err := f.accounts.PendingDeposits(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Reconciliation sees the deposit as already recorded
	f.depositOnLedger(alice, 25)
	result, err := f.reconciler.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, result.Credited)

	assert.Len(t, f.publisher.OfType(events.EventTypeBalanceChange), 1)
}

func TestAccountService_SetTreasury(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		caller   entities.Identity
		treasury entities.LedgerAccount
		wantErr  error
	}{
		{
			name:     "operator sets treasury",
			caller:   operator,
			treasury: testTreasury(),
		},
		{
			name:     "default subaccount accepted",
			caller:   operator,
			treasury: entities.LedgerAccount{Owner: custody},
		},
		{
			name:     "non-operator rejected",
			caller:   alice,
			treasury: testTreasury(),
			wantErr:  domain.ErrUnauthorized,
		},
		{
			name:     "foreign owner rejected",
			caller:   operator,
			treasury: entities.LedgerAccount{Owner: bob},
			wantErr:  domain.ErrValidation,
		},
		{
			name:     "short subaccount rejected",
			caller:   operator,
			treasury: entities.LedgerAccount{Owner: custody, Subaccount: []byte{1, 2, 3}},
			wantErr:  domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newEngineFixture(t)

			err := f.accounts.SetTreasury(ctx, tt.caller, tt.treasury)
			treasury, getErr := f.accounts.Treasury(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, getErr, domain.ErrTreasuryNotSet)
				return
			}
			require.NoError(t, err)
			require.NoError(t, getErr)
			assert.True(t, treasury.Equal(tt.treasury))
		})
	}
}

func TestAccountService_DepositAddress(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	a1, err := f.accounts.DepositAddress(alice)
	require.NoError(t, err)
	a2, err := f.accounts.DepositAddress(alice)
	require.NoError(t, err)
	b, err := f.accounts.DepositAddress(bob)
	require.NoError(t, err)

	assert.Equal(t, custody, a1.Owner)
	assert.Len(t, a1.Subaccount, entities.SubaccountLength)
	assert.True(t, a1.Equal(a2))
	assert.False(t, a1.Equal(b))

	_, err = f.accounts.DepositAddress("")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
