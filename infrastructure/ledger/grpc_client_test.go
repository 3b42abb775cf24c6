package ledger

import (
	"context"
	"errors"
	"net"
	"testing"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startLedgerServer serves backend over an in-memory listener and returns a connected client
func startLedgerServer(t *testing.T, backend interfaces.LedgerClient) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterServer(server, backend)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	client, err := NewGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newTestLedger()
	custodial := entities.CustodialAccountFor(testOwner, testUser)
	backend.Mint(custodial, 100)

	client := startLedgerServer(t, backend)

	balance, err := client.BalanceOf(ctx, custodial)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	index, err := client.Transfer(ctx, interfaces.TransferArgs{
		FromSubaccount: custodial.Subaccount,
		To:             testTreasury(),
		Amount:         90,
		Fee:            testFee,
		Memo:           []byte("memo"),
		CreatedAt:      testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index)

	balance, err = client.BalanceOf(ctx, testTreasury())
	require.NoError(t, err)
	assert.Equal(t, uint64(90), balance)
}

func TestGRPCClient_TransferErrorCrossesTheWire(t *testing.T) {
	ctx := context.Background()
	backend := newTestLedger()
	backend.SetFee(12)

	client := startLedgerServer(t, backend)

	_, err := client.Transfer(ctx, interfaces.TransferArgs{To: testTreasury(), Amount: 5, Fee: testFee})
	var transferErr *interfaces.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, interfaces.TransferErrorBadFee, transferErr.Kind)
	assert.Equal(t, uint64(12), transferErr.ExpectedFee)
	assert.ErrorIs(t, err, domain.ErrLedgerRejected)
}

type failingBackend struct {
	err error
}

func (f failingBackend) BalanceOf(context.Context, entities.LedgerAccount) (uint64, error) {
	return 0, f.err
}

func (f failingBackend) Transfer(context.Context, interfaces.TransferArgs) (uint64, error) {
	return 0, f.err
}

func TestGRPCClient_BackendUnavailable(t *testing.T) {
	client := startLedgerServer(t, failingBackend{err: domain.ErrLedgerUnavailable})

	_, err := client.BalanceOf(context.Background(), testTreasury())
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	_, err = client.Transfer(context.Background(), interfaces.TransferArgs{To: testTreasury()})
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestMapRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), domain.ErrLedgerUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), domain.ErrLedgerUnavailable},
		{"context deadline", context.DeadlineExceeded, domain.ErrLedgerUnavailable},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), domain.ErrLedgerRejected},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), domain.ErrLedgerRejected},
		{"plain error", errors.New("boom"), domain.ErrLedgerUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapRPCError("transfer", tt.err), tt.want)
		})
	}
}

func TestTransferErrorMessage_UnknownKindIsGeneric(t *testing.T) {
	msg := &transferErrorMessage{Kind: "ledger_on_fire", Message: "smoke"}
	err := msg.toError()
	assert.Equal(t, interfaces.TransferErrorGeneric, err.Kind)
	assert.Contains(t, err.Error(), "smoke")
}

func TestTransferRequest_PreservesCreatedAt(t *testing.T) {
	args := interfaces.TransferArgs{
		FromSubaccount: []byte{1, 2},
		To:             testTreasury(),
		Amount:         7,
		Fee:            testFee,
		Memo:           []byte("m"),
		CreatedAt:      testNow,
	}
	got := toTransferRequest(args).toArgs()
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.True(t, got.To.Equal(args.To))
	assert.Equal(t, args.Amount, got.Amount)
	assert.Equal(t, args.Memo, got.Memo)
}
