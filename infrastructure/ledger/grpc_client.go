package ledger

import (
	"context"
	"errors"
	"fmt"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCClient talks to the external ledger service over gRPC
type GRPCClient struct {
	conn *grpc.ClientConn
}

// compile-time interface check
var _ interfaces.LedgerClient = (*GRPCClient)(nil)

// NewGRPCClient creates a client for the ledger at addr. The connection is established lazily.
func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client for %s: %w", addr, err)
	}

	log.WithField("addr", addr).Info("Ledger gRPC client created")
	return &GRPCClient{conn: conn}, nil
}

// Close releases the underlying connection
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// BalanceOf returns the confirmed balance of a ledger account
func (c *GRPCClient) BalanceOf(ctx context.Context, account entities.LedgerAccount) (uint64, error) {
	req := &balanceOfRequest{Account: toAccountMessage(account)}
	var resp balanceOfResponse
	if err := c.conn.Invoke(ctx, balanceOfMethod, req, &resp); err != nil {
		return 0, mapRPCError("balance_of", err)
	}
	return resp.Balance, nil
}

// Transfer submits a transfer and returns its block index
func (c *GRPCClient) Transfer(ctx context.Context, args interfaces.TransferArgs) (uint64, error) {
	var resp transferResponse
	if err := c.conn.Invoke(ctx, transferMethod, toTransferRequest(args), &resp); err != nil {
		return 0, mapRPCError("transfer", err)
	}
	if resp.Error != nil {
		return 0, resp.Error.toError()
	}
	if resp.BlockIndex == nil {
		return 0, fmt.Errorf("%w: transfer response carries neither block index nor error", domain.ErrLedgerUnavailable)
	}
	return *resp.BlockIndex, nil
}

// mapRPCError maps transport failures onto the domain error taxonomy
func mapRPCError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", domain.ErrLedgerUnavailable, method, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %s: %w", domain.ErrLedgerUnavailable, method, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.Unknown:
		return fmt.Errorf("%w: %s: %s", domain.ErrLedgerUnavailable, method, st.Message())
	default:
		return fmt.Errorf("%w: %s: %s: %s", domain.ErrLedgerRejected, method, st.Code(), st.Message())
	}
}
