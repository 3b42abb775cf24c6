package ledger

import (
	"context"
	"errors"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/interfaces"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ledgerServer exposes any LedgerClient over the ledger gRPC surface
type ledgerServer struct {
	backend interfaces.LedgerClient
}

// RegisterServer serves backend on s under the ledger service name
func RegisterServer(s *grpc.Server, backend interfaces.LedgerClient) {
	s.RegisterService(&serviceDesc, &ledgerServer{backend: backend})
}

func (s *ledgerServer) balanceOf(ctx context.Context, req *balanceOfRequest) (*balanceOfResponse, error) {
	balance, err := s.backend.BalanceOf(ctx, req.Account.toEntity())
	if err != nil {
		return nil, toStatus(err)
	}
	return &balanceOfResponse{Balance: balance}, nil
}

func (s *ledgerServer) transfer(ctx context.Context, req *transferRequest) (*transferResponse, error) {
	index, err := s.backend.Transfer(ctx, req.toArgs())
	if err != nil {
		var transferErr *interfaces.TransferError
		if errors.As(err, &transferErr) {
			return &transferResponse{Error: toTransferErrorMessage(transferErr)}, nil
		}
		return nil, toStatus(err)
	}
	return &transferResponse{BlockIndex: &index}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "BalanceOf",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(balanceOfRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, r any) (any, error) {
					return srv.(*ledgerServer).balanceOf(ctx, r.(*balanceOfRequest))
				}
				if interceptor == nil {
					return handler(ctx, req)
				}
				return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: balanceOfMethod}, handler)
			},
		},
		{
			MethodName: "Transfer",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(transferRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, r any) (any, error) {
					return srv.(*ledgerServer).transfer(ctx, r.(*transferRequest))
				}
				if interceptor == nil {
					return handler(ctx, req)
				}
				return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: transferMethod}, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}
