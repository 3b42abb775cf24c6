package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"gambler/lottery-engine/config"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/infrastructure/ledger"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// RunLedgerSimulator serves an in-memory ledger over gRPC until ctx is cancelled.
// Local development points LEDGER_ADDR at it.
func RunLedgerSimulator(ctx context.Context, addr string) error {
	// The simulator needs no database, so it skips config.Get validation
	cfg := config.NewTestConfig()
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	if owner := os.Getenv("CUSTODY_OWNER"); owner != "" {
		cfg.CustodyOwner = owner
	}
	if fee := os.Getenv("TRANSFER_FEE"); fee != "" {
		parsed, err := strconv.ParseUint(fee, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TRANSFER_FEE: %w", err)
		}
		cfg.TransferFee = parsed
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	SetupLogging(cfg)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := grpc.NewServer()
	ledger.RegisterServer(server, ledger.NewSimulatedLedger(entities.Identity(cfg.CustodyOwner), cfg.TransferFee))

	go func() {
		<-ctx.Done()
		log.Info("Stopping ledger simulator...")
		server.GracefulStop()
	}()

	log.WithField("addr", lis.Addr().String()).Info("Ledger simulator listening")
	if err := server.Serve(lis); err != nil {
		return fmt.Errorf("ledger simulator stopped: %w", err)
	}
	return nil
}
