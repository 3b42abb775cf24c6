package application

import (
	"context"
	"fmt"
	"time"

	"gambler/lottery-engine/config"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/services"
	"gambler/lottery-engine/domain/store"

	log "github.com/sirupsen/logrus"
)

// EngineDeps are the collaborators the engine is assembled from
type EngineDeps struct {
	Ledger    interfaces.LedgerClient
	Snapshots interfaces.SnapshotRepository
	Random    interfaces.RandomSource
	Publisher interfaces.EventPublisher // nil disables events
	Metrics   interfaces.Metrics        // nil disables metrics
	Clock     interfaces.Clock          // nil uses the wall clock
}

// Engine wires the lottery services around one shared state store
type Engine struct {
	Accounts     interfaces.AccountService
	Rounds       interfaces.RoundService
	Reconciler   interfaces.ReconciliationService
	Consolidator interfaces.ConsolidationService
	Withdrawals  interfaces.WithdrawalService
	Snapshots    interfaces.SnapshotService

	cfg   *config.Config
	clock interfaces.Clock
}

// NewEngine assembles the services from cfg and deps
func NewEngine(cfg *config.Config, deps EngineDeps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = services.SystemClock{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = services.NoopMetrics{}
	}

	st := store.New()
	fee := services.NewTransferFee(cfg.TransferFee)
	custodyOwner := entities.Identity(cfg.CustodyOwner)
	operator := entities.Identity(cfg.OperatorIdentity)

	rounds := services.NewRoundService(st, deps.Random, clock, deps.Publisher, metrics, services.RoundSettings{
		TicketPrice:   cfg.TicketPrice,
		RoundDuration: cfg.RoundDuration,
		HistoryLimit:  cfg.RoundHistoryLimit,
		Operator:      operator,
	})
	reconciler := services.NewReconciliationService(st, deps.Ledger, clock, deps.Publisher, metrics,
		cfg.ReconcileWinCooldown, cfg.LedgerCallTimeout, cfg.SweepConcurrency)
	consolidator := services.NewConsolidationService(st, deps.Ledger, clock, deps.Publisher, metrics,
		fee, cfg.LedgerCallTimeout, cfg.SweepConcurrency)

	return &Engine{
		Accounts:     services.NewAccountService(st, clock, deps.Publisher, custodyOwner, operator),
		Rounds:       rounds,
		Reconciler:   reconciler,
		Consolidator: consolidator,
		Withdrawals: services.NewWithdrawalService(st, deps.Ledger, reconciler, consolidator, clock,
			deps.Publisher, metrics, fee, cfg.LedgerCallTimeout),
		Snapshots: services.NewSnapshotService(st, deps.Snapshots, rounds, cfg.TicketPrice, cfg.SnapshotRetentionCount),
		cfg:       cfg,
		clock:     clock,
	}
}

// Start restores the last checkpoint and then arms the timers. The returned stop
// function halts every worker and takes a final checkpoint.
func (e *Engine) Start(ctx context.Context) (func(), error) {
	if err := e.Snapshots.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore engine state: %w", err)
	}

	// Transfers that were in flight when the last checkpoint was taken are resolved before
	// any new ones start
	logSummary("Pending withdrawals resolved after restore", e.Withdrawals.ResumePending(ctx))
	logSummary("Pending sweeps resolved after restore", e.Consolidator.ResumePending(ctx))

	stops := []func(){
		NewRoundWorker(e.Rounds, e.clock, e.cfg.RoundCheckInterval).Start(ctx),
		NewReconciliationWorker(e.Reconciler, e.cfg.ReconcileInterval).Start(ctx),
		NewConsolidationWorker(e.Consolidator, e.cfg.ConsolidateInterval).Start(ctx),
		NewSettlementWorker(e.Withdrawals, e.cfg.ConsolidateInterval).Start(ctx),
		NewCheckpointWorker(e.Snapshots, e.cfg.CheckpointInterval).Start(ctx),
	}
	log.WithField("workers", len(stops)).Info("Engine started")

	return func() {
		for _, stop := range stops {
			stop()
		}

		checkpointCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Snapshots.Checkpoint(checkpointCtx); err != nil {
			log.WithError(err).Error("Failed to take final checkpoint")
			return
		}
		log.Info("Final checkpoint saved")
	}, nil
}
