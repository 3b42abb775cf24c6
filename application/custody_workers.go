package application

import (
	"context"
	"time"

	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// ReconciliationWorker periodically credits externally confirmed deposits for every account
type ReconciliationWorker struct {
	reconciler interfaces.ReconciliationService
	interval   time.Duration
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(reconciler interfaces.ReconciliationService, interval time.Duration) *ReconciliationWorker {
	return &ReconciliationWorker{reconciler: reconciler, interval: interval}
}

// Start begins the reconciliation worker and returns its stop function
func (w *ReconciliationWorker) Start(ctx context.Context) func() {
	return runPeriodic(ctx, "reconciliation", w.interval, func(ctx context.Context) {
		logSummary("Reconciliation pass completed", w.reconciler.ReconcileAll(ctx))
	})
}

// ConsolidationWorker periodically sweeps custodial balances into the treasury
type ConsolidationWorker struct {
	consolidator interfaces.ConsolidationService
	interval     time.Duration
}

// NewConsolidationWorker creates a new consolidation worker
func NewConsolidationWorker(consolidator interfaces.ConsolidationService, interval time.Duration) *ConsolidationWorker {
	return &ConsolidationWorker{consolidator: consolidator, interval: interval}
}

// Start begins the consolidation worker and returns its stop function
func (w *ConsolidationWorker) Start(ctx context.Context) func() {
	return runPeriodic(ctx, "consolidation", w.interval, func(ctx context.Context) {
		logSummary("Consolidation pass completed", w.consolidator.ConsolidateAll(ctx))
	})
}

// SettlementWorker periodically re-submits withdrawals whose ledger outcome was lost
type SettlementWorker struct {
	withdrawals interfaces.WithdrawalService
	interval    time.Duration
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(withdrawals interfaces.WithdrawalService, interval time.Duration) *SettlementWorker {
	return &SettlementWorker{withdrawals: withdrawals, interval: interval}
}

// Start begins the settlement worker and returns its stop function
func (w *SettlementWorker) Start(ctx context.Context) func() {
	return runPeriodic(ctx, "settlement", w.interval, func(ctx context.Context) {
		logSummary("Pending withdrawals re-submitted", w.withdrawals.ResumePending(ctx))
	})
}

// CheckpointWorker periodically persists the engine state
type CheckpointWorker struct {
	snapshots interfaces.SnapshotService
	interval  time.Duration
}

// NewCheckpointWorker creates a new checkpoint worker
func NewCheckpointWorker(snapshots interfaces.SnapshotService, interval time.Duration) *CheckpointWorker {
	return &CheckpointWorker{snapshots: snapshots, interval: interval}
}

// Start begins the checkpoint worker and returns its stop function
func (w *CheckpointWorker) Start(ctx context.Context) func() {
	return runPeriodic(ctx, "checkpoint", w.interval, func(ctx context.Context) {
		if err := w.snapshots.Checkpoint(ctx); err != nil {
			log.WithError(err).Error("Failed to checkpoint engine state")
		}
	})
}

func logSummary(msg string, summary *interfaces.SweepSummary) {
	if summary == nil || summary.Processed == 0 {
		return
	}
	entry := log.WithFields(log.Fields{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"total":     summary.Total,
	})
	if summary.Failed > 0 {
		entry.Warn(msg)
		return
	}
	entry.Debug(msg)
}
