package application

import (
	"context"
	"time"

	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// RoundWorker draws and rotates the current round once its close time passes
type RoundWorker struct {
	rounds   interfaces.RoundService
	clock    interfaces.Clock
	interval time.Duration
}

// NewRoundWorker creates a new round worker
func NewRoundWorker(rounds interfaces.RoundService, clock interfaces.Clock, interval time.Duration) *RoundWorker {
	return &RoundWorker{
		rounds:   rounds,
		clock:    clock,
		interval: interval,
	}
}

// Start begins the round worker and returns its stop function
func (w *RoundWorker) Start(ctx context.Context) func() {
	return runPeriodic(ctx, "round", w.interval, w.checkRound)
}

// checkRound draws the current round if it is due
func (w *RoundWorker) checkRound(ctx context.Context) {
	result, err := w.rounds.MaybeDraw(ctx, w.clock.Now())
	if err != nil {
		log.WithError(err).Error("Failed to draw round")
		return
	}
	if result == nil {
		return
	}

	fields := log.Fields{
		"round_id":   result.Round.ID,
		"prize_pool": result.PrizePool,
		"entries":    len(result.Round.Entries),
	}
	if result.Winner != nil {
		fields["winner"] = result.Winner.String()
	}
	if result.NextRound != nil {
		fields["next_round_id"] = result.NextRound.ID
		fields["next_round_closes_at"] = result.NextRound.ClosesAt
	}
	log.WithFields(fields).Info("Round drawn by worker")
}
