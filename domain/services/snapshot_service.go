package services

import (
	"context"
	"fmt"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"

	log "github.com/sirupsen/logrus"
)

// snapshotService writes the engine state to durable storage and reads it back on startup
type snapshotService struct {
	store       *store.Store
	repo        interfaces.SnapshotRepository
	rounds      interfaces.RoundService
	ticketPrice uint64
	retention   int
}

// NewSnapshotService creates a new snapshot service. retention is the number of checkpoints
// kept after each save; zero keeps all of them.
func NewSnapshotService(
	st *store.Store,
	repo interfaces.SnapshotRepository,
	rounds interfaces.RoundService,
	ticketPrice uint64,
	retention int,
) interfaces.SnapshotService {
	return &snapshotService{
		store:       st,
		repo:        repo,
		rounds:      rounds,
		ticketPrice: ticketPrice,
		retention:   retention,
	}
}

// Checkpoint saves the complete engine state as one blob
func (s *snapshotService) Checkpoint(ctx context.Context) error {
	payload, err := s.store.Marshal()
	if err != nil {
		return err
	}

	snapshot := &entities.Snapshot{
		Version: entities.SnapshotVersion,
		Payload: payload,
	}
	if err := s.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if s.retention > 0 {
		pruned, err := s.repo.Prune(ctx, s.retention)
		if err != nil {
			// The checkpoint itself is stored; old ones are pruned next time
			log.WithError(err).Warn("Failed to prune old checkpoints")
		} else if pruned > 0 {
			log.WithField("pruned", pruned).Debug("Pruned old checkpoints")
		}
	}

	log.WithFields(log.Fields{
		"snapshot_id": snapshot.ID,
		"size":        len(payload),
	}).Debug("Checkpoint saved")
	return nil
}

// Restore loads the latest checkpoint. A missing or unusable checkpoint leaves a fresh
// state. Either way a current round is open when Restore returns.
func (s *snapshotService) Restore(ctx context.Context) error {
	snapshot, err := s.repo.GetLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	state := s.decode(snapshot)
	s.store.Replace(state)

	if s.rounds.CurrentRound(ctx) == nil {
		if _, err := s.rounds.OpenNewRound(ctx); err != nil {
			return fmt.Errorf("failed to open initial round: %w", err)
		}
	}

	round := s.rounds.CurrentRound(ctx)
	log.WithFields(log.Fields{
		"accounts": len(state.Accounts),
		"round_id": round.ID,
		"history":  len(state.History),
	}).Info("Engine state restored")
	return nil
}

// decode turns a checkpoint into a state, falling back to a fresh state when it cannot be used
func (s *snapshotService) decode(snapshot *entities.Snapshot) *store.State {
	if snapshot == nil {
		log.Info("No checkpoint found, starting with a fresh state")
		return store.NewState()
	}

	fields := log.Fields{
		"snapshot_id": snapshot.ID,
		"created_at":  snapshot.CreatedAt,
	}
	if snapshot.Version != entities.SnapshotVersion {
		fields["version"] = snapshot.Version
		log.WithFields(fields).Error("Checkpoint has an unsupported version, starting with a fresh state")
		return store.NewState()
	}

	state, err := store.Unmarshal(snapshot.Payload)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Checkpoint is corrupt, starting with a fresh state")
		return store.NewState()
	}
	if err := state.Validate(s.ticketPrice); err != nil {
		log.WithFields(fields).WithError(err).Error("Checkpoint violates engine invariants, starting with a fresh state")
		return store.NewState()
	}
	return state
}
