package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gambler/lottery-engine/domain"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/store"
	"gambler/lottery-engine/domain/utils"

	log "github.com/sirupsen/logrus"
)

// RoundSettings holds the fixed parameters of the round lifecycle
type RoundSettings struct {
	TicketPrice   uint64
	RoundDuration time.Duration
	HistoryLimit  int
	Operator      entities.Identity
}

// roundService implements the round lifecycle: stakes, draws and rotation
type roundService struct {
	store          *store.Store
	random         interfaces.RandomSource
	clock          interfaces.Clock
	eventPublisher interfaces.EventPublisher
	metrics        interfaces.Metrics
	settings       RoundSettings
}

// NewRoundService creates a new round service
func NewRoundService(
	st *store.Store,
	random interfaces.RandomSource,
	clock interfaces.Clock,
	eventPublisher interfaces.EventPublisher,
	metrics interfaces.Metrics,
	settings RoundSettings,
) interfaces.RoundService {
	return &roundService{
		store:          st,
		random:         random,
		clock:          clock,
		eventPublisher: eventPublisher,
		metrics:        metrics,
		settings:       settings,
	}
}

// OpenNewRound replaces the current round with a fresh one. A current round that still
// holds entries must be drawn first.
func (s *roundService) OpenNewRound(ctx context.Context) (*entities.Round, error) {
	pending := newPendingEvents(s.eventPublisher)
	var opened *entities.Round

	err := s.store.Update(func(st *store.State) error {
		if current := st.CurrentRound; current != nil && !current.IsDrawn() && len(current.Entries) > 0 {
			return fmt.Errorf("%w: round %d holds %d entries", domain.ErrRoundStillOpen, current.ID, len(current.Entries))
		}
		round, err := s.openRoundLocked(st, s.clock.Now())
		if err != nil {
			return err
		}
		opened = round.Clone()
		pending.add(roundOpened(round))
		return nil
	})
	if err != nil {
		return nil, err
	}

	pending.flush()
	log.WithFields(log.Fields{
		"round_id":  opened.ID,
		"closes_at": opened.ClosesAt,
	}).Info("Opened new round")
	return opened, nil
}

// PlaceStake debits one ticket and adds an entry to the current round
func (s *roundService) PlaceStake(ctx context.Context, identity entities.Identity) (*interfaces.StakeResult, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	pending := newPendingEvents(s.eventPublisher)
	var result *interfaces.StakeResult

	err := s.store.Update(func(st *store.State) error {
		now := s.clock.Now()

		account, ok := st.Account(identity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, identity)
		}
		if account.Available() < s.settings.TicketPrice {
			return fmt.Errorf("%w: have %d available, need %d", domain.ErrInsufficientBalance, account.Available(), s.settings.TicketPrice)
		}

		round := st.CurrentRound
		if round == nil || !round.CanAcceptStakes(now) {
			return domain.ErrRoundClosed
		}
		if round.PrizePool > math.MaxUint64-s.settings.TicketPrice {
			return fmt.Errorf("round %d prize pool would overflow", round.ID)
		}

		oldBalance := account.Balance
		tx := entities.Transaction{
			Amount:    s.settings.TicketPrice,
			Timestamp: now,
			Type:      entities.TransactionTypeBet,
			RoundID:   uint64Ptr(round.ID),
		}
		if err := account.Debit(tx); err != nil {
			return err
		}
		round.AddEntry(identity, s.settings.TicketPrice)
		st.Stats.TotalBets++

		result = &interfaces.StakeResult{
			RoundID:    round.ID,
			EntryCount: round.CountEntries(identity),
			PrizePool:  round.PrizePool,
			NewBalance: account.Balance,
		}
		pending.add(balanceChanged(account, oldBalance, tx))
		return nil
	})
	if err != nil {
		return nil, err
	}

	pending.flush()
	s.metrics.RecordStake()
	log.WithFields(log.Fields{
		"identity":   identity,
		"round_id":   result.RoundID,
		"prize_pool": utils.FormatTokens(result.PrizePool),
	}).Debug("Stake placed")
	return result, nil
}

// MaybeDraw draws the current round if its close time has passed
func (s *roundService) MaybeDraw(ctx context.Context, now time.Time) (*interfaces.DrawResult, error) {
	pending := newPendingEvents(s.eventPublisher)
	var result *interfaces.DrawResult

	err := s.store.Update(func(st *store.State) error {
		if st.CurrentRound == nil {
			round, err := s.openRoundLocked(st, now)
			if err != nil {
				return err
			}
			pending.add(roundOpened(round))
			return nil
		}
		if !st.CurrentRound.IsExpired(now) {
			return nil
		}
		var err error
		result, err = s.drawLocked(st, now, pending)
		return err
	})
	if err != nil {
		return nil, err
	}

	pending.flush()
	s.logDraw(result)
	return result, nil
}

// TriggerDraw lets the operator run the draw for a specific round once it has closed
func (s *roundService) TriggerDraw(ctx context.Context, caller entities.Identity, roundID uint64) (*interfaces.DrawResult, error) {
	if err := requireOperator(s.settings.Operator, caller); err != nil {
		return nil, err
	}

	pending := newPendingEvents(s.eventPublisher)
	var result *interfaces.DrawResult

	err := s.store.Update(func(st *store.State) error {
		now := s.clock.Now()
		current := st.CurrentRound
		switch {
		case current == nil || roundID > current.ID:
			return fmt.Errorf("%w: round %d does not exist", domain.ErrValidation, roundID)
		case roundID < current.ID || current.IsDrawn():
			return fmt.Errorf("%w: round %d", domain.ErrRoundAlreadyDrawn, roundID)
		case !current.IsExpired(now):
			return fmt.Errorf("%w: round %d closes at %s", domain.ErrRoundStillOpen, roundID, current.ClosesAt.Format(time.RFC3339))
		}
		var err error
		result, err = s.drawLocked(st, now, pending)
		return err
	})
	if err != nil {
		return nil, err
	}

	pending.flush()
	s.logDraw(result)
	return result, nil
}

// CurrentRound returns a copy of the current round
func (s *roundService) CurrentRound(ctx context.Context) *entities.Round {
	var round *entities.Round
	s.store.View(func(st *store.State) {
		if st.CurrentRound != nil {
			round = st.CurrentRound.Clone()
		}
	})
	return round
}

// RoundHistory returns copies of the retained completed rounds, newest last
func (s *roundService) RoundHistory(ctx context.Context) []*entities.Round {
	var history []*entities.Round
	s.store.View(func(st *store.State) {
		history = make([]*entities.Round, 0, len(st.History))
		for _, r := range st.History {
			history = append(history, r.Clone())
		}
	})
	return history
}

// drawLocked completes the current round and opens the next one. All fallible steps run
// before the first mutation so an error leaves the state untouched.
func (s *roundService) drawLocked(st *store.State, now time.Time, pending *pendingEvents) (*interfaces.DrawResult, error) {
	round := st.CurrentRound
	if err := round.ValidatePrizePool(s.settings.TicketPrice); err != nil {
		return nil, err
	}

	index, seed, err := s.random.Draw(round)
	if err != nil {
		return nil, fmt.Errorf("failed to draw round %d: %w", round.ID, err)
	}

	var (
		winner     *entities.Identity
		account    *entities.Account
		oldBalance uint64
	)
	if len(round.Entries) > 0 {
		if index < 0 || index >= len(round.Entries) {
			return nil, fmt.Errorf("random source returned index %d for %d entries", index, len(round.Entries))
		}
		w := round.Entries[index]
		winner = &w
		var ok bool
		if account, ok = st.Account(w); !ok {
			return nil, fmt.Errorf("%w: winner %s of round %d", domain.ErrAccountNotFound, w, round.ID)
		}
		if account.Balance > math.MaxUint64-round.PrizePool {
			return nil, fmt.Errorf("prize of round %d would overflow the winner's balance", round.ID)
		}
		oldBalance = account.Balance
	}

	nextCommitment, err := s.random.Commit(round.ID + 1)
	if err != nil {
		return nil, fmt.Errorf("failed to commit round %d: %w", round.ID+1, err)
	}

	if account != nil {
		tx := entities.Transaction{
			Amount:    round.PrizePool,
			Timestamp: now,
			Type:      entities.TransactionTypeWin,
			RoundID:   uint64Ptr(round.ID),
		}
		if err := account.Credit(tx); err != nil {
			return nil, err
		}
		account.Winnings = append(account.Winnings, entities.Winning{
			Amount:    round.PrizePool,
			Timestamp: now,
			RoundID:   round.ID,
		})
		st.Stats.TotalWinnings += round.PrizePool
		pending.add(balanceChanged(account, oldBalance, tx))
	}

	round.Complete(winner, seed, now)
	st.Stats.RoundsCompleted++
	st.History = append(st.History, round)
	if limit := s.settings.HistoryLimit; limit > 0 && len(st.History) > limit {
		st.History = append([]*entities.Round(nil), st.History[len(st.History)-limit:]...)
	}

	next := entities.NewRound(round.ID+1, now, s.settings.RoundDuration, nextCommitment)
	st.CurrentRound = next

	drawn := events.RoundDrawnEvent{
		RoundID:    round.ID,
		PrizePool:  round.PrizePool,
		EntryCount: len(round.Entries),
		Seed:       seed,
	}
	if winner != nil {
		drawn.Winner = *winner
	}
	pending.add(drawn)
	pending.add(roundOpened(next))

	return &interfaces.DrawResult{
		Round:     round.Clone(),
		Winner:    winner,
		PrizePool: round.PrizePool,
		NextRound: next.Clone(),
	}, nil
}

// openRoundLocked installs round previous+1, or round 0 when there is no previous round
func (s *roundService) openRoundLocked(st *store.State, now time.Time) (*entities.Round, error) {
	var id uint64
	switch {
	case st.CurrentRound != nil:
		id = st.CurrentRound.ID + 1
	case len(st.History) > 0:
		id = st.History[len(st.History)-1].ID + 1
	}

	commitment, err := s.random.Commit(id)
	if err != nil {
		return nil, fmt.Errorf("failed to commit round %d: %w", id, err)
	}
	round := entities.NewRound(id, now, s.settings.RoundDuration, commitment)
	st.CurrentRound = round
	return round, nil
}

func (s *roundService) logDraw(result *interfaces.DrawResult) {
	if result == nil {
		return
	}
	s.metrics.RecordDraw(result.PrizePool, result.Winner != nil)

	fields := log.Fields{
		"round_id":      result.Round.ID,
		"entries":       len(result.Round.Entries),
		"prize_pool":    utils.FormatTokens(result.PrizePool),
		"next_round_id": result.NextRound.ID,
	}
	if result.Winner == nil {
		log.WithFields(fields).Info("Round closed without entries")
		return
	}
	fields["winner"] = *result.Winner
	log.WithFields(fields).Info("Round drawn")
}

func roundOpened(round *entities.Round) events.RoundOpenedEvent {
	return events.RoundOpenedEvent{
		RoundID:    round.ID,
		ClosesAt:   round.ClosesAt.Unix(),
		Commitment: round.Commitment,
	}
}
