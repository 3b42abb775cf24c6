package services

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// BeaconSecretLength is the key size of the commit-reveal beacon
const BeaconSecretLength = 32

// CommitRevealBeacon derives one secret seed per round from a long-term key.
// The blake3 hash of the seed is published when the round opens and the seed itself
// is revealed with the draw, so every participant can recompute the winning index.
// The operator holding the key can compute seeds ahead of time; the commitment only
// proves the seed was not chosen after stakes were seen.
type CommitRevealBeacon struct {
	secret []byte
}

var _ interfaces.RandomSource = (*CommitRevealBeacon)(nil)

// NewCommitRevealBeacon creates a beacon keyed with secret. An empty secret is replaced
// by a random per-process key, which means commitments do not survive a restart.
func NewCommitRevealBeacon(secret []byte) (*CommitRevealBeacon, error) {
	if len(secret) == 0 {
		secret = make([]byte, BeaconSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate beacon secret: %w", err)
		}
		log.Warn("No beacon secret configured, using an ephemeral key")
	}
	if len(secret) != BeaconSecretLength {
		return nil, fmt.Errorf("beacon secret must be %d bytes, got %d", BeaconSecretLength, len(secret))
	}
	return &CommitRevealBeacon{secret: append([]byte(nil), secret...)}, nil
}

// Commit returns hex(blake3(seed)) for the round
func (b *CommitRevealBeacon) Commit(roundID uint64) (string, error) {
	seed := b.seedFor(roundID)
	return commitmentOf(seed[:]), nil
}

// Draw reveals the round seed and selects the winning entry from it
func (b *CommitRevealBeacon) Draw(round *entities.Round) (int, string, error) {
	if round == nil {
		return 0, "", errors.New("cannot draw a nil round")
	}
	seed := b.seedFor(round.ID)
	if round.Commitment != "" && round.Commitment != commitmentOf(seed[:]) {
		// The key changed since the round opened; the draw still has to happen
		log.WithField("round_id", round.ID).Warn("Round commitment does not match the beacon seed")
	}
	if len(round.Entries) == 0 {
		return -1, hex.EncodeToString(seed[:]), nil
	}
	return selectIndex(seed[:], round.ID, round.Entries), hex.EncodeToString(seed[:]), nil
}

func (b *CommitRevealBeacon) seedFor(roundID uint64) [32]byte {
	h := blake3.New(32, b.secret)
	h.Write([]byte("lottery-round-seed"))
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	h.Write(id[:])
	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed
}

func commitmentOf(seed []byte) string {
	sum := blake3.Sum256(seed)
	return hex.EncodeToString(sum[:])
}

// selectIndex maps (seed, round id, entries) to an entry index. The modulo bias is below
// 2^-40 for any realistic number of entries.
func selectIndex(seed []byte, roundID uint64, entries []entities.Identity) int {
	h := blake3.New(32, seed)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	h.Write(id[:])
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(len(entries)))
}

// VerifyDraw checks a completed round against its published commitment: the revealed seed
// must hash to the commitment and must select the recorded winner.
func VerifyDraw(round *entities.Round) error {
	if round == nil || !round.IsDrawn() {
		return errors.New("round has not been drawn")
	}
	seed, err := hex.DecodeString(round.Seed)
	if err != nil || len(seed) != 32 {
		return fmt.Errorf("round %d has an invalid revealed seed", round.ID)
	}
	if commitmentOf(seed) != round.Commitment {
		return fmt.Errorf("round %d seed does not match its commitment", round.ID)
	}
	if len(round.Entries) == 0 {
		if round.Winner != nil {
			return fmt.Errorf("round %d has a winner but no entries", round.ID)
		}
		return nil
	}
	if round.Winner == nil {
		return fmt.Errorf("round %d has entries but no winner", round.ID)
	}
	expected := round.Entries[selectIndex(seed, round.ID, round.Entries)]
	if expected != *round.Winner {
		return fmt.Errorf("round %d winner %s does not match selected entry %s", round.ID, *round.Winner, expected)
	}
	return nil
}
