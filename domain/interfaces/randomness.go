package interfaces

import "gambler/lottery-engine/domain/entities"

// RandomSource selects round winners. Implementations must not be predictable from
// call timing: the winner index has to be fixed by data committed before stakes open.
type RandomSource interface {
	// Commit returns the public commitment published when the round opens
	Commit(roundID uint64) (string, error)

	// Draw selects the winning entry index and returns the revealed seed that lets anyone
	// verify the selection. The index is -1 for a round without entries.
	Draw(round *entities.Round) (index int, seed string, err error)
}
