package interfaces

import (
	"context"

	"gambler/lottery-engine/domain/entities"
)

// SnapshotRepository stores the opaque engine checkpoint
type SnapshotRepository interface {
	// Save appends a new checkpoint blob
	Save(ctx context.Context, snapshot *entities.Snapshot) error

	// GetLatest returns the most recent checkpoint, or nil if none exists
	GetLatest(ctx context.Context) (*entities.Snapshot, error)

	// Prune deletes all but the newest keep checkpoints
	Prune(ctx context.Context, keep int) (int64, error)
}
