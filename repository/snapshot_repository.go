package repository

import (
	"context"
	"errors"
	"fmt"

	"gambler/lottery-engine/database"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// SnapshotRepository stores engine checkpoints in the engine_snapshots table
type SnapshotRepository struct {
	db *database.DB
	q  Queryable
}

var _ interfaces.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, q: db.Pool}
}

// Save appends a checkpoint and fills in its id and creation time
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	query := `
		INSERT INTO engine_snapshots (version, payload)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, snapshot.Version, snapshot.Payload).Scan(
		&snapshot.ID,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// GetLatest returns the newest checkpoint, or nil if none has been saved
func (r *SnapshotRepository) GetLatest(ctx context.Context) (*entities.Snapshot, error) {
	query := `
		SELECT id, version, payload, created_at
		FROM engine_snapshots
		ORDER BY id DESC
		LIMIT 1
	`

	var snapshot entities.Snapshot
	err := r.q.QueryRow(ctx, query).Scan(
		&snapshot.ID,
		&snapshot.Version,
		&snapshot.Payload,
		&snapshot.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return &snapshot, nil
}

// Prune deletes every checkpoint except the newest keep
func (r *SnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	var deleted int64
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Serialise concurrent prunes so they agree on the cutoff
		if _, err := tx.Exec(ctx, `LOCK TABLE engine_snapshots IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("failed to lock snapshots: %w", err)
		}

		query := `
			DELETE FROM engine_snapshots
			WHERE id < (
				SELECT MIN(id) FROM (
					SELECT id FROM engine_snapshots ORDER BY id DESC LIMIT $1
				) AS kept
			)
		`
		tag, err := tx.Exec(ctx, query, keep)
		if err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Count returns the number of stored checkpoints
func (r *SnapshotRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM engine_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}
