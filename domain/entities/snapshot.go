package entities

import "time"

// SnapshotVersion is the current checkpoint schema version
const SnapshotVersion = 1

// Snapshot is a persisted checkpoint blob
type Snapshot struct {
	ID        int64     `db:"id"`
	Version   int       `db:"version"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}
