package interfaces

import (
	"time"

	"gambler/lottery-engine/domain/events"
)

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// Clock returns the current time. Injected so round expiry and cool-downs are testable.
type Clock interface {
	Now() time.Time
}

// Metrics records engine outcomes
type Metrics interface {
	RecordStake()
	RecordDraw(prizePool uint64, hadWinner bool)
	RecordReconciliation(outcome string, credited uint64)
	RecordSweep(outcome string, amount uint64)
	RecordWithdrawal(outcome string, amount uint64)
}
