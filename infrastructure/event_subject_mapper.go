package infrastructure

import (
	"fmt"

	"gambler/lottery-engine/domain/events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

var subjectsByType = map[events.EventType]string{
	events.EventTypeRoundOpened:         "lottery.rounds.opened",
	events.EventTypeRoundDrawn:          "lottery.rounds.drawn",
	events.EventTypeBalanceChange:       "lottery.accounts.balance_changed",
	events.EventTypeDepositReconciled:   "lottery.deposits.reconciled",
	events.EventTypeCustodySwept:        "lottery.custody.swept",
	events.EventTypeWithdrawalCompleted: "lottery.withdrawals.completed",
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjectsByType[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("lottery.unknown.%s", event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range subjectsByType {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"lottery.rounds.opened",
		"lottery.rounds.drawn",
		"lottery.accounts.balance_changed",
		"lottery.deposits.reconciled",
		"lottery.custody.swept",
		"lottery.withdrawals.completed",
	}
}
