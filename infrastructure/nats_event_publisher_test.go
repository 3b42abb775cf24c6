package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMessagePublisher struct {
	mock.Mock
}

func (m *mockMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) RecordNATSMessagePublished(eventType string) {
	r.counts[eventType]++
}

func TestNATSEventPublisher_PublishWrapsEventInEnvelope(t *testing.T) {
	publisher := new(mockMessagePublisher)
	recorder := &countingRecorder{counts: make(map[string]int)}
	p := NewNATSEventPublisher(publisher, NewEventSubjectMapper(), recorder)

	event := events.RoundDrawnEvent{
		RoundID:    5,
		Winner:     entities.Identity("alice-aaaaa"),
		PrizePool:  4,
		EntryCount: 4,
		Seed:       "ab",
	}

	var captured []byte
	publisher.On("Publish", mock.Anything, "lottery.rounds.drawn", mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]byte)
		}).
		Return(nil).Once()

	require.NoError(t, p.Publish(event))

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(captured, &envelope))
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, string(events.EventTypeRoundDrawn), envelope.EventType)
	assert.Equal(t, "lottery-engine", envelope.SourceService)
	assert.False(t, envelope.Timestamp.IsZero())

	var payload events.RoundDrawnEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, event, payload)

	assert.Equal(t, 1, recorder.counts[string(events.EventTypeRoundDrawn)])
	publisher.AssertExpectations(t)
}

func TestNATSEventPublisher_PublishErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "transport failure is returned", err: errors.New("connection closed"), wantErr: true},
		{name: "missing stream is ignored", err: errors.New("nats: no response from stream"), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := new(mockMessagePublisher)
			p := NewNATSEventPublisher(publisher, NewEventSubjectMapper(), nil)
			publisher.On("Publish", mock.Anything, "lottery.custody.swept", mock.Anything).Return(tt.err)

			err := p.Publish(events.CustodySweptEvent{Identity: "alice-aaaaa", Amount: 90, Fee: 10})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventSubjectMapper_RoundTrip(t *testing.T) {
	m := NewEventSubjectMapper()

	all := []events.Event{
		events.RoundOpenedEvent{},
		events.RoundDrawnEvent{},
		events.BalanceChangeEvent{},
		events.DepositReconciledEvent{},
		events.CustodySweptEvent{},
		events.WithdrawalCompletedEvent{},
	}

	subjects := make([]string, 0, len(all))
	for _, event := range all {
		subject := m.MapEventToSubject(event)
		assert.NotContains(t, subject, "unknown", "event %s has no subject", event.Type())
		assert.Equal(t, event.Type(), m.MapSubjectToEventType(subject))
		subjects = append(subjects, subject)
	}

	assert.ElementsMatch(t, m.GetAllSubjects(), subjects)
}

type unknownEvent struct{}

func (unknownEvent) Type() events.EventType { return "mystery" }

func TestEventSubjectMapper_UnknownEvent(t *testing.T) {
	m := NewEventSubjectMapper()
	assert.Equal(t, "lottery.unknown.mystery", m.MapEventToSubject(unknownEvent{}))
	assert.Equal(t, events.EventType("some.subject"), m.MapSubjectToEventType("some.subject"))
}

func TestNoopEventPublisher(t *testing.T) {
	assert.NoError(t, NewNoopEventPublisher().Publish(unknownEvent{}))
}
