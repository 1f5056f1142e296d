package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder provides fluent construction of session events with consistent defaults.
type Builder struct {
	nodeID string
	now    func() time.Time
}

// NewBuilder creates an event builder with global defaults.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID, now: time.Now}
}

// newBase creates a BaseEvent with common fields populated.
func (b *Builder) newBase(eventType EventType, callUUID string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: b.now().UTC(),
		CallUUID:  callUUID,
		NodeID:    b.nodeID,
	}
}

// SessionStartedBuilder constructs SessionStartedEvent.
type SessionStartedBuilder struct {
	event *SessionStartedEvent
}

// SessionStarted starts building a SessionStartedEvent.
func (b *Builder) SessionStarted(callUUID string) *SessionStartedBuilder {
	return &SessionStartedBuilder{
		event: &SessionStartedEvent{BaseEvent: b.newBase(SessionStarted, callUUID)},
	}
}

func (sb *SessionStartedBuilder) PhoneNumber(n string) *SessionStartedBuilder {
	sb.event.PhoneNumber = n
	return sb
}

func (sb *SessionStartedBuilder) CallerNumber(n string) *SessionStartedBuilder {
	sb.event.CallerNumber = n
	return sb
}

func (sb *SessionStartedBuilder) Build() *SessionStartedEvent {
	return sb.event
}

// StateChangedBuilder constructs StateChangedEvent.
type StateChangedBuilder struct {
	event *StateChangedEvent
}

// StateChanged starts building a StateChangedEvent.
func (b *Builder) StateChanged(callUUID string) *StateChangedBuilder {
	return &StateChangedBuilder{
		event: &StateChangedEvent{BaseEvent: b.newBase(SessionStateChanged, callUUID)},
	}
}

func (sb *StateChangedBuilder) Transition(from, to string) *StateChangedBuilder {
	sb.event.From = from
	sb.event.To = to
	return sb
}

func (sb *StateChangedBuilder) Trigger(name string) *StateChangedBuilder {
	sb.event.Trigger = name
	return sb
}

func (sb *StateChangedBuilder) Attempts(n int) *StateChangedBuilder {
	sb.event.Attempts = n
	return sb
}

func (sb *StateChangedBuilder) Build() *StateChangedEvent {
	return sb.event
}

// SessionEndedBuilder constructs SessionEndedEvent.
type SessionEndedBuilder struct {
	event *SessionEndedEvent
}

// SessionEnded starts building a SessionEndedEvent.
func (b *Builder) SessionEnded(callUUID string) *SessionEndedBuilder {
	return &SessionEndedBuilder{
		event: &SessionEndedEvent{BaseEvent: b.newBase(SessionEnded, callUUID)},
	}
}

func (sb *SessionEndedBuilder) Reason(reason EndReason, detail string) *SessionEndedBuilder {
	sb.event.EndReason = reason
	sb.event.Detail = detail
	return sb
}

func (sb *SessionEndedBuilder) FinalState(state string) *SessionEndedBuilder {
	sb.event.FinalState = state
	return sb
}

func (sb *SessionEndedBuilder) Duration(d time.Duration) *SessionEndedBuilder {
	sb.event.DurationMs = d.Milliseconds()
	return sb
}

func (sb *SessionEndedBuilder) Build() *SessionEndedEvent {
	return sb.event
}
