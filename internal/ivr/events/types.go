// Package events provides IVR session lifecycle event definitions and
// publishing infrastructure.
package events

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType identifies the type of session event
type EventType string

const (
	// SessionStarted fires when a session is registered for a new call
	SessionStarted EventType = "session.started"
	// SessionStateChanged fires after every state transition
	SessionStateChanged EventType = "session.state_changed"
	// SessionEnded fires once when the session leaves the registry
	SessionEnded EventType = "session.ended"
)

// EndReason explains why a session ended
type EndReason string

const (
	EndReasonCompleted    EndReason = "completed"    // Caller answered, thanked, hung up
	EndReasonNoInput      EndReason = "no_input"     // Three failed recognitions
	EndReasonDisconnected EndReason = "disconnected" // Caller hung up mid-questionnaire
	EndReasonFailed       EndReason = "failed"       // Gateway command failed
	EndReasonAbandoned    EndReason = "abandoned"    // Evicted idle or closed at shutdown
)

// Event is the base interface for all session events
type Event interface {
	// Type returns the event type for routing/filtering
	Type() EventType
	// Subject returns the subject this event should publish to
	Subject() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// CallID returns the correlation ID
	CallID() string
}

// BaseEvent contains fields common to all events
type BaseEvent struct {
	// EventID is a unique identifier for this event instance (for deduplication)
	EventID string `json:"event_id"`
	// EventType identifies the event
	EventType EventType `json:"event_type"`
	// EventTime is when the event occurred
	EventTime time.Time `json:"event_time"`
	// CallUUID is the call identifier the session is keyed by
	CallUUID string `json:"call_uuid"`
	// NodeID identifies the service instance
	NodeID string `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) CallID() string       { return e.CallUUID }

// Subject returns the subject for routing
// Format: ivr.calls.<call_uuid>.<event_type_suffix>
func (e *BaseEvent) Subject() string {
	return CallSubject(e.CallUUID, strings.TrimPrefix(string(e.EventType), "session."))
}

// SessionStartedEvent fires when a session is created
type SessionStartedEvent struct {
	BaseEvent
	PhoneNumber  string `json:"phone_number"`
	CallerNumber string `json:"caller_number,omitempty"`
}

// StateChangedEvent fires on every transition
type StateChangedEvent struct {
	BaseEvent
	From     string `json:"from"`
	To       string `json:"to"`
	Trigger  string `json:"trigger"`  // Event that caused the transition
	Attempts int    `json:"attempts"` // Recognition attempt counter after the transition
}

// SessionEndedEvent fires when a session is torn down
type SessionEndedEvent struct {
	BaseEvent
	FinalState string    `json:"final_state"`
	EndReason  EndReason `json:"end_reason"`
	Detail     string    `json:"detail,omitempty"`
	// Time from session creation to teardown
	DurationMs int64 `json:"duration_ms"`
}

// MarshalEvent encodes an event as JSON
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
