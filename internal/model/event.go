package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle fact a coordination event records.
type EventType string

const (
	EventViewed         EventType = "viewed"
	EventClicked        EventType = "clicked"
	EventFeedback       EventType = "feedback"
	EventInteraction    EventType = "interaction"
	EventQuestion       EventType = "question"
	EventBlocker        EventType = "blocker"
	EventMissingStandup EventType = "missing_standup"
	EventStaleWork      EventType = "stale_work"
	EventLowConfidence  EventType = "low_confidence"
	EventOverdue        EventType = "overdue"
	EventUnanswered     EventType = "unanswered"
	EventSnoozeExpired  EventType = "snooze_expired"
)

// EventTypes lists every known event type in declaration order.
var EventTypes = []EventType{
	EventViewed, EventClicked, EventFeedback, EventInteraction,
	EventQuestion, EventBlocker, EventMissingStandup, EventStaleWork,
	EventLowConfidence, EventOverdue, EventUnanswered, EventSnoozeExpired,
}

// ActivityEventTypes are the user engagement signals that hold back nudges
// while someone is actively working with the coordination surface.
var ActivityEventTypes = []EventType{
	EventViewed, EventClicked, EventFeedback, EventInteraction,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity is the urgency attached to events, triggers and notifications.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Lower returns the next severity down the ladder. LOW stays LOW.
func (s Severity) Lower() Severity {
	switch s {
	case SeverityHigh:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CoordinationEvent is an immutable lifecycle fact produced upstream.
// Only ProcessedAt is ever written after creation.
type CoordinationEvent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Type      EventType `json:"event_type"`

	// TargetUserID is the person the fact is about, if any.
	TargetUserID string `json:"target_user_id,omitempty"`

	// RelatedEntityID links the fact to an issue, question or action.
	RelatedEntityID string `json:"related_entity_id,omitempty"`

	Severity Severity `json:"severity,omitempty"`

	// Metadata carries numeric and string facts such as blockerDays or
	// dependencyOwnerUserId. Use Payload for typed access.
	Metadata Metadata `json:"metadata,omitempty"`

	OccurredAt  time.Time  `json:"occurred_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Synthetic marks aging events fabricated by the sweep. They are never
	// persisted.
	Synthetic bool `json:"-"`
}

// Payload decodes the event metadata into the variant for its type.
func (e CoordinationEvent) Payload() EventPayload {
	return DecodePayload(e.Type, e.Metadata)
}

// Metadata is the untyped fact bag persisted alongside an event.
// Its readers never fail: a value of the wrong type reads as absent.
type Metadata map[string]any

// Number returns the numeric value stored under key.
func (m Metadata) Number(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String returns the non-empty string stored under key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Bool returns the boolean stored under key.
func (m Metadata) Bool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
