package model

import "time"

// NotificationTypeNudge is the type recorded on every coordination nudge.
const NotificationTypeNudge = "COORDINATION_NUDGE"

// Notification is an in-app nudge delivered to a user for a trigger.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	ProjectID string `json:"project_id"`

	// UserID is the recipient.
	UserID string `json:"user_id"`

	// TriggerID links this notification to the trigger it delivers.
	TriggerID string `json:"trigger_id"`

	Type string `json:"type"`

	// Severity may be lower than the trigger's after quality dampening.
	Severity Severity `json:"severity"`

	Title string `json:"title"`
	Body  string `json:"body"`

	RelatedEntityID string `json:"related_entity_id,omitempty"`

	Context NotificationContext `json:"context"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	CreatedAt time.Time `json:"created_at"`
}

// NotificationContext explains why a nudge was sent.
type NotificationContext struct {
	RuleID          string `json:"rule_id"`
	EscalationLevel int    `json:"escalation_level"`
	Why             Why    `json:"why"`
}

// Why is the explanation block shown next to a nudge.
type Why struct {
	Category    Category `json:"category"`
	Condition   string   `json:"condition"`
	Escalation  string   `json:"escalation"`
	EvidenceURL string   `json:"evidence_url,omitempty"`
}

// TelemetryAction is a user outcome on a delivered nudge.
type TelemetryAction string

const (
	TelemetryViewed    TelemetryAction = "viewed"
	TelemetryResolved  TelemetryAction = "resolved"
	TelemetryDismissed TelemetryAction = "dismissed"
)

// Valid reports whether a is a known telemetry action.
func (a TelemetryAction) Valid() bool {
	return a == TelemetryViewed || a == TelemetryResolved || a == TelemetryDismissed
}

// TelemetryEvent records one outcome. RuleID and RelatedEntityID are copied
// from the trigger so quality and dismissal lookups need no join.
type TelemetryEvent struct {
	ID              string          `json:"id"`
	Action          TelemetryAction `json:"action"`
	ProjectID       string          `json:"project_id"`
	NotificationID  string          `json:"notification_id"`
	TriggerID       string          `json:"trigger_id"`
	UserID          string          `json:"user_id"`
	RuleID          string          `json:"rule_id"`
	RelatedEntityID string          `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AuditEntry is an append-only record of an engine decision.
type AuditEntry struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
