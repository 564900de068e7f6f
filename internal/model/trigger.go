package model

import (
	"math"
	"time"
)

// TriggerStatus is the lifecycle state of a persisted trigger.
type TriggerStatus string

const (
	TriggerPending   TriggerStatus = "PENDING"
	TriggerSent      TriggerStatus = "SENT"
	TriggerDismissed TriggerStatus = "DISMISSED"
	TriggerResolved  TriggerStatus = "RESOLVED"
)

// Active reports whether the trigger still represents an open escalation.
func (s TriggerStatus) Active() bool {
	return s == TriggerPending || s == TriggerSent
}

// AgingUnit is the time unit an aging metric is expressed in.
type AgingUnit string

const (
	AgingDays  AgingUnit = "days"
	AgingHours AgingUnit = "hours"
)

// TriggerOrigin records what a trigger was evaluated from, so the sweep can
// rebuild a "time has passed" event for the same rule.
type TriggerOrigin struct {
	// UserID is the target of the source event before escalation routing.
	UserID string `json:"user_id"`

	EventType EventType       `json:"event_type"`
	Severity  Severity        `json:"severity,omitempty"`
	Hints     EscalationHints `json:"hints"`

	// Metric is the metadata key that grows with elapsed time
	// (blockerDays, unansweredHours, ...). Empty when the rule does not age.
	Metric string    `json:"metric,omitempty"`
	Unit   AgingUnit `json:"unit,omitempty"`

	// Value is the metric at evaluation time.
	Value float64 `json:"value,omitempty"`

	// Extra holds metadata the rule needs to re-fire, such as snoozedRuleId.
	Extra map[string]string `json:"extra,omitempty"`
}

// TriggerDraft is the output of rule evaluation before persistence.
type TriggerDraft struct {
	ProjectID       string        `json:"project_id"`
	RuleID          string        `json:"rule_id"`
	TargetUserID    string        `json:"target_user_id"`
	RelatedEntityID string        `json:"related_entity_id,omitempty"`
	Severity        Severity      `json:"severity"`
	EscalationLevel int           `json:"escalation_level"`
	DedupKey        string        `json:"dedup_key"`
	Origin          TriggerOrigin `json:"origin"`
}

// Trigger is the persisted unit of escalation.
type Trigger struct {
	TriggerDraft
	ID         string        `json:"id"`
	Status     TriggerStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// AgingEvent fabricates the event a sweep feeds back into the evaluator for
// t: the origin event with its aging metric advanced by now - CreatedAt.
func AgingEvent(t Trigger, now time.Time) CoordinationEvent {
	meta := Metadata{}
	for k, v := range t.Origin.Extra {
		meta[k] = v
	}
	setHint(meta, MetaDependencyOwnerUserID, t.Origin.Hints.DependencyOwnerUserID)
	setHint(meta, MetaManagerUserID, t.Origin.Hints.ManagerUserID)
	setHint(meta, MetaProductOwnerUserID, t.Origin.Hints.ProductOwnerUserID)
	setHint(meta, MetaProjectOwnerUserID, t.Origin.Hints.ProjectOwnerUserID)

	if t.Origin.Metric != "" {
		elapsed := now.Sub(t.CreatedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		var grown float64
		switch t.Origin.Unit {
		case AgingHours:
			grown = math.Floor(elapsed.Hours())
		default:
			grown = math.Floor(elapsed.Hours() / 24)
		}
		meta[t.Origin.Metric] = t.Origin.Value + grown
	}

	return CoordinationEvent{
		ID:              "sweep:" + t.ID,
		ProjectID:       t.ProjectID,
		Type:            t.Origin.EventType,
		TargetUserID:    t.Origin.UserID,
		RelatedEntityID: t.RelatedEntityID,
		Severity:        t.Origin.Severity,
		Metadata:        meta,
		OccurredAt:      now,
		Synthetic:       true,
	}
}

func setHint(m Metadata, key, value string) {
	if value != "" {
		m[key] = value
	}
}
