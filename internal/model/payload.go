package model

import "strings"

// Metadata keys understood by the payload decoder.
const (
	MetaBlockerDays           = "blockerDays"
	MetaMissingDays           = "missingDays"
	MetaUnansweredHours       = "unansweredHours"
	MetaOverdueDays           = "overdueDays"
	MetaStaleDays             = "staleDays"
	MetaConfidence            = "confidence"
	MetaStatus                = "status"
	MetaResolved              = "resolved"
	MetaSubmitted             = "submitted"
	MetaAction                = "action"
	MetaActionStatus          = "actionStatus"
	MetaSnoozedRuleID         = "snoozedRuleId"
	MetaDependencyOwnerUserID = "dependencyOwnerUserId"
	MetaManagerUserID         = "managerUserId"
	MetaProductOwnerUserID    = "poUserId"
	MetaProjectOwnerUserID    = "projectOwnerUserId"
)

// Status values carried in event metadata that signal a cleared condition.
const (
	StatusResolved = "RESOLVED"
	StatusDone     = "DONE"
	StatusAnswered = "ANSWERED"
)

// EventPayload is the typed view of an event's metadata. The concrete type
// is selected by the event type; every variant carries escalation hints.
type EventPayload interface {
	Type() EventType
	Hints() EscalationHints
}

// EscalationHints name the people a nudge may escalate to.
type EscalationHints struct {
	DependencyOwnerUserID string
	ManagerUserID         string
	ProductOwnerUserID    string
	ProjectOwnerUserID    string
}

// Hints returns h. Embedding EscalationHints satisfies EventPayload.Hints.
func (h EscalationHints) Hints() EscalationHints { return h }

// BlockerPersisted reports a blocker that has been open for BlockerDays.
type BlockerPersisted struct {
	EscalationHints
	BlockerDays float64
	Resolved    bool
}

// StandupMissing reports consecutive days without a standup update.
type StandupMissing struct {
	EscalationHints
	MissingDays float64
	Submitted   bool
}

// QuestionUnanswered reports a question still waiting for an answer.
type QuestionUnanswered struct {
	EscalationHints
	UnansweredHours float64
	Answered        bool
}

// QuestionUpdated is a status change on a question.
type QuestionUpdated struct {
	EscalationHints
	Status string
}

// ActionOverdue reports an action item past its due date.
type ActionOverdue struct {
	EscalationHints
	OverdueDays float64
	Done        bool
}

// WorkStale reports work with no progress for StaleDays.
type WorkStale struct {
	EscalationHints
	StaleDays float64
}

// ConfidenceLow reports a delivery confidence score. HasConfidence is false
// when the producer did not send a usable score.
type ConfidenceLow struct {
	EscalationHints
	Confidence    float64
	HasConfidence bool
}

// Activity is a user engagement signal (viewed, clicked, feedback,
// interaction). ActionStatus is set when the interaction changed an action.
type Activity struct {
	EscalationHints
	Kind         EventType
	Action       string
	ActionStatus string
}

// SnoozeExpired fires when a user's snooze on a nudge runs out.
type SnoozeExpired struct {
	EscalationHints
	SnoozedRuleID string
}

func (BlockerPersisted) Type() EventType   { return EventBlocker }
func (StandupMissing) Type() EventType     { return EventMissingStandup }
func (QuestionUnanswered) Type() EventType { return EventUnanswered }
func (QuestionUpdated) Type() EventType    { return EventQuestion }
func (ActionOverdue) Type() EventType      { return EventOverdue }
func (WorkStale) Type() EventType          { return EventStaleWork }
func (ConfidenceLow) Type() EventType      { return EventLowConfidence }
func (a Activity) Type() EventType         { return a.Kind }
func (SnoozeExpired) Type() EventType      { return EventSnoozeExpired }

// DecodePayload builds the payload variant for t from m. Missing or
// mistyped fields decode to their zero value.
func DecodePayload(t EventType, m Metadata) EventPayload {
	hints := decodeHints(m)
	status := statusOf(m)

	switch t {
	case EventBlocker:
		days, _ := m.Number(MetaBlockerDays)
		resolved, _ := m.Bool(MetaResolved)
		return BlockerPersisted{
			EscalationHints: hints,
			BlockerDays:     days,
			Resolved:        resolved || status == StatusResolved,
		}
	case EventMissingStandup:
		days, _ := m.Number(MetaMissingDays)
		submitted, _ := m.Bool(MetaSubmitted)
		return StandupMissing{EscalationHints: hints, MissingDays: days, Submitted: submitted}
	case EventUnanswered:
		hours, _ := m.Number(MetaUnansweredHours)
		return QuestionUnanswered{
			EscalationHints: hints,
			UnansweredHours: hours,
			Answered:        status == StatusAnswered,
		}
	case EventQuestion:
		return QuestionUpdated{EscalationHints: hints, Status: status}
	case EventOverdue:
		days, _ := m.Number(MetaOverdueDays)
		resolved, _ := m.Bool(MetaResolved)
		return ActionOverdue{
			EscalationHints: hints,
			OverdueDays:     days,
			Done:            resolved || status == StatusDone || status == StatusResolved,
		}
	case EventStaleWork:
		days, _ := m.Number(MetaStaleDays)
		return WorkStale{EscalationHints: hints, StaleDays: days}
	case EventLowConfidence:
		c, ok := m.Number(MetaConfidence)
		return ConfidenceLow{EscalationHints: hints, Confidence: c, HasConfidence: ok}
	case EventSnoozeExpired:
		ruleID, _ := m.String(MetaSnoozedRuleID)
		return SnoozeExpired{EscalationHints: hints, SnoozedRuleID: ruleID}
	default:
		action, _ := m.String(MetaAction)
		actionStatus, _ := m.String(MetaActionStatus)
		return Activity{
			EscalationHints: hints,
			Kind:            t,
			Action:          action,
			ActionStatus:    strings.ToUpper(actionStatus),
		}
	}
}

func decodeHints(m Metadata) EscalationHints {
	var h EscalationHints
	h.DependencyOwnerUserID, _ = m.String(MetaDependencyOwnerUserID)
	h.ManagerUserID, _ = m.String(MetaManagerUserID)
	h.ProductOwnerUserID, _ = m.String(MetaProductOwnerUserID)
	h.ProjectOwnerUserID, _ = m.String(MetaProjectOwnerUserID)
	return h
}

func statusOf(m Metadata) string {
	s, _ := m.String(MetaStatus)
	return strings.ToUpper(s)
}
