package rules

import (
	"time"

	"github.com/nhle/coordination/internal/model"
)

// Rule ids of the default catalog.
const (
	RuleBlockerEscalation  = "blocker-escalation"
	RuleMissingStandup     = "missing-standup"
	RuleUnansweredQuestion = "unanswered-question"
	RuleOverdueAction      = "overdue-action"
	RuleStaleWork          = "stale-work"
	RuleLowConfidence      = "low-confidence"
	RuleSnoozedFollowup    = "snoozed-followup"
)

// Thresholds of the default catalog.
const (
	blockerMinDays      = 2
	standupMinDays      = 2
	questionMinHours    = 24
	overdueMinDays      = 1
	staleMinDays        = 5
	lowConfidenceCutoff = 0.5
)

// DefaultCatalog returns the catalog shipped with every deployment.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Rule{
			ID:           RuleBlockerEscalation,
			TriggerEvent: model.EventBlocker,
			Category:     model.CategoryBlockers,
			Cooldown:     24 * time.Hour,
			Notifiable:   true,
			Description:  "A high-severity blocker has persisted for at least 2 days.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.BlockerPersisted)
				return ok && !p.Resolved && p.BlockerDays >= blockerMinDays &&
					e.Severity == model.SeverityHigh
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.BlockerPersisted)
				level := levelFor(p.BlockerDays, 3, 4)
				return newDraft(e, RuleBlockerEscalation, level, model.SeverityHigh,
					aging(model.MetaBlockerDays, model.AgingDays, p.BlockerDays))
			},
		},
		Rule{
			ID:           RuleMissingStandup,
			TriggerEvent: model.EventMissingStandup,
			Category:     model.CategoryStandups,
			Cooldown:     12 * time.Hour,
			Notifiable:   true,
			Description:  "No standup update has been posted for at least 2 days.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.StandupMissing)
				return ok && !p.Submitted && p.MissingDays >= standupMinDays
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.StandupMissing)
				level := levelFor(p.MissingDays, 3, 4)
				return newDraft(e, RuleMissingStandup, level, severityForLevel(level),
					aging(model.MetaMissingDays, model.AgingDays, p.MissingDays))
			},
		},
		Rule{
			ID:           RuleUnansweredQuestion,
			TriggerEvent: model.EventUnanswered,
			Category:     model.CategoryQuestions,
			Cooldown:     12 * time.Hour,
			Notifiable:   true,
			Description:  "A question has been waiting for an answer for at least 24 hours.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.QuestionUnanswered)
				return ok && !p.Answered && p.UnansweredHours >= questionMinHours
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.QuestionUnanswered)
				level := levelFor(p.UnansweredHours, 48, 72)
				return newDraft(e, RuleUnansweredQuestion, level, severityForLevel(level),
					aging(model.MetaUnansweredHours, model.AgingHours, p.UnansweredHours))
			},
		},
		Rule{
			ID:           RuleOverdueAction,
			TriggerEvent: model.EventOverdue,
			Category:     model.CategoryOverdueActions,
			Cooldown:     24 * time.Hour,
			Notifiable:   true,
			Description:  "An action item is past its due date.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.ActionOverdue)
				return ok && !p.Done && p.OverdueDays >= overdueMinDays
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.ActionOverdue)
				level := levelFor(p.OverdueDays, 3, 5)
				return newDraft(e, RuleOverdueAction, level, severityForLevel(level),
					aging(model.MetaOverdueDays, model.AgingDays, p.OverdueDays))
			},
		},
		Rule{
			ID:           RuleStaleWork,
			TriggerEvent: model.EventStaleWork,
			Category:     model.CategoryOverdueActions,
			Cooldown:     48 * time.Hour,
			Description:  "A work item has not moved for at least 5 days.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.WorkStale)
				return ok && p.StaleDays >= staleMinDays
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.WorkStale)
				return newDraft(e, RuleStaleWork, 1, model.SeverityLow,
					aging(model.MetaStaleDays, model.AgingDays, p.StaleDays))
			},
		},
		Rule{
			ID:           RuleLowConfidence,
			TriggerEvent: model.EventLowConfidence,
			Category:     model.CategoryBlockers,
			Cooldown:     24 * time.Hour,
			Description:  "The team reported delivery confidence below 50%.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				p, ok := e.Payload().(model.ConfidenceLow)
				return ok && p.HasConfidence && p.Confidence < lowConfidenceCutoff
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				return newDraft(e, RuleLowConfidence, 1, model.SeverityLow, model.TriggerOrigin{})
			},
		},
		Rule{
			ID:           RuleSnoozedFollowup,
			TriggerEvent: model.EventSnoozeExpired,
			Category:     model.CategoryBlockers,
			Cooldown:     24 * time.Hour,
			Notifiable:   true,
			Description:  "A nudge you snoozed is still open.",
			Condition: func(e model.CoordinationEvent, _ time.Time) bool {
				_, ok := e.Payload().(model.SnoozeExpired)
				return ok
			},
			Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
				p := e.Payload().(model.SnoozeExpired)
				origin := model.TriggerOrigin{}
				if p.SnoozedRuleID != "" {
					origin.Extra = map[string]string{model.MetaSnoozedRuleID: p.SnoozedRuleID}
				}
				return newDraft(e, RuleSnoozedFollowup, 1, model.SeverityMedium, origin)
			},
		},
	)
}

// levelFor maps a metric onto escalation levels 1..3.
func levelFor(value, level2, level3 float64) int {
	switch {
	case value >= level3:
		return 3
	case value >= level2:
		return 2
	default:
		return 1
	}
}

func severityForLevel(level int) model.Severity {
	if level >= 2 {
		return model.SeverityHigh
	}
	return model.SeverityMedium
}

func aging(metric string, unit model.AgingUnit, value float64) model.TriggerOrigin {
	return model.TriggerOrigin{Metric: metric, Unit: unit, Value: value}
}

// ResolveEscalationTarget picks who a nudge at level goes to: level 3 and up
// routes to the product owner, then the project owner; level 2 to the
// dependency owner, then the manager; every chain ends at the original
// target.
func ResolveEscalationTarget(level int, original string, h model.EscalationHints) string {
	var chain []string
	switch {
	case level >= 3:
		chain = []string{h.ProductOwnerUserID, h.ProjectOwnerUserID, original}
	case level == 2:
		chain = []string{h.DependencyOwnerUserID, h.ManagerUserID, original}
	default:
		chain = []string{original}
	}
	for _, id := range chain {
		if id != "" {
			return id
		}
	}
	return ""
}

// newDraft fills the common draft fields. origin carries the rule-specific
// aging metric; the event-derived parts are filled here.
func newDraft(e model.CoordinationEvent, ruleID string, level int, sev model.Severity, origin model.TriggerOrigin) *model.TriggerDraft {
	hints := e.Payload().Hints()
	target := ResolveEscalationTarget(level, e.TargetUserID, hints)
	if target == "" {
		return nil
	}

	origin.UserID = e.TargetUserID
	origin.EventType = e.Type
	origin.Severity = e.Severity
	origin.Hints = hints

	return &model.TriggerDraft{
		ProjectID:       e.ProjectID,
		RuleID:          ruleID,
		TargetUserID:    target,
		RelatedEntityID: e.RelatedEntityID,
		Severity:        sev,
		EscalationLevel: level,
		DedupKey:        BuildTriggerDedupKey(ruleID, target, e.RelatedEntityID, level),
		Origin:          origin,
	}
}
