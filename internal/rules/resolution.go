package rules

import "github.com/nhle/coordination/internal/model"

// Resolution describes which rules an event clears.
type Resolution struct {
	Cleared bool
	RuleIDs []string
}

// Resolution inspects e for signals that an underlying condition cleared:
// a blocker or overdue item marked resolved, a question answered, a standup
// submitted, or an action marked DONE.
func (c *Catalog) Resolution(e model.CoordinationEvent) Resolution {
	var ids []string

	switch p := e.Payload().(type) {
	case model.BlockerPersisted:
		if p.Resolved {
			ids = []string{RuleBlockerEscalation}
		}
	case model.ActionOverdue:
		if p.Done {
			ids = []string{RuleOverdueAction}
		}
	case model.QuestionUnanswered:
		if p.Answered {
			ids = []string{RuleUnansweredQuestion}
		}
	case model.QuestionUpdated:
		if p.Status == model.StatusAnswered {
			ids = []string{RuleUnansweredQuestion}
		}
	case model.StandupMissing:
		if p.Submitted {
			ids = []string{RuleMissingStandup}
		}
	case model.Activity:
		if p.ActionStatus == model.StatusDone {
			ids = []string{RuleOverdueAction, RuleStaleWork}
		}
	}

	if len(ids) == 0 {
		return Resolution{}
	}

	// Snoozed follow-ups on a cleared rule clear with it.
	ids = append(ids, RuleSnoozedFollowup)

	known := ids[:0]
	for _, id := range ids {
		if _, ok := c.Rule(id); ok {
			known = append(known, id)
		}
	}
	return Resolution{Cleared: len(known) > 0, RuleIDs: known}
}

// Resolves reports whether e clears triggers of ruleID.
func (c *Catalog) Resolves(e model.CoordinationEvent, ruleID string) bool {
	for _, id := range c.Resolution(e).RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
