// Package nudge renders the deterministic copy of coordination nudges.
package nudge

import (
	"fmt"

	"github.com/nhle/coordination/internal/rules"
)

// Context carries the numbers a template may mention.
type Context struct {
	Days  int
	Hours int
}

// Copy is the rendered title and body.
type Copy struct {
	Title string
	Body  string
}

type template struct {
	title string
	body  func(Context) string
}

var templates = map[string]template{
	rules.RuleBlockerEscalation: {
		title: "Blocker needs attention",
		body: func(c Context) string {
			return fmt.Sprintf("A blocker has been open for %s without progress.", plural(c.Days, "day"))
		},
	},
	rules.RuleMissingStandup: {
		title: "Standup update missing",
		body: func(c Context) string {
			return fmt.Sprintf("No standup update has been posted for %s.", plural(c.Days, "day"))
		},
	},
	rules.RuleUnansweredQuestion: {
		title: "Question waiting for an answer",
		body: func(c Context) string {
			return fmt.Sprintf("A question has gone unanswered for %s.", plural(c.Hours, "hour"))
		},
	},
	rules.RuleOverdueAction: {
		title: "Action item overdue",
		body: func(c Context) string {
			return fmt.Sprintf("An action item is %s past its due date.", plural(c.Days, "day"))
		},
	},
	rules.RuleStaleWork: {
		title: "Work has gone stale",
		body: func(c Context) string {
			return fmt.Sprintf("This work item has not moved for %s.", plural(c.Days, "day"))
		},
	},
	rules.RuleLowConfidence: {
		title: "Delivery confidence is low",
		body: func(Context) string {
			return "The team reported low confidence in delivering this item."
		},
	},
	rules.RuleSnoozedFollowup: {
		title: "Snoozed nudge is back",
		body: func(Context) string {
			return "A nudge you snoozed needs another look."
		},
	},
}

// Render returns the copy for ruleID at the given escalation level. Levels
// above 1 append a suffix to the title. Unknown rules get generic copy.
func Render(ruleID string, level int, ctx Context) Copy {
	tpl, ok := templates[ruleID]
	if !ok {
		tpl = template{
			title: "Coordination follow-up",
			body: func(Context) string {
				return "Something in your project needs a follow-up."
			},
		}
	}

	title := tpl.title
	if level > 1 {
		title = fmt.Sprintf("%s (level %d)", title, level)
	}
	return Copy{Title: title, Body: tpl.body(ctx)}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
