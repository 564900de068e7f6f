// Package rules holds the coordination rule catalog and turns incoming
// events into trigger drafts.
package rules

import (
	"time"

	"github.com/nhle/coordination/internal/model"
)

// Condition decides whether a rule applies to an event.
type Condition func(e model.CoordinationEvent, now time.Time) bool

// Action derives a draft from an event that passed the condition. A nil
// draft means the rule has nothing to say (for example, no target).
type Action func(e model.CoordinationEvent, now time.Time) *model.TriggerDraft

// Rule is one catalog entry.
type Rule struct {
	ID           string
	TriggerEvent model.EventType
	Category     model.Category
	Cooldown     time.Duration

	// Notifiable rules may become notifications; the rest only produce
	// triggers for dashboards and the sweep.
	Notifiable bool

	// Description is the human-readable condition shown in a nudge's "why".
	Description string

	Condition Condition
	Action    Action
}

// Catalog is an ordered rule table indexed by event type.
type Catalog struct {
	rules   []Rule
	byEvent map[model.EventType][]int
	byID    map[string]int
}

// NewCatalog builds a catalog that evaluates rules in the given order.
func NewCatalog(rules ...Rule) *Catalog {
	c := &Catalog{
		rules:   make([]Rule, len(rules)),
		byEvent: make(map[model.EventType][]int),
		byID:    make(map[string]int, len(rules)),
	}
	copy(c.rules, rules)
	for i, r := range c.rules {
		c.byEvent[r.TriggerEvent] = append(c.byEvent[r.TriggerEvent], i)
		c.byID[r.ID] = i
	}
	return c
}

// WithCooldowns returns a copy of c whose rules use the given cooldowns,
// keyed by rule id in minutes. Unknown ids and non-positive values are
// ignored.
func (c *Catalog) WithCooldowns(minutes map[string]int) *Catalog {
	rules := c.Rules()
	for i := range rules {
		if m, ok := minutes[rules[i].ID]; ok && m > 0 {
			rules[i].Cooldown = time.Duration(m) * time.Minute
		}
	}
	return NewCatalog(rules...)
}

// Rules returns a copy of the catalog in evaluation order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Rule looks up a rule by id.
func (c *Catalog) Rule(id string) (Rule, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i], true
}

// Evaluate runs every rule listening to the event's type, keeps those whose
// condition holds, and returns their non-nil drafts in catalog order.
func (c *Catalog) Evaluate(e model.CoordinationEvent, now time.Time) []model.TriggerDraft {
	var drafts []model.TriggerDraft
	for _, i := range c.byEvent[e.Type] {
		r := c.rules[i]
		if r.Condition != nil && !r.Condition(e, now) {
			continue
		}
		if r.Action == nil {
			continue
		}
		if d := r.Action(e, now); d != nil {
			drafts = append(drafts, *d)
		}
	}
	return drafts
}

// CategoryFor returns the category a trigger is muted under. Snoozed
// follow-ups inherit the category of the rule that was snoozed.
func (c *Catalog) CategoryFor(t model.Trigger) model.Category {
	r, ok := c.Rule(t.RuleID)
	if !ok {
		return model.CategoryBlockers
	}
	if r.ID == RuleSnoozedFollowup {
		if snoozed, ok := c.Rule(t.Origin.Extra[model.MetaSnoozedRuleID]); ok {
			return snoozed.Category
		}
	}
	return r.Category
}
