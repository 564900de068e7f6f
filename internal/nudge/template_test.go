package nudge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/coordination/internal/rules"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name      string
		ruleID    string
		level     int
		ctx       Context
		wantTitle string
		wantBody  string
	}{
		{
			name:      "blocker level 1",
			ruleID:    rules.RuleBlockerEscalation,
			level:     1,
			ctx:       Context{Days: 2},
			wantTitle: "Blocker needs attention",
			wantBody:  "A blocker has been open for 2 days without progress.",
		},
		{
			name:      "blocker level 3",
			ruleID:    rules.RuleBlockerEscalation,
			level:     3,
			ctx:       Context{Days: 4},
			wantTitle: "Blocker needs attention (level 3)",
			wantBody:  "A blocker has been open for 4 days without progress.",
		},
		{
			name:      "question in hours",
			ruleID:    rules.RuleUnansweredQuestion,
			level:     2,
			ctx:       Context{Hours: 48},
			wantTitle: "Question waiting for an answer (level 2)",
			wantBody:  "A question has gone unanswered for 48 hours.",
		},
		{
			name:      "singular unit",
			ruleID:    rules.RuleOverdueAction,
			level:     1,
			ctx:       Context{Days: 1},
			wantTitle: "Action item overdue",
			wantBody:  "An action item is 1 day past its due date.",
		},
		{
			name:      "unknown rule",
			ruleID:    "nope",
			level:     2,
			wantTitle: "Coordination follow-up (level 2)",
			wantBody:  "Something in your project needs a follow-up.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.ruleID, tt.level, tt.ctx)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantBody, got.Body)
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	a := Render(rules.RuleMissingStandup, 2, Context{Days: 3})
	b := Render(rules.RuleMissingStandup, 2, Context{Days: 3})
	assert.Equal(t, a, b)
}

func TestRender_EveryCatalogRuleHasCopy(t *testing.T) {
	for _, r := range rules.DefaultCatalog().Rules() {
		_, ok := templates[r.ID]
		assert.True(t, ok, "missing template for %s", r.ID)
	}
}
