package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/coordination/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func blockerEvent(days float64, meta model.Metadata) model.CoordinationEvent {
	m := model.Metadata{model.MetaBlockerDays: days}
	for k, v := range meta {
		m[k] = v
	}
	return model.CoordinationEvent{
		ID:              "evt-1",
		ProjectID:       "proj-1",
		Type:            model.EventBlocker,
		TargetUserID:    "user-1",
		RelatedEntityID: "issue-1",
		Severity:        model.SeverityHigh,
		Metadata:        m,
		OccurredAt:      testNow,
	}
}

func TestBlockerRule_EscalationLevels(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		days      float64
		wantLevel int
	}{
		{2, 1},
		{2.5, 1},
		{3, 2},
		{4, 3},
		{9, 3},
	}

	for _, tt := range tests {
		drafts := c.Evaluate(blockerEvent(tt.days, nil), testNow)
		require.Len(t, drafts, 1, "days=%v", tt.days)
		assert.Equal(t, RuleBlockerEscalation, drafts[0].RuleID)
		assert.Equal(t, tt.wantLevel, drafts[0].EscalationLevel, "days=%v", tt.days)
		assert.Equal(t, model.SeverityHigh, drafts[0].Severity)
	}
}

func TestBlockerRule_ConditionFilters(t *testing.T) {
	c := DefaultCatalog()

	short := blockerEvent(1, nil)
	assert.Empty(t, c.Evaluate(short, testNow))

	medium := blockerEvent(3, nil)
	medium.Severity = model.SeverityMedium
	assert.Empty(t, c.Evaluate(medium, testNow))

	resolved := blockerEvent(3, model.Metadata{model.MetaResolved: true})
	assert.Empty(t, c.Evaluate(resolved, testNow))

	malformed := blockerEvent(0, nil)
	malformed.Metadata[model.MetaBlockerDays] = "three"
	assert.Empty(t, c.Evaluate(malformed, testNow))
}

func TestBlockerRule_DependencyOwnerAtLevel2(t *testing.T) {
	c := DefaultCatalog()
	drafts := c.Evaluate(blockerEvent(3, model.Metadata{
		model.MetaDependencyOwnerUserID: "dep-1",
	}), testNow)

	require.Len(t, drafts, 1)
	assert.Equal(t, "dep-1", drafts[0].TargetUserID)
	assert.Equal(t, 2, drafts[0].EscalationLevel)
	assert.Equal(t, "user-1", drafts[0].Origin.UserID)
	assert.Equal(t, model.MetaBlockerDays, drafts[0].Origin.Metric)
	assert.Equal(t, 3.0, drafts[0].Origin.Value)
}

func TestUnansweredQuestion_ProductOwnerAtLevel3(t *testing.T) {
	c := DefaultCatalog()
	e := model.CoordinationEvent{
		ProjectID:       "proj-1",
		Type:            model.EventUnanswered,
		TargetUserID:    "user-1",
		RelatedEntityID: "q-1",
		Metadata: model.Metadata{
			model.MetaUnansweredHours:   72,
			model.MetaProductOwnerUserID: "po-1",
		},
	}

	drafts := c.Evaluate(e, testNow)
	require.Len(t, drafts, 1)
	assert.Equal(t, RuleUnansweredQuestion, drafts[0].RuleID)
	assert.Equal(t, 3, drafts[0].EscalationLevel)
	assert.Equal(t, "po-1", drafts[0].TargetUserID)
	assert.Equal(t, model.SeverityHigh, drafts[0].Severity)
	assert.Equal(t, model.AgingHours, drafts[0].Origin.Unit)
}

func TestMissingStandupLevels(t *testing.T) {
	c := DefaultCatalog()
	mk := func(days int) model.CoordinationEvent {
		return model.CoordinationEvent{
			ProjectID:    "p",
			Type:         model.EventMissingStandup,
			TargetUserID: "u",
			Metadata:     model.Metadata{model.MetaMissingDays: days},
		}
	}

	assert.Empty(t, c.Evaluate(mk(1), testNow))

	d := c.Evaluate(mk(2), testNow)
	require.Len(t, d, 1)
	assert.Equal(t, 1, d[0].EscalationLevel)
	assert.Equal(t, model.SeverityMedium, d[0].Severity)

	d = c.Evaluate(mk(3), testNow)
	require.Len(t, d, 1)
	assert.Equal(t, 2, d[0].EscalationLevel)

	d = c.Evaluate(mk(4), testNow)
	require.Len(t, d, 1)
	assert.Equal(t, 3, d[0].EscalationLevel)
	assert.Equal(t, "missing-standup:u:none:L3", d[0].DedupKey)
}

func TestResolveEscalationTarget(t *testing.T) {
	h := model.EscalationHints{
		DependencyOwnerUserID: "dep",
		ManagerUserID:         "mgr",
		ProductOwnerUserID:    "po",
		ProjectOwnerUserID:    "owner",
	}

	assert.Equal(t, "orig", ResolveEscalationTarget(1, "orig", h))
	assert.Equal(t, "dep", ResolveEscalationTarget(2, "orig", h))
	assert.Equal(t, "po", ResolveEscalationTarget(3, "orig", h))

	assert.Equal(t, "mgr", ResolveEscalationTarget(2, "orig", model.EscalationHints{ManagerUserID: "mgr"}))
	assert.Equal(t, "owner", ResolveEscalationTarget(3, "orig", model.EscalationHints{ProjectOwnerUserID: "owner"}))
	assert.Equal(t, "orig", ResolveEscalationTarget(3, "orig", model.EscalationHints{}))
	assert.Equal(t, "", ResolveEscalationTarget(1, "", h))
}

func TestEvaluate_NoTargetSkipsSilently(t *testing.T) {
	c := DefaultCatalog()
	e := blockerEvent(2, nil)
	e.TargetUserID = ""
	assert.Empty(t, c.Evaluate(e, testNow))
}

func TestEvaluate_OrderAndMultipleRules(t *testing.T) {
	first := Rule{
		ID:           "first",
		TriggerEvent: model.EventStaleWork,
		Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
			return newDraft(e, "first", 1, model.SeverityLow, model.TriggerOrigin{})
		},
	}
	skipped := Rule{
		ID:           "skipped",
		TriggerEvent: model.EventStaleWork,
		Condition:    func(model.CoordinationEvent, time.Time) bool { return false },
		Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
			return newDraft(e, "skipped", 1, model.SeverityLow, model.TriggerOrigin{})
		},
	}
	nilDraft := Rule{
		ID:           "nil",
		TriggerEvent: model.EventStaleWork,
		Action:       func(model.CoordinationEvent, time.Time) *model.TriggerDraft { return nil },
	}
	second := Rule{
		ID:           "second",
		TriggerEvent: model.EventStaleWork,
		Action: func(e model.CoordinationEvent, _ time.Time) *model.TriggerDraft {
			return newDraft(e, "second", 2, model.SeverityLow, model.TriggerOrigin{})
		},
	}
	other := Rule{ID: "other", TriggerEvent: model.EventBlocker}

	c := NewCatalog(first, skipped, other, nilDraft, second)
	drafts := c.Evaluate(model.CoordinationEvent{
		ProjectID:    "p",
		Type:         model.EventStaleWork,
		TargetUserID: "u",
	}, testNow)

	require.Len(t, drafts, 2)
	assert.Equal(t, "first", drafts[0].RuleID)
	assert.Equal(t, "second", drafts[1].RuleID)
}

func TestDedupKey_RoundTrip(t *testing.T) {
	c := DefaultCatalog()
	for _, days := range []float64{2, 3, 4} {
		for _, d := range c.Evaluate(blockerEvent(days, nil), testNow) {
			k, err := ParseTriggerDedupKey(d.DedupKey)
			require.NoError(t, err)
			assert.Equal(t, d.RuleID, k.RuleID)
			assert.Equal(t, d.TargetUserID, k.TargetUserID)
			assert.Equal(t, d.RelatedEntityID, k.RelatedEntityID)
			assert.Equal(t, d.EscalationLevel, k.Level)
			assert.Equal(t, d.DedupKey,
				BuildTriggerDedupKey(d.RuleID, d.TargetUserID, d.RelatedEntityID, d.EscalationLevel))
			assert.Equal(t, d.DedupKey, k.String())
		}
	}

	assert.Equal(t, "r:u:none:L1", BuildTriggerDedupKey("r", "u", "", 1))
	k, err := ParseTriggerDedupKey("r:u:none:L1")
	require.NoError(t, err)
	assert.Equal(t, "", k.RelatedEntityID)
}

func TestParseTriggerDedupKey_EntityWithColons(t *testing.T) {
	key := BuildTriggerDedupKey(RuleBlockerEscalation, "user-1", "jira:PROJ-7", 2)
	assert.Equal(t, "blocker-escalation:user-1:jira:PROJ-7:L2", key)

	k, err := ParseTriggerDedupKey(key)
	require.NoError(t, err)
	assert.Equal(t, RuleBlockerEscalation, k.RuleID)
	assert.Equal(t, "user-1", k.TargetUserID)
	assert.Equal(t, "jira:PROJ-7", k.RelatedEntityID)
	assert.Equal(t, 2, k.Level)
	assert.Equal(t, key, k.String())
}

func TestParseTriggerDedupKey_Errors(t *testing.T) {
	for _, bad := range []string{"", "a:b:c", "a:b:c:2", "a:b:c:Lx", ":b:c:L1", "a::L1"} {
		_, err := ParseTriggerDedupKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolution(t *testing.T) {
	c := DefaultCatalog()

	res := c.Resolution(blockerEvent(3, model.Metadata{model.MetaStatus: "resolved"}))
	assert.True(t, res.Cleared)
	assert.Contains(t, res.RuleIDs, RuleBlockerEscalation)

	answered := model.CoordinationEvent{
		Type:     model.EventQuestion,
		Metadata: model.Metadata{model.MetaStatus: "ANSWERED"},
	}
	assert.True(t, c.Resolves(answered, RuleUnansweredQuestion))
	assert.False(t, c.Resolves(answered, RuleBlockerEscalation))

	done := model.CoordinationEvent{
		Type:     model.EventInteraction,
		Metadata: model.Metadata{model.MetaActionStatus: "done"},
	}
	assert.ElementsMatch(t,
		[]string{RuleOverdueAction, RuleStaleWork, RuleSnoozedFollowup},
		c.Resolution(done).RuleIDs)

	assert.False(t, c.Resolution(blockerEvent(3, nil)).Cleared)
	assert.False(t, c.Resolution(model.CoordinationEvent{Type: model.EventViewed}).Cleared)
}

func TestWithCooldowns(t *testing.T) {
	base := DefaultCatalog()
	c := base.WithCooldowns(map[string]int{
		RuleBlockerEscalation: 90,
		"unknown":             5,
		RuleStaleWork:         0,
	})

	r, ok := c.Rule(RuleBlockerEscalation)
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, r.Cooldown)

	r, _ = c.Rule(RuleStaleWork)
	assert.Equal(t, 48*time.Hour, r.Cooldown)

	orig, _ := base.Rule(RuleBlockerEscalation)
	assert.Equal(t, 24*time.Hour, orig.Cooldown)
}

func TestCategoryFor(t *testing.T) {
	c := DefaultCatalog()

	tr := model.Trigger{TriggerDraft: model.TriggerDraft{RuleID: RuleUnansweredQuestion}}
	assert.Equal(t, model.CategoryQuestions, c.CategoryFor(tr))

	snoozed := model.Trigger{TriggerDraft: model.TriggerDraft{
		RuleID: RuleSnoozedFollowup,
		Origin: model.TriggerOrigin{Extra: map[string]string{
			model.MetaSnoozedRuleID: RuleMissingStandup,
		}},
	}}
	assert.Equal(t, model.CategoryStandups, c.CategoryFor(snoozed))
}

func TestCatalogNotifiableSet(t *testing.T) {
	c := DefaultCatalog()
	var notifiable []string
	for _, r := range c.Rules() {
		if r.Notifiable {
			notifiable = append(notifiable, r.ID)
		}
	}
	assert.ElementsMatch(t, []string{
		RuleBlockerEscalation, RuleMissingStandup, RuleUnansweredQuestion,
		RuleOverdueAction, RuleSnoozedFollowup,
	}, notifiable)
}
