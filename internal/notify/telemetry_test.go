package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/rules"
	"github.com/nhle/coordination/internal/store"
	"github.com/nhle/coordination/internal/testutil"
)

func TestTelemetry_RejectsUnknownAction(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := newTestGate(t, s, testNow)

	_, err := g.EmitNotificationTelemetry(context.Background(), TelemetryInput{Action: "snoozed", TriggerID: "t"})
	assert.ErrorIs(t, err, ErrUnknownTelemetryAction)
}

func TestTelemetry_UnknownTrigger(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := newTestGate(t, s, testNow)

	_, err := g.EmitNotificationTelemetry(context.Background(), TelemetryInput{
		Action: model.TelemetryViewed, TriggerID: "missing",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTelemetry_ViewedMarksRead(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	g := newTestGate(t, s, testNow)

	trig := createTrigger(t, s, triggerArgs{entity: "issue-1"})
	res, err := g.CreateNotificationForTrigger(ctx, trig)
	require.NoError(t, err)
	require.True(t, res.Sent)

	ev, err := g.EmitNotificationTelemetry(ctx, TelemetryInput{
		Action: model.TelemetryViewed, ProjectID: "proj-1",
		NotificationID: res.NotificationID, TriggerID: trig.ID, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, rules.RuleBlockerEscalation, ev.RuleID)
	assert.Equal(t, "issue-1", ev.RelatedEntityID)

	unread, err := s.GetUnreadNotifications(ctx, "proj-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, unread)

	got, err := s.GetTriggerByID(ctx, trig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerSent, got.Status)
}

func TestTelemetry_DismissFeedsCooldownAndQuality(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	g := newTestGate(t, s, testNow)

	trig := createTrigger(t, s, triggerArgs{entity: "issue-1"})
	_, err := g.EmitNotificationTelemetry(ctx, TelemetryInput{
		Action: model.TelemetryDismissed, TriggerID: trig.ID,
	})
	require.NoError(t, err)

	got, err := s.GetTriggerByID(ctx, trig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerDismissed, got.Status)

	counts, err := s.CountTelemetry(ctx, store.TelemetryQuery{
		ProjectID: "proj-1", UserID: "user-1", RuleID: rules.RuleBlockerEscalation,
		Since: testNow.Add(-1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.TelemetryDismissed])

	// A fresh trigger for the same rule and entity is held back.
	next := createTrigger(t, s, triggerArgs{entity: "issue-1", level: 2})
	res, err := g.CreateNotificationForTrigger(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, ReasonDismissalCooldown, res.Reason)
}

func TestTelemetry_ResolvedClosesTrigger(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	g := newTestGate(t, s, testNow)

	trig := createTrigger(t, s, triggerArgs{entity: "issue-1"})
	_, err := g.EmitNotificationTelemetry(ctx, TelemetryInput{
		Action: model.TelemetryResolved, TriggerID: trig.ID,
	})
	require.NoError(t, err)

	got, err := s.GetTriggerByID(ctx, trig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	res, err := g.CreateNotificationForTrigger(ctx, *got)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyResolved, res.Reason)
}
