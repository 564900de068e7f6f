package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/model"
)

// ErrUnknownTelemetryAction is returned for actions other than viewed,
// resolved and dismissed.
var ErrUnknownTelemetryAction = errors.New("unknown telemetry action")

// TelemetryInput is one user outcome on a nudge.
type TelemetryInput struct {
	Action         model.TelemetryAction
	ProjectID      string
	NotificationID string
	TriggerID      string
	UserID         string
}

// EmitNotificationTelemetry records an outcome and applies its effect:
// viewed marks the notification read, dismissed and resolved close the
// trigger. Rule and entity are copied from the trigger for later quality
// and dismissal lookups.
func (g *Gate) EmitNotificationTelemetry(ctx context.Context, in TelemetryInput) (*model.TelemetryEvent, error) {
	if !in.Action.Valid() {
		return nil, fmt.Errorf("telemetry %q: %w", in.Action, ErrUnknownTelemetryAction)
	}

	t, err := g.store.GetTriggerByID(ctx, in.TriggerID)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	projectID := in.ProjectID
	if projectID == "" {
		projectID = t.ProjectID
	}
	userID := in.UserID
	if userID == "" {
		userID = t.TargetUserID
	}

	ev := model.TelemetryEvent{
		ID:              uuid.New().String(),
		Action:          in.Action,
		ProjectID:       projectID,
		NotificationID:  in.NotificationID,
		TriggerID:       t.ID,
		UserID:          userID,
		RuleID:          t.RuleID,
		RelatedEntityID: t.RelatedEntityID,
		CreatedAt:       now,
	}
	if err := g.store.RecordTelemetry(ctx, ev); err != nil {
		return nil, err
	}

	switch in.Action {
	case model.TelemetryViewed:
		if in.NotificationID != "" {
			if err := g.store.MarkNotificationRead(ctx, in.NotificationID); err != nil {
				return nil, err
			}
		}
	case model.TelemetryDismissed:
		if _, err := g.store.TransitionTrigger(ctx, t.ID, model.TriggerDismissed, now); err != nil {
			return nil, err
		}
	case model.TelemetryResolved:
		if _, err := g.store.TransitionTrigger(ctx, t.ID, model.TriggerResolved, now); err != nil {
			return nil, err
		}
	}

	g.logger.Debug("telemetry recorded",
		zap.String("action", string(in.Action)),
		zap.String("trigger_id", t.ID),
		zap.String("user_id", userID),
	)
	return &ev, nil
}
