package coordination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/model"
)

var (
	// ErrUnknownEventType is returned for event types outside the closed set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidSeverity is returned for a severity other than LOW, MEDIUM
	// or HIGH.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrInvalidUserID is returned for user ids containing a colon, which
	// would make trigger dedup keys ambiguous.
	ErrInvalidUserID = errors.New("invalid user id")
)

// userIDKeys are the metadata keys whose values may become a trigger target.
var userIDKeys = []string{
	model.MetaDependencyOwnerUserID,
	model.MetaManagerUserID,
	model.MetaProductOwnerUserID,
	model.MetaProjectOwnerUserID,
}

// RecordInput is what an upstream producer reports.
type RecordInput struct {
	ProjectID       string
	EventType       model.EventType
	TargetUserID    string
	RelatedEntityID string
	Severity        model.Severity
	Metadata        model.Metadata

	// OccurredAt defaults to now.
	OccurredAt time.Time

	// ProcessImmediately defaults to true.
	ProcessImmediately *bool
}

// RecordResult is the stored event plus the processing outcome, if the
// event was processed inline.
type RecordResult struct {
	Event   model.CoordinationEvent `json:"event"`
	Process *ProcessResult          `json:"process,omitempty"`
}

// RecordCoordinationEvent appends an event and, unless told otherwise,
// processes just that event.
func (e *Engine) RecordCoordinationEvent(ctx context.Context, in RecordInput) (*RecordResult, error) {
	if in.ProjectID == "" {
		return nil, errors.New("recording event: project id required")
	}
	if !in.EventType.Valid() {
		return nil, fmt.Errorf("recording event %q: %w", in.EventType, ErrUnknownEventType)
	}
	if in.Severity != "" && !in.Severity.Valid() {
		return nil, fmt.Errorf("recording event %q: %w: %q", in.EventType, ErrInvalidSeverity, in.Severity)
	}
	if strings.Contains(in.TargetUserID, ":") {
		return nil, fmt.Errorf("recording event %q: %w: %q", in.EventType, ErrInvalidUserID, in.TargetUserID)
	}
	for _, key := range userIDKeys {
		if id, ok := in.Metadata.String(key); ok && strings.Contains(id, ":") {
			return nil, fmt.Errorf("recording event %q: %w: %s=%q", in.EventType, ErrInvalidUserID, key, id)
		}
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = e.now()
	}

	ev := model.CoordinationEvent{
		ID:              uuid.New().String(),
		ProjectID:       in.ProjectID,
		Type:            in.EventType,
		TargetUserID:    in.TargetUserID,
		RelatedEntityID: in.RelatedEntityID,
		Severity:        in.Severity,
		Metadata:        in.Metadata,
		OccurredAt:      occurred.UTC(),
	}
	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	e.logger.Debug("event recorded",
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("project_id", ev.ProjectID),
	)

	res := &RecordResult{Event: ev}
	if in.ProcessImmediately != nil && !*in.ProcessImmediately {
		return res, nil
	}

	processed, err := e.ProcessCoordinationEvents(ctx, ProcessOptions{
		EventIDs:  []string{ev.ID},
		ProjectID: ev.ProjectID,
	})
	if err != nil {
		return res, err
	}
	res.Process = processed
	return res, nil
}
