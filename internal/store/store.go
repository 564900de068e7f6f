package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/coordination/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTrigger is returned by CreateTrigger when an active trigger
	// with the same dedup key already exists inside the cooldown window.
	ErrDuplicateTrigger = errors.New("active trigger exists for dedup key")

	// ErrTriggerNotPending is returned by DeliverNotification when the
	// trigger has already been sent, dismissed or resolved.
	ErrTriggerNotPending = errors.New("trigger is not pending")
)

// EventQuery selects events either by explicit ids or as the unprocessed
// events that occurred since Since.
type EventQuery struct {
	EventIDs  []string  // explicit lookup; processed events included
	Since     time.Time // lower bound for the unprocessed scan
	ProjectID string    // optional scope
}

// ResolveFilter scopes a bulk resolution. At least one of RelatedEntityID
// or RuleIDs must be set.
type ResolveFilter struct {
	ProjectID       string
	RelatedEntityID string
	RuleIDs         []string
	ResolvedAt      time.Time
}

// TriggerFilter controls trigger listing.
type TriggerFilter struct {
	ProjectID string
	Statuses  []model.TriggerStatus
	Limit     int
}

// TelemetryQuery counts telemetry outcomes for one user.
type TelemetryQuery struct {
	ProjectID       string
	UserID          string
	RuleID          string
	RelatedEntityID string // optional
	Actions         []model.TelemetryAction
	Since           time.Time
}

// EventStore persists coordination events.
type EventStore interface {
	CreateEvent(ctx context.Context, e model.CoordinationEvent) error
	GetEvents(ctx context.Context, q EventQuery) ([]model.CoordinationEvent, error)
	MarkEventProcessed(ctx context.Context, id string, processedAt time.Time) error
	GetEntityEvents(ctx context.Context, projectID, entityID string, since time.Time) ([]model.CoordinationEvent, error)
	GetUnprocessedEntityEvents(ctx context.Context, projectID, entityID string) ([]model.CoordinationEvent, error)
	CountUserActivity(ctx context.Context, projectID, userID string, types []model.EventType, since time.Time) (int, error)
}

// TriggerStore persists triggers and their lifecycle transitions.
type TriggerStore interface {
	GetLatestTriggerByDedupKey(ctx context.Context, projectID, dedupKey string) (*model.Trigger, error)
	CreateTrigger(ctx context.Context, draft model.TriggerDraft, createdAt time.Time, cooldown time.Duration) (*model.Trigger, error)
	ResolveTriggers(ctx context.Context, f ResolveFilter) (int, error)
	GetPendingTriggerAges(ctx context.Context, projectID string, now time.Time) ([]model.CoordinationEvent, error)
	GetTriggerByID(ctx context.Context, id string) (*model.Trigger, error)
	ListTriggers(ctx context.Context, f TriggerFilter) ([]model.Trigger, error)
	TransitionTrigger(ctx context.Context, id string, to model.TriggerStatus, at time.Time) (bool, error)
}

// CoordinationStore is what the trigger lifecycle engine needs.
type CoordinationStore interface {
	EventStore
	TriggerStore
}

// NotificationStore persists delivered nudges.
type NotificationStore interface {
	DeliverNotification(ctx context.Context, n model.Notification, audit model.AuditEntry) error
	CountNotificationsSince(ctx context.Context, projectID, userID string, since time.Time) (int, error)
	GetUnreadNotifications(ctx context.Context, projectID, userID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// PreferenceStore persists per-user notification preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, projectID, userID string) (*model.Preferences, error)
	SavePreferences(ctx context.Context, p model.Preferences) (model.Preferences, error)
}

// TelemetryStore persists nudge outcomes.
type TelemetryStore interface {
	RecordTelemetry(ctx context.Context, t model.TelemetryEvent) error
	CountTelemetry(ctx context.Context, q TelemetryQuery) (map[model.TelemetryAction]int, error)
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	GetAuditEntries(ctx context.Context, entityID string) ([]model.AuditEntry, error)
}

// GateStore is what the notification gate needs.
type GateStore interface {
	EventStore
	TriggerStore
	NotificationStore
	PreferenceStore
	TelemetryStore
}

// Store defines the full persistence interface of the coordination engine.
type Store interface {
	GateStore
	AuditStore
	Close() error
}
