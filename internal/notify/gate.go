// Package notify decides whether a persisted trigger becomes a delivered
// in-app nudge and records what users do with the nudges they get.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/nudge"
	"github.com/nhle/coordination/internal/preferences"
	"github.com/nhle/coordination/internal/quality"
	"github.com/nhle/coordination/internal/rules"
	"github.com/nhle/coordination/internal/store"
)

// Reason explains why a trigger was not delivered.
type Reason string

// Suppression reasons, in the order the gate checks them.
const (
	ReasonRuleNotNotifiable Reason = "rule_not_notifiable"
	ReasonLowSeverity       Reason = "low_severity"
	ReasonChannelDisabled   Reason = "channel_disabled"
	ReasonCategoryMuted     Reason = "category_muted"
	ReasonQuietHours        Reason = "quiet_hours"
	ReasonRecentActivity    Reason = "recent_activity"
	ReasonAlreadyResolved   Reason = "already_resolved"
	ReasonDismissalCooldown Reason = "dismissal_cooldown"
	ReasonDailyCap          Reason = "daily_cap"
	ReasonQualityDampened   Reason = "quality_dampened"
	ReasonTriggerNotPending Reason = "trigger_not_pending"
)

// AuditActionNotificationCreated is the audit action written on delivery.
const AuditActionNotificationCreated = "coordination.notification_created"

// Config holds the gate's time windows and dampening policy.
type Config struct {
	ActivityWindow    time.Duration
	DismissalCooldown time.Duration
	QualityWindow     time.Duration
	Quality           quality.Policy

	// EvidenceURLFormat takes the project id and the related entity id.
	EvidenceURLFormat string
}

// DefaultConfig returns the standard gate configuration.
func DefaultConfig() Config {
	return Config{
		ActivityWindow:    30 * time.Minute,
		DismissalCooldown: 24 * time.Hour,
		QualityWindow:     14 * 24 * time.Hour,
		Quality:           quality.DefaultPolicy(),
		EvidenceURLFormat: "/projects/%s/entities/%s",
	}
}

// ConfigFromApp converts the gate section of the application config.
// Non-positive values keep their defaults.
func ConfigFromApp(c model.GateConfig) Config {
	cfg := DefaultConfig()
	if c.ActivityWindowMinutes > 0 {
		cfg.ActivityWindow = time.Duration(c.ActivityWindowMinutes) * time.Minute
	}
	if c.DismissalCooldownHours > 0 {
		cfg.DismissalCooldown = time.Duration(c.DismissalCooldownHours) * time.Hour
	}
	if c.QualityWindowDays > 0 {
		cfg.QualityWindow = time.Duration(c.QualityWindowDays) * 24 * time.Hour
	}
	if c.QualityMinSamples > 0 {
		cfg.Quality.MinSamples = c.QualityMinSamples
	}
	if c.DismissalRateThreshold > 0 {
		cfg.Quality.DismissalRateThreshold = c.DismissalRateThreshold
	}
	if c.EvidenceURLFormat != "" {
		cfg.EvidenceURLFormat = c.EvidenceURLFormat
	}
	return cfg
}

// Result is the gate's decision for one trigger.
type Result struct {
	Sent           bool              `json:"sent"`
	Reason         Reason            `json:"reason,omitempty"`
	NotificationID string            `json:"notification_id,omitempty"`
	Quality        *quality.Estimate `json:"quality,omitempty"`
}

// Gate turns triggers into notifications.
type Gate struct {
	store   store.GateStore
	catalog *rules.Catalog
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	inflight singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate. A nil logger disables logging.
func NewGate(s store.GateStore, catalog *rules.Catalog, cfg Config, logger *zap.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		store:   s,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.Named("notify"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateNotificationForTrigger runs t through the suppression filters and,
// if none match, delivers a nudge and marks t SENT. Suppression is reported
// in Result.Reason; only store failures are returned as errors. Concurrent
// calls for the same trigger share one evaluation, which is not cancelled
// with any single caller; each caller stops waiting when its own ctx ends.
func (g *Gate) CreateNotificationForTrigger(ctx context.Context, t model.Trigger) (*Result, error) {
	shared := context.WithoutCancel(ctx)
	ch := g.inflight.DoChan(t.ID, func() (interface{}, error) {
		return g.decide(shared, t)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (g *Gate) decide(ctx context.Context, t model.Trigger) (*Result, error) {
	now := g.now().UTC()

	rule, ok := g.catalog.Rule(t.RuleID)
	if !ok || !rule.Notifiable {
		return g.suppress(t, ReasonRuleNotNotifiable, nil), nil
	}
	if t.Severity == model.SeverityLow {
		return g.suppress(t, ReasonLowSeverity, nil), nil
	}

	prefs, err := g.store.GetPreferences(ctx, t.ProjectID, t.TargetUserID)
	if err != nil {
		return nil, err
	}
	p := preferences.Defaults(t.ProjectID, t.TargetUserID)
	if prefs != nil {
		p = *prefs
	}

	if !p.HasChannel(model.ChannelInApp) {
		return g.suppress(t, ReasonChannelDisabled, nil), nil
	}
	category := g.catalog.CategoryFor(t)
	if p.IsMuted(category) {
		return g.suppress(t, ReasonCategoryMuted, nil), nil
	}
	if preferences.IsWithinQuietHours(p, now) {
		return g.suppress(t, ReasonQuietHours, nil), nil
	}

	active, err := g.store.CountUserActivity(ctx, t.ProjectID, t.TargetUserID,
		model.ActivityEventTypes, now.Add(-g.cfg.ActivityWindow))
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return g.suppress(t, ReasonRecentActivity, nil), nil
	}

	// The caller's copy may be stale; decide on the stored status.
	current, err := g.store.GetTriggerByID(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Status, t.ResolvedAt = current.Status, current.ResolvedAt
	switch t.Status {
	case model.TriggerResolved:
		return g.suppress(t, ReasonAlreadyResolved, nil), nil
	case model.TriggerSent, model.TriggerDismissed:
		return g.suppress(t, ReasonTriggerNotPending, nil), nil
	}

	resolved, err := g.alreadyResolved(ctx, t)
	if err != nil {
		return nil, err
	}
	if resolved {
		return g.suppress(t, ReasonAlreadyResolved, nil), nil
	}

	dismissals, err := g.store.CountTelemetry(ctx, store.TelemetryQuery{
		ProjectID:       t.ProjectID,
		UserID:          t.TargetUserID,
		RuleID:          t.RuleID,
		RelatedEntityID: t.RelatedEntityID,
		Actions:         []model.TelemetryAction{model.TelemetryDismissed},
		Since:           now.Add(-g.cfg.DismissalCooldown),
	})
	if err != nil {
		return nil, err
	}
	if dismissals[model.TelemetryDismissed] > 0 {
		return g.suppress(t, ReasonDismissalCooldown, nil), nil
	}

	if !highPriority(t) {
		sent, err := g.store.CountNotificationsSince(ctx, t.ProjectID, t.TargetUserID,
			preferences.LocalDayStart(p, now))
		if err != nil {
			return nil, err
		}
		if sent >= p.MaxNudgesPerDay {
			return g.suppress(t, ReasonDailyCap, nil), nil
		}
	}

	outcomes, err := g.store.CountTelemetry(ctx, store.TelemetryQuery{
		ProjectID: t.ProjectID,
		UserID:    t.TargetUserID,
		RuleID:    t.RuleID,
		Actions:   []model.TelemetryAction{model.TelemetryResolved, model.TelemetryDismissed},
		Since:     now.Add(-g.cfg.QualityWindow),
	})
	if err != nil {
		return nil, err
	}
	est := g.cfg.Quality.Apply(t.Severity,
		outcomes[model.TelemetryResolved], outcomes[model.TelemetryDismissed])
	if est.Severity == model.SeverityLow {
		return g.suppress(t, ReasonQualityDampened, &est), nil
	}

	return g.deliver(ctx, t, rule, category, est, now)
}

// alreadyResolved looks for a resolving event on the trigger's entity that
// occurred after the trigger was created, or that is still waiting to be
// processed whenever it occurred.
func (g *Gate) alreadyResolved(ctx context.Context, t model.Trigger) (bool, error) {
	if t.Status == model.TriggerResolved {
		return true, nil
	}
	if t.RelatedEntityID == "" {
		return false, nil
	}
	recent, err := g.store.GetEntityEvents(ctx, t.ProjectID, t.RelatedEntityID, t.CreatedAt)
	if err != nil {
		return false, err
	}
	pending, err := g.store.GetUnprocessedEntityEvents(ctx, t.ProjectID, t.RelatedEntityID)
	if err != nil {
		return false, err
	}
	for _, ev := range append(recent, pending...) {
		if g.catalog.Resolves(ev, t.RuleID) {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gate) deliver(
	ctx context.Context,
	t model.Trigger,
	rule rules.Rule,
	category model.Category,
	est quality.Estimate,
	now time.Time,
) (*Result, error) {
	text := nudge.Render(t.RuleID, t.EscalationLevel, templateContext(t, now))

	n := model.Notification{
		ID:              uuid.New().String(),
		ProjectID:       t.ProjectID,
		UserID:          t.TargetUserID,
		TriggerID:       t.ID,
		Type:            model.NotificationTypeNudge,
		Severity:        est.Severity,
		Title:           text.Title,
		Body:            text.Body,
		RelatedEntityID: t.RelatedEntityID,
		Context: model.NotificationContext{
			RuleID:          t.RuleID,
			EscalationLevel: t.EscalationLevel,
			Why: model.Why{
				Category:    category,
				Condition:   rule.Description,
				Escalation:  escalationText(t.EscalationLevel),
				EvidenceURL: g.evidenceURL(t),
			},
		},
		CreatedAt: now,
	}

	audit := model.AuditEntry{
		ProjectID:  t.ProjectID,
		Action:     AuditActionNotificationCreated,
		EntityType: "coordination_trigger",
		EntityID:   t.ID,
		Details: map[string]any{
			"notificationId":   n.ID,
			"ruleId":           t.RuleID,
			"userId":           t.TargetUserID,
			"escalationLevel":  t.EscalationLevel,
			"originalSeverity": string(est.OriginalSeverity),
			"severity":         string(est.Severity),
			"dampened":         est.Dampened,
			"resolvedCount":    est.Metrics.ResolvedCount,
			"dismissedCount":   est.Metrics.DismissedCount,
			"sampleSize":       est.Metrics.SampleSize,
			"resolvedRate":     est.Metrics.ResolvedRate,
			"dismissedRate":    est.Metrics.DismissedRate,
		},
		CreatedAt: now,
	}

	err := g.store.DeliverNotification(ctx, n, audit)
	if errors.Is(err, store.ErrTriggerNotPending) {
		return g.suppress(t, ReasonTriggerNotPending, &est), nil
	}
	if err != nil {
		return nil, err
	}

	g.logger.Info("notification sent",
		zap.String("trigger_id", t.ID),
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("severity", string(n.Severity)),
		zap.Bool("dampened", est.Dampened),
	)
	return &Result{Sent: true, NotificationID: n.ID, Quality: &est}, nil
}

func (g *Gate) suppress(t model.Trigger, reason Reason, est *quality.Estimate) *Result {
	g.logger.Debug("notification suppressed",
		zap.String("trigger_id", t.ID),
		zap.String("rule_id", t.RuleID),
		zap.String("reason", string(reason)),
	)
	return &Result{Reason: reason, Quality: est}
}

func (g *Gate) evidenceURL(t model.Trigger) string {
	if t.RelatedEntityID == "" || g.cfg.EvidenceURLFormat == "" {
		return ""
	}
	return fmt.Sprintf(g.cfg.EvidenceURLFormat, t.ProjectID, t.RelatedEntityID)
}

// highPriority triggers bypass the daily cap.
func highPriority(t model.Trigger) bool {
	return t.EscalationLevel >= 2 || t.Severity == model.SeverityHigh
}

// templateContext reports the trigger's aging metric as of now.
func templateContext(t model.Trigger, now time.Time) nudge.Context {
	if t.Origin.Metric == "" {
		return nudge.Context{}
	}
	v, _ := model.AgingEvent(t, now).Metadata.Number(t.Origin.Metric)
	if t.Origin.Unit == model.AgingHours {
		return nudge.Context{Hours: int(v), Days: int(v) / 24}
	}
	return nudge.Context{Days: int(v), Hours: int(v) * 24}
}

func escalationText(level int) string {
	switch {
	case level >= 3:
		return "Level 3: escalated to the product or project owner."
	case level == 2:
		return "Level 2: escalated to the dependency owner or manager."
	default:
		return "Level 1: sent to the person directly involved."
	}
}
