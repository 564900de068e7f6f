// Package coordination is the trigger lifecycle engine. It turns stored
// coordination events into deduplicated triggers, resolves triggers when
// their condition clears, and re-evaluates open triggers as time passes.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/rules"
	"github.com/nhle/coordination/internal/store"
)

// DefaultLookback bounds the unprocessed-event scan.
const DefaultLookback = 72 * time.Hour

// Engine drives trigger creation and resolution against a store.
type Engine struct {
	store    store.CoordinationStore
	catalog  *rules.Catalog
	logger   *zap.Logger
	now      func() time.Time
	lookback time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLookback changes how far back the unprocessed scan reaches.
func WithLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(s store.CoordinationStore, catalog *rules.Catalog, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:    s,
		catalog:  catalog,
		logger:   logger.Named("coordination"),
		now:      time.Now,
		lookback: DefaultLookback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the rule catalog the engine evaluates.
func (e *Engine) Catalog() *rules.Catalog {
	return e.catalog
}

// ProcessOptions selects the events a run processes. With no EventIDs every
// unprocessed event inside the lookback window is loaded.
type ProcessOptions struct {
	EventIDs  []string
	ProjectID string
}

// ProcessResult counts what a run did.
type ProcessResult struct {
	Events     int             `json:"events"`
	Resolved   int             `json:"resolved"`
	Created    int             `json:"created"`
	Suppressed int             `json:"suppressed"`
	Triggers   []model.Trigger `json:"triggers,omitempty"`
}

// ProcessCoordinationEvents loads events and, for each in occurrence order,
// resolves triggers the event clears, creates triggers for surviving drafts,
// and stamps the event processed. Store errors abort the run; a retry is
// safe because every step is computed from stored state.
func (e *Engine) ProcessCoordinationEvents(ctx context.Context, opts ProcessOptions) (*ProcessResult, error) {
	now := e.now().UTC()

	events, err := e.store.GetEvents(ctx, store.EventQuery{
		EventIDs:  opts.EventIDs,
		Since:     now.Add(-e.lookback),
		ProjectID: opts.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	res := &ProcessResult{}
	for _, ev := range events {
		if err := e.processEvent(ctx, ev, now, res); err != nil {
			return res, err
		}
		res.Events++
	}

	if res.Events > 0 {
		e.logger.Info("processed coordination events",
			zap.Int("events", res.Events),
			zap.Int("resolved", res.Resolved),
			zap.Int("created", res.Created),
			zap.Int("suppressed", res.Suppressed),
		)
	}
	return res, nil
}

func (e *Engine) processEvent(ctx context.Context, ev model.CoordinationEvent, now time.Time, res *ProcessResult) error {
	if resolution := e.catalog.Resolution(ev); resolution.Cleared && ev.RelatedEntityID != "" {
		n, err := e.ResolveTriggersForEntity(ctx, ev.ProjectID, ev.RelatedEntityID, resolution.RuleIDs)
		if err != nil {
			return fmt.Errorf("resolving for event %s: %w", ev.ID, err)
		}
		res.Resolved += n
	}

	if err := e.evaluate(ctx, ev, now, &res.Created, &res.Suppressed, &res.Triggers); err != nil {
		return fmt.Errorf("evaluating event %s: %w", ev.ID, err)
	}

	if ev.ProcessedAt == nil {
		if err := e.store.MarkEventProcessed(ctx, ev.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// evaluate runs the catalog over ev and persists every draft that survives
// the cooldown guard.
func (e *Engine) evaluate(
	ctx context.Context,
	ev model.CoordinationEvent,
	now time.Time,
	created, suppressed *int,
	triggers *[]model.Trigger,
) error {
	for _, draft := range e.catalog.Evaluate(ev, now) {
		t, err := e.createTrigger(ctx, draft, now)
		if err != nil {
			return err
		}
		if t == nil {
			*suppressed++
			continue
		}
		*created++
		*triggers = append(*triggers, *t)
	}
	return nil
}

// createTrigger returns nil, nil when the draft is suppressed by cooldown.
func (e *Engine) createTrigger(ctx context.Context, draft model.TriggerDraft, now time.Time) (*model.Trigger, error) {
	var cooldown time.Duration
	if r, ok := e.catalog.Rule(draft.RuleID); ok {
		cooldown = r.Cooldown
	}

	latest, err := e.store.GetLatestTriggerByDedupKey(ctx, draft.ProjectID, draft.DedupKey)
	if err != nil {
		return nil, err
	}
	if withinCooldown(latest, cooldown, now) {
		e.logger.Debug("draft suppressed by cooldown",
			zap.String("dedup_key", draft.DedupKey),
			zap.String("latest_trigger", latest.ID),
		)
		return nil, nil
	}

	t, err := e.store.CreateTrigger(ctx, draft, now, cooldown)
	if errors.Is(err, store.ErrDuplicateTrigger) {
		e.logger.Debug("draft lost creation race", zap.String("dedup_key", draft.DedupKey))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("trigger created",
		zap.String("trigger_id", t.ID),
		zap.String("rule_id", t.RuleID),
		zap.String("target_user_id", t.TargetUserID),
		zap.Int("level", t.EscalationLevel),
	)
	return t, nil
}

func withinCooldown(latest *model.Trigger, cooldown time.Duration, now time.Time) bool {
	if latest == nil || latest.Status == model.TriggerResolved {
		return false
	}
	return now.Sub(latest.CreatedAt) < cooldown
}

// ResolveTriggersForEntity flips the entity's PENDING and SENT triggers to
// RESOLVED. When ruleIDs is non-empty only those rules are resolved.
func (e *Engine) ResolveTriggersForEntity(ctx context.Context, projectID, entityID string, ruleIDs []string) (int, error) {
	if entityID == "" {
		return 0, nil
	}
	n, err := e.store.ResolveTriggers(ctx, store.ResolveFilter{
		ProjectID:       projectID,
		RelatedEntityID: entityID,
		RuleIDs:         ruleIDs,
		ResolvedAt:      e.now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("triggers resolved",
			zap.String("project_id", projectID),
			zap.String("entity_id", entityID),
			zap.Strings("rule_ids", ruleIDs),
			zap.Int("count", n),
		)
	}
	return n, nil
}
