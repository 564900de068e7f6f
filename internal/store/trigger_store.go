package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/coordination/internal/model"
)

// triggerRow is the coordination_triggers row shape.
type triggerRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	RuleID          string         `db:"rule_id"`
	TargetUserID    string         `db:"target_user_id"`
	RelatedEntityID string         `db:"related_entity_id"`
	Severity        string         `db:"severity"`
	EscalationLevel int            `db:"escalation_level"`
	DedupKey        string         `db:"dedup_key"`
	Origin          string         `db:"origin"`
	Status          string         `db:"status"`
	CreatedAt       string         `db:"created_at"`
	ResolvedAt      sql.NullString `db:"resolved_at"`
}

const triggerColumns = `id, project_id, rule_id, target_user_id, related_entity_id,
	severity, escalation_level, dedup_key, origin, status, created_at, resolved_at`

// GetLatestTriggerByDedupKey returns the most recently created trigger with
// the given dedup key, or nil if none exists.
func (s *SQLiteStore) GetLatestTriggerByDedupKey(
	ctx context.Context,
	projectID, dedupKey string,
) (*model.Trigger, error) {
	var row triggerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+triggerColumns+` FROM coordination_triggers
		WHERE project_id = ? AND dedup_key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`,
		projectID, dedupKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest trigger for %s: %w", dedupKey, err)
	}

	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTrigger persists draft as a PENDING trigger unless a non-resolved
// trigger with the same dedup key was created within cooldown of createdAt.
// The check and the insert are a single statement, so two racing callers
// cannot both create; the loser gets ErrDuplicateTrigger.
func (s *SQLiteStore) CreateTrigger(
	ctx context.Context,
	draft model.TriggerDraft,
	createdAt time.Time,
	cooldown time.Duration,
) (*model.Trigger, error) {
	originJSON, err := json.Marshal(draft.Origin)
	if err != nil {
		return nil, fmt.Errorf("marshaling origin for %s: %w", draft.DedupKey, err)
	}

	t := model.Trigger{
		TriggerDraft: draft,
		ID:           uuid.New().String(),
		Status:       model.TriggerPending,
		CreatedAt:    createdAt.UTC(),
	}
	created := formatTime(createdAt)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO coordination_triggers (
			id, project_id, rule_id, target_user_id, related_entity_id,
			severity, escalation_level, dedup_key, origin, status,
			created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM coordination_triggers
			WHERE project_id = ? AND dedup_key = ?
				AND status != 'RESOLVED' AND created_at > ?
		)`,
		t.ID, t.ProjectID, t.RuleID, t.TargetUserID, t.RelatedEntityID,
		string(t.Severity), t.EscalationLevel, t.DedupKey, string(originJSON), string(t.Status),
		created, created,
		t.ProjectID, t.DedupKey, formatTime(createdAt.Add(-cooldown)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trigger %s: %w", draft.DedupKey, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating trigger %s: %w", draft.DedupKey, err)
	}
	if rows == 0 {
		return nil, ErrDuplicateTrigger
	}
	return &t, nil
}

// ResolveTriggers flips PENDING and SENT triggers matching f to RESOLVED and
// returns how many changed.
func (s *SQLiteStore) ResolveTriggers(ctx context.Context, f ResolveFilter) (int, error) {
	if f.RelatedEntityID == "" && len(f.RuleIDs) == 0 {
		return 0, fmt.Errorf("resolving triggers in project %s: entity or rule ids required", f.ProjectID)
	}

	at := formatTime(f.ResolvedAt)
	conditions := []string{"project_id = ?", "status IN ('PENDING', 'SENT')"}
	args := []interface{}{at, at, f.ProjectID}

	if f.RelatedEntityID != "" {
		conditions = append(conditions, "related_entity_id = ?")
		args = append(args, f.RelatedEntityID)
	}
	if len(f.RuleIDs) > 0 {
		conditions = append(conditions, "rule_id IN (?)")
		args = append(args, f.RuleIDs)
	}

	query, args, err := sqlx.In(
		"UPDATE coordination_triggers SET status = 'RESOLVED', resolved_at = ?, updated_at = ? WHERE "+
			strings.Join(conditions, " AND "),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("expanding resolve query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("resolving triggers in project %s: %w", f.ProjectID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolving triggers in project %s: %w", f.ProjectID, err)
	}
	return int(n), nil
}

// GetPendingTriggerAges returns one synthetic aging event per PENDING or
// SENT trigger, optionally scoped to a project. The events are not stored.
func (s *SQLiteStore) GetPendingTriggerAges(
	ctx context.Context,
	projectID string,
	now time.Time,
) ([]model.CoordinationEvent, error) {
	triggers, err := s.ListTriggers(ctx, TriggerFilter{
		ProjectID: projectID,
		Statuses:  []model.TriggerStatus{model.TriggerPending, model.TriggerSent},
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.CoordinationEvent, 0, len(triggers))
	for _, t := range triggers {
		events = append(events, model.AgingEvent(t, now))
	}
	return events, nil
}

// GetTriggerByID retrieves a single trigger.
func (s *SQLiteStore) GetTriggerByID(ctx context.Context, id string) (*model.Trigger, error) {
	var row triggerRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+triggerColumns+" FROM coordination_triggers WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting trigger %s: %w", id, err)
	}

	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTriggers returns triggers matching f, oldest first.
func (s *SQLiteStore) ListTriggers(ctx context.Context, f TriggerFilter) ([]model.Trigger, error) {
	var conditions []string
	var args []interface{}

	if f.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, "status IN (?)")
		args = append(args, statuses)
	}

	query := "SELECT " + triggerColumns + " FROM coordination_triggers"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding trigger query: %w", err)
	}

	var rows []triggerRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}

	triggers := make([]model.Trigger, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

// TransitionTrigger moves an active (PENDING or SENT) trigger to status to.
// It reports false when the trigger was already inactive.
func (s *SQLiteStore) TransitionTrigger(
	ctx context.Context,
	id string,
	to model.TriggerStatus,
	at time.Time,
) (bool, error) {
	var resolvedAt sql.NullString
	if to == model.TriggerResolved {
		resolvedAt = nullTime(&at)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE coordination_triggers
		SET status = ?, resolved_at = COALESCE(?, resolved_at), updated_at = ?
		WHERE id = ? AND status IN ('PENDING', 'SENT')`,
		string(to), resolvedAt, formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("moving trigger %s to %s: %w", id, to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("moving trigger %s to %s: %w", id, to, err)
	}
	return n > 0, nil
}

func (r triggerRow) toModel() (model.Trigger, error) {
	t := model.Trigger{
		TriggerDraft: model.TriggerDraft{
			ProjectID:       r.ProjectID,
			RuleID:          r.RuleID,
			TargetUserID:    r.TargetUserID,
			RelatedEntityID: r.RelatedEntityID,
			Severity:        model.Severity(r.Severity),
			EscalationLevel: r.EscalationLevel,
			DedupKey:        r.DedupKey,
		},
		ID:     r.ID,
		Status: model.TriggerStatus(r.Status),
	}

	if r.Origin != "" {
		if err := json.Unmarshal([]byte(r.Origin), &t.Origin); err != nil {
			return model.Trigger{}, fmt.Errorf("unmarshaling origin for trigger %s: %w", r.ID, err)
		}
	}

	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Trigger{}, fmt.Errorf("trigger %s: %w", r.ID, err)
	}
	t.CreatedAt = created

	t.ResolvedAt, err = parseNullTime(r.ResolvedAt)
	if err != nil {
		return model.Trigger{}, fmt.Errorf("trigger %s: %w", r.ID, err)
	}
	return t, nil
}
