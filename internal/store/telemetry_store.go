package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/coordination/internal/model"
)

// RecordTelemetry appends one nudge outcome.
func (s *SQLiteStore) RecordTelemetry(ctx context.Context, t model.TelemetryEvent) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_telemetry (
			id, action, project_id, notification_id, trigger_id,
			user_id, rule_id, related_entity_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Action), t.ProjectID, t.NotificationID, t.TriggerID,
		t.UserID, t.RuleID, t.RelatedEntityID, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("recording %s telemetry for trigger %s: %w", t.Action, t.TriggerID, err)
	}
	return nil
}

// CountTelemetry counts outcomes per action for the user and rule in q.
// Actions absent from the result have a count of zero.
func (s *SQLiteStore) CountTelemetry(
	ctx context.Context,
	q TelemetryQuery,
) (map[model.TelemetryAction]int, error) {
	query := `
		SELECT action, COUNT(*) AS n FROM notification_telemetry
		WHERE project_id = ? AND user_id = ? AND rule_id = ? AND created_at >= ?`
	args := []interface{}{q.ProjectID, q.UserID, q.RuleID, formatTime(q.Since)}

	if q.RelatedEntityID != "" {
		query += " AND related_entity_id = ?"
		args = append(args, q.RelatedEntityID)
	}
	if len(q.Actions) > 0 {
		actions := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			actions[i] = string(a)
		}
		query += " AND action IN (?)"
		args = append(args, actions)
	}
	query += " GROUP BY action"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding telemetry query: %w", err)
	}

	var rows []struct {
		Action string `db:"action"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("counting telemetry for user %s: %w", q.UserID, err)
	}

	counts := make(map[model.TelemetryAction]int, len(rows))
	for _, r := range rows {
		counts[model.TelemetryAction(r.Action)] = r.N
	}
	return counts, nil
}

type auditRow struct {
	ID         string `db:"id"`
	ProjectID  string `db:"project_id"`
	Action     string `db:"action"`
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
	Details    string `db:"details"`
	CreatedAt  string `db:"created_at"`
}

// AppendAudit writes one audit entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, project_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProjectID, entry.Action, entry.EntityType, entry.EntityID,
		details, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending audit %s for %s: %w", entry.Action, entry.EntityID, err)
	}
	return nil
}

// GetAuditEntries returns every audit entry for entityID, oldest first.
func (s *SQLiteStore) GetAuditEntries(ctx context.Context, entityID string) ([]model.AuditEntry, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, project_id, action, entity_type, entity_id, details, created_at
		FROM audit_log WHERE entity_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries for %s: %w", entityID, err)
	}

	entries := make([]model.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := model.AuditEntry{
			ID:         r.ID,
			ProjectID:  r.ProjectID,
			Action:     r.Action,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
		}
		if err := json.Unmarshal([]byte(r.Details), &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling details for audit %s: %w", r.ID, err)
		}
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", r.ID, err)
		}
		e.CreatedAt = created
		entries = append(entries, e)
	}
	return entries, nil
}
