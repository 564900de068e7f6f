package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/coordination/internal/model"
)

// eventRow is the coordination_events row shape.
type eventRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	EventType       string         `db:"event_type"`
	TargetUserID    string         `db:"target_user_id"`
	RelatedEntityID string         `db:"related_entity_id"`
	Severity        string         `db:"severity"`
	Metadata        string         `db:"metadata"`
	OccurredAt      string         `db:"occurred_at"`
	ProcessedAt     sql.NullString `db:"processed_at"`
}

const eventColumns = `id, project_id, event_type, target_user_id, related_entity_id,
	severity, metadata, occurred_at, processed_at`

// CreateEvent appends an event. If the event has no ID, a new UUID is
// generated.
func (s *SQLiteStore) CreateEvent(ctx context.Context, e model.CoordinationEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	meta := e.Metadata
	if meta == nil {
		meta = model.Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata for event %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coordination_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, string(e.Type), e.TargetUserID, e.RelatedEntityID,
		string(e.Severity), string(metaJSON), formatTime(e.OccurredAt), nullTime(e.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("creating event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvents returns the events named in q.EventIDs, or else every
// unprocessed event that occurred at or after q.Since. Results are ordered
// by occurrence, oldest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, q EventQuery) ([]model.CoordinationEvent, error) {
	var conditions []string
	var args []interface{}

	if len(q.EventIDs) > 0 {
		conditions = append(conditions, "id IN (?)")
		args = append(args, q.EventIDs)
	} else {
		conditions = append(conditions, "processed_at IS NULL", "occurred_at >= ?")
		args = append(args, formatTime(q.Since))
	}
	if q.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, q.ProjectID)
	}

	query := "SELECT " + eventColumns + " FROM coordination_events WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY occurred_at ASC, id ASC"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding event query: %w", err)
	}

	return s.selectEvents(ctx, s.db.Rebind(query), args...)
}

// MarkEventProcessed stamps processed_at once; later calls are no-ops.
func (s *SQLiteStore) MarkEventProcessed(ctx context.Context, id string, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE coordination_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL",
		formatTime(processedAt), id,
	)
	if err != nil {
		return fmt.Errorf("marking event %s processed: %w", id, err)
	}
	return nil
}

// GetEntityEvents returns events linked to entityID that occurred at or
// after since, oldest first.
func (s *SQLiteStore) GetEntityEvents(
	ctx context.Context,
	projectID, entityID string,
	since time.Time,
) ([]model.CoordinationEvent, error) {
	return s.selectEvents(ctx, `
		SELECT `+eventColumns+` FROM coordination_events
		WHERE project_id = ? AND related_entity_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC, id ASC`,
		projectID, entityID, formatTime(since),
	)
}

// GetUnprocessedEntityEvents returns events linked to entityID that no
// engine run has processed yet, whenever they occurred, oldest first.
func (s *SQLiteStore) GetUnprocessedEntityEvents(
	ctx context.Context,
	projectID, entityID string,
) ([]model.CoordinationEvent, error) {
	return s.selectEvents(ctx, `
		SELECT `+eventColumns+` FROM coordination_events
		WHERE project_id = ? AND related_entity_id = ? AND processed_at IS NULL
		ORDER BY occurred_at ASC, id ASC`,
		projectID, entityID,
	)
}

// CountUserActivity counts events of the given types that targeted userID
// at or after since.
func (s *SQLiteStore) CountUserActivity(
	ctx context.Context,
	projectID, userID string,
	types []model.EventType,
	since time.Time,
) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query, args, err := sqlx.In(`
		SELECT COUNT(*) FROM coordination_events
		WHERE project_id = ? AND target_user_id = ? AND event_type IN (?) AND occurred_at >= ?`,
		projectID, userID, names, formatTime(since),
	)
	if err != nil {
		return 0, fmt.Errorf("expanding activity query: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("counting activity for user %s: %w", userID, err)
	}
	return count, nil
}

func (s *SQLiteStore) selectEvents(ctx context.Context, query string, args ...interface{}) ([]model.CoordinationEvent, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	events := make([]model.CoordinationEvent, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (r eventRow) toModel() (model.CoordinationEvent, error) {
	e := model.CoordinationEvent{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Type:            model.EventType(r.EventType),
		TargetUserID:    r.TargetUserID,
		RelatedEntityID: r.RelatedEntityID,
		Severity:        model.Severity(r.Severity),
	}

	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
			return model.CoordinationEvent{}, fmt.Errorf("unmarshaling metadata for event %s: %w", r.ID, err)
		}
	}

	occurred, err := parseTime(r.OccurredAt)
	if err != nil {
		return model.CoordinationEvent{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	e.OccurredAt = occurred

	e.ProcessedAt, err = parseNullTime(r.ProcessedAt)
	if err != nil {
		return model.CoordinationEvent{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	return e, nil
}
