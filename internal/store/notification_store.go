package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/coordination/internal/model"
)

type notificationRow struct {
	ID              string `db:"id"`
	ProjectID       string `db:"project_id"`
	UserID          string `db:"user_id"`
	TriggerID       string `db:"trigger_id"`
	Type            string `db:"type"`
	Severity        string `db:"severity"`
	Title           string `db:"title"`
	Body            string `db:"body"`
	RelatedEntityID string `db:"related_entity_id"`
	Context         string `db:"context"`
	Read            int    `db:"read"`
	CreatedAt       string `db:"created_at"`
}

const notificationColumns = `id, project_id, user_id, trigger_id, type, severity,
	title, body, related_entity_id, context, read, created_at`

// DeliverNotification marks n's trigger SENT, stores n and appends audit in
// one transaction. It returns ErrTriggerNotPending without writing anything
// if the trigger has already left PENDING.
func (s *SQLiteStore) DeliverNotification(
	ctx context.Context,
	n model.Notification,
	audit model.AuditEntry,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	contextJSON, err := json.Marshal(n.Context)
	if err != nil {
		return fmt.Errorf("marshaling context for notification %s: %w", n.ID, err)
	}
	detailsJSON, err := marshalDetails(audit.Details)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delivery of trigger %s: %w", n.TriggerID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `
		UPDATE coordination_triggers SET status = 'SENT', updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		formatTime(n.CreatedAt), n.TriggerID,
	)
	if err != nil {
		return fmt.Errorf("marking trigger %s sent: %w", n.TriggerID, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking trigger %s sent: %w", n.TriggerID, err)
	}
	if changed == 0 {
		return fmt.Errorf("trigger %s: %w", n.TriggerID, ErrTriggerNotPending)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProjectID, n.UserID, n.TriggerID, n.Type, string(n.Severity),
		n.Title, n.Body, n.RelatedEntityID, string(contextJSON), boolToInt(n.Read),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting notification for trigger %s: %w", n.TriggerID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, project_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.ProjectID, audit.Action, audit.EntityType, audit.EntityID,
		detailsJSON, formatTime(audit.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("auditing delivery of trigger %s: %w", n.TriggerID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delivery of trigger %s: %w", n.TriggerID, err)
	}
	return nil
}

// CountNotificationsSince counts nudges delivered to userID at or after since.
func (s *SQLiteStore) CountNotificationsSince(
	ctx context.Context,
	projectID, userID string,
	since time.Time,
) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications
		WHERE project_id = ? AND user_id = ? AND type = ? AND created_at >= ?`,
		projectID, userID, model.NotificationTypeNudge, formatTime(since),
	)
	if err != nil {
		return 0, fmt.Errorf("counting notifications for user %s: %w", userID, err)
	}
	return count, nil
}

// GetUnreadNotifications returns a user's unread nudges, newest first.
func (s *SQLiteStore) GetUnreadNotifications(
	ctx context.Context,
	projectID, userID string,
) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE project_id = ? AND user_id = ? AND read = 0
		ORDER BY created_at DESC, rowid DESC`,
		projectID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications for user %s: %w", userID, err)
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkNotificationRead marks a notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		UserID:          r.UserID,
		TriggerID:       r.TriggerID,
		Type:            r.Type,
		Severity:        model.Severity(r.Severity),
		Title:           r.Title,
		Body:            r.Body,
		RelatedEntityID: r.RelatedEntityID,
		Read:            r.Read != 0,
	}
	if r.Context != "" {
		if err := json.Unmarshal([]byte(r.Context), &n.Context); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling context for notification %s: %w", r.ID, err)
		}
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("notification %s: %w", r.ID, err)
	}
	n.CreatedAt = created
	return n, nil
}

func marshalDetails(details map[string]any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("marshaling audit details: %w", err)
	}
	return string(b), nil
}
