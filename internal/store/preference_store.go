package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/preferences"
)

type preferenceRow struct {
	ProjectID             string        `db:"project_id"`
	UserID                string        `db:"user_id"`
	MutedCategories       string        `db:"muted_categories"`
	QuietHoursStart       sql.NullInt64 `db:"quiet_hours_start"`
	QuietHoursEnd         sql.NullInt64 `db:"quiet_hours_end"`
	TimezoneOffsetMinutes int           `db:"timezone_offset_minutes"`
	MaxNudgesPerDay       int           `db:"max_nudges_per_day"`
	Channels              string        `db:"channels"`
	UpdatedAt             string        `db:"updated_at"`
}

// GetPreferences returns the stored preferences, or nil if the user has
// never saved any.
func (s *SQLiteStore) GetPreferences(
	ctx context.Context,
	projectID, userID string,
) (*model.Preferences, error) {
	var row preferenceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT project_id, user_id, muted_categories, quiet_hours_start, quiet_hours_end,
			timezone_offset_minutes, max_nudges_per_day, channels, updated_at
		FROM coordination_preferences
		WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting preferences for user %s: %w", userID, err)
	}

	p := model.Preferences{
		ProjectID:             row.ProjectID,
		UserID:                row.UserID,
		TimezoneOffsetMinutes: row.TimezoneOffsetMinutes,
		MaxNudgesPerDay:       row.MaxNudgesPerDay,
	}
	if err := json.Unmarshal([]byte(row.MutedCategories), &p.MutedCategories); err != nil {
		return nil, fmt.Errorf("unmarshaling muted categories for user %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(row.Channels), &p.Channels); err != nil {
		return nil, fmt.Errorf("unmarshaling channels for user %s: %w", userID, err)
	}
	p.QuietHoursStart = nullInt(row.QuietHoursStart)
	p.QuietHoursEnd = nullInt(row.QuietHoursEnd)

	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("preferences for user %s: %w", userID, err)
	}
	p.UpdatedAt = updated
	return &p, nil
}

// SavePreferences normalizes p and upserts it, returning what was stored.
func (s *SQLiteStore) SavePreferences(ctx context.Context, p model.Preferences) (model.Preferences, error) {
	normalized := preferences.Normalize(p.ProjectID, p.UserID, preferences.FromPreferences(p))
	normalized.UpdatedAt = p.UpdatedAt.UTC()

	muted, err := json.Marshal(normalized.MutedCategories)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("marshaling muted categories: %w", err)
	}
	channels, err := json.Marshal(normalized.Channels)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("marshaling channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coordination_preferences (
			project_id, user_id, muted_categories, quiet_hours_start, quiet_hours_end,
			timezone_offset_minutes, max_nudges_per_day, channels, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET
			muted_categories = excluded.muted_categories,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end = excluded.quiet_hours_end,
			timezone_offset_minutes = excluded.timezone_offset_minutes,
			max_nudges_per_day = excluded.max_nudges_per_day,
			channels = excluded.channels,
			updated_at = excluded.updated_at`,
		normalized.ProjectID, normalized.UserID, string(muted),
		toNullInt(normalized.QuietHoursStart), toNullInt(normalized.QuietHoursEnd),
		normalized.TimezoneOffsetMinutes, normalized.MaxNudgesPerDay, string(channels),
		formatTime(normalized.UpdatedAt),
	)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("saving preferences for user %s: %w", p.UserID, err)
	}
	return normalized, nil
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
