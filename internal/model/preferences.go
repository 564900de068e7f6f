package model

import "time"

// Category groups rules for muting purposes.
type Category string

const (
	CategoryBlockers       Category = "BLOCKERS"
	CategoryQuestions      Category = "QUESTIONS"
	CategoryStandups       Category = "STANDUPS"
	CategoryOverdueActions Category = "OVERDUE_ACTIONS"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryBlockers, CategoryQuestions, CategoryStandups, CategoryOverdueActions,
}

// Channel is a delivery channel a user may enable.
type Channel string

// ChannelInApp is the only channel the engine delivers to.
const ChannelInApp Channel = "IN_APP"

// Preferences are a user's notification settings within one project.
type Preferences struct {
	ProjectID       string     `json:"project_id"`
	UserID          string     `json:"user_id"`
	MutedCategories []Category `json:"muted_categories"`

	// QuietHoursStart and QuietHoursEnd are local hours (0-23). Both nil
	// disables quiet hours.
	QuietHoursStart *int `json:"quiet_hours_start"`
	QuietHoursEnd   *int `json:"quiet_hours_end"`

	TimezoneOffsetMinutes int       `json:"timezone_offset_minutes"`
	MaxNudgesPerDay       int       `json:"max_nudges_per_day"`
	Channels              []Channel `json:"channels"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsMuted reports whether c is in the muted set.
func (p Preferences) IsMuted(c Category) bool {
	for _, m := range p.MutedCategories {
		if m == c {
			return true
		}
	}
	return false
}

// HasChannel reports whether ch is enabled.
func (p Preferences) HasChannel(ch Channel) bool {
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}
