// Package preferences normalizes per-user notification settings and answers
// the time-window questions the notification gate asks of them.
package preferences

import (
	"time"

	"github.com/nhle/coordination/internal/model"
)

// Bounds applied by Normalize.
const (
	MinTimezoneOffsetMinutes = -720
	MaxTimezoneOffsetMinutes = 840
	MinNudgesPerDay          = 1
	MaxNudgesPerDay          = 20
	DefaultNudgesPerDay      = 5
)

// Input is unvalidated preference data from a settings form or API call.
// Nil fields fall back to defaults.
type Input struct {
	MutedCategories       []string
	QuietHoursStart       *int
	QuietHoursEnd         *int
	TimezoneOffsetMinutes *int
	MaxNudgesPerDay       *int
	Channels              []string
}

// Defaults returns the preferences used when a user has saved none.
func Defaults(projectID, userID string) model.Preferences {
	return model.Preferences{
		ProjectID:       projectID,
		UserID:          userID,
		MutedCategories: []model.Category{},
		MaxNudgesPerDay: DefaultNudgesPerDay,
		Channels:        []model.Channel{model.ChannelInApp},
	}
}

// Normalize turns arbitrary input into a bounded preferences record.
// It never fails: out-of-range values are clamped, unknown values dropped.
func Normalize(projectID, userID string, in Input) model.Preferences {
	p := Defaults(projectID, userID)

	seen := make(map[model.Category]bool)
	for _, raw := range in.MutedCategories {
		c := model.Category(raw)
		if !knownCategory(c) || seen[c] {
			continue
		}
		seen[c] = true
		p.MutedCategories = append(p.MutedCategories, c)
	}

	if in.QuietHoursStart != nil && in.QuietHoursEnd != nil {
		start := clamp(*in.QuietHoursStart, 0, 23)
		end := clamp(*in.QuietHoursEnd, 0, 23)
		if start != end {
			p.QuietHoursStart = &start
			p.QuietHoursEnd = &end
		}
	}

	if in.TimezoneOffsetMinutes != nil {
		p.TimezoneOffsetMinutes = clamp(*in.TimezoneOffsetMinutes,
			MinTimezoneOffsetMinutes, MaxTimezoneOffsetMinutes)
	}

	if in.MaxNudgesPerDay != nil {
		p.MaxNudgesPerDay = clamp(*in.MaxNudgesPerDay, MinNudgesPerDay, MaxNudgesPerDay)
	}

	for _, raw := range in.Channels {
		if model.Channel(raw) == model.ChannelInApp {
			p.Channels = []model.Channel{model.ChannelInApp}
			break
		}
	}

	return p
}

// FromPreferences converts a stored record back into Input so it can be
// re-normalized.
func FromPreferences(p model.Preferences) Input {
	in := Input{
		QuietHoursStart:       p.QuietHoursStart,
		QuietHoursEnd:         p.QuietHoursEnd,
		TimezoneOffsetMinutes: &p.TimezoneOffsetMinutes,
		MaxNudgesPerDay:       &p.MaxNudgesPerDay,
	}
	for _, c := range p.MutedCategories {
		in.MutedCategories = append(in.MutedCategories, string(c))
	}
	for _, ch := range p.Channels {
		in.Channels = append(in.Channels, string(ch))
	}
	return in
}

// IsWithinQuietHours reports whether now falls in the user's quiet window,
// evaluated in the user's local time. Windows may wrap midnight (22 -> 6).
// A missing or empty (start == end) window is never inside.
func IsWithinQuietHours(p model.Preferences, now time.Time) bool {
	if p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}
	return inWindow(*p.QuietHoursStart, *p.QuietHoursEnd, localTime(p, now).Hour())
}

// LocalDayStart returns the UTC instant of the user's most recent local
// midnight.
func LocalDayStart(p model.Preferences, now time.Time) time.Time {
	offset := time.Duration(p.TimezoneOffsetMinutes) * time.Minute
	local := now.UTC().Add(offset)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(-offset)
}

func inWindow(start, end, hour int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

func localTime(p model.Preferences, now time.Time) time.Time {
	return now.UTC().Add(time.Duration(p.TimezoneOffsetMinutes) * time.Minute)
}

func knownCategory(c model.Category) bool {
	for _, known := range model.Categories {
		if c == known {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
