package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/coordination/internal/preferences"
)

func prefsCmd(a *app, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write notification preferences",
	}

	var userID string
	get := &cobra.Command{
		Use:   "get",
		Short: "Show a user's preferences (defaults if none saved)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireProject(flags); err != nil {
				return err
			}
			p, err := a.store.GetPreferences(cmd.Context(), flags.projectID, userID)
			if err != nil {
				return err
			}
			if p == nil {
				d := preferences.Defaults(flags.projectID, userID)
				p = &d
			}
			return outputResult(cmd.OutOrStdout(), p, flags.output)
		},
	}
	get.Flags().StringVarP(&userID, "user", "u", "", "User id")
	_ = get.MarkFlagRequired("user")
	cmd.AddCommand(get)

	var (
		setUser  string
		muted    []string
		quiet    string
		tzOffset int
		maxPer   int
		channels []string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Save a user's preferences",
		Long: `Save a user's preferences. Values are clamped to their allowed
ranges and unknown categories are dropped.

Examples:
  coordinator prefs set -p p1 -u u1 --mute STANDUPS --quiet 22-6 --tz 120 --max 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireProject(flags); err != nil {
				return err
			}
			in := preferences.Input{MutedCategories: muted, Channels: channels}
			if quiet != "" {
				start, end, err := parseQuietHours(quiet)
				if err != nil {
					return err
				}
				in.QuietHoursStart, in.QuietHoursEnd = &start, &end
			}
			if cmd.Flags().Changed("tz") {
				in.TimezoneOffsetMinutes = &tzOffset
			}
			if cmd.Flags().Changed("max") {
				in.MaxNudgesPerDay = &maxPer
			}

			p := preferences.Normalize(flags.projectID, setUser, in)
			p.UpdatedAt = time.Now()
			saved, err := a.store.SavePreferences(cmd.Context(), p)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), saved, flags.output)
		},
	}
	set.Flags().StringVarP(&setUser, "user", "u", "", "User id")
	set.Flags().StringSliceVar(&muted, "mute", nil, "Muted categories (BLOCKERS, QUESTIONS, STANDUPS, OVERDUE_ACTIONS)")
	set.Flags().StringVar(&quiet, "quiet", "", "Quiet hours as start-end in local hours, e.g. 22-6")
	set.Flags().IntVar(&tzOffset, "tz", 0, "Timezone offset in minutes east of UTC")
	set.Flags().IntVar(&maxPer, "max", preferences.DefaultNudgesPerDay, "Maximum nudges per day")
	set.Flags().StringSliceVar(&channels, "channel", []string{"IN_APP"}, "Delivery channels")
	_ = set.MarkFlagRequired("user")
	cmd.AddCommand(set)

	return cmd
}

// parseQuietHours reads "start-end".
func parseQuietHours(s string) (int, int, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid quiet hours %q: want start-end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid quiet hours start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid quiet hours end %q: %w", endStr, err)
	}
	return start, end, nil
}
