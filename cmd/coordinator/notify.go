package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/notify"
	"github.com/nhle/coordination/internal/store"
)

func notifyCmd(a *app, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Deliver and inspect nudges",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "deliver",
		Short: "Run every pending trigger through the notification gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.gate.DeliverPending(cmd.Context(), flags.projectID, nil)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, flags.output)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "trigger <trigger-id>",
		Short: "Run one trigger through the notification gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.GetTriggerByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.gate.CreateNotificationForTrigger(cmd.Context(), *t)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, flags.output)
		},
	})

	var userID string
	unread := &cobra.Command{
		Use:   "unread",
		Short: "List a user's unread nudges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireProject(flags); err != nil {
				return err
			}
			notifications, err := a.store.GetUnreadNotifications(cmd.Context(), flags.projectID, userID)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), notifications, flags.output)
		},
	}
	unread.Flags().StringVarP(&userID, "user", "u", "", "User id")
	_ = unread.MarkFlagRequired("user")
	cmd.AddCommand(unread)

	return cmd
}

func telemetryCmd(a *app, flags *globalFlags) *cobra.Command {
	var in notify.TelemetryInput

	cmd := &cobra.Command{
		Use:       "telemetry <viewed|resolved|dismissed>",
		Short:     "Record what a user did with a nudge",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"viewed", "resolved", "dismissed"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Action = model.TelemetryAction(args[0])
			in.ProjectID = flags.projectID
			ev, err := a.gate.EmitNotificationTelemetry(cmd.Context(), in)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), ev, flags.output)
		},
	}

	cmd.Flags().StringVar(&in.TriggerID, "trigger", "", "Trigger id")
	cmd.Flags().StringVar(&in.NotificationID, "notification", "", "Notification id")
	cmd.Flags().StringVarP(&in.UserID, "user", "u", "", "User id (defaults to the trigger target)")
	_ = cmd.MarkFlagRequired("trigger")

	return cmd
}

func triggersCmd(a *app, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Inspect triggers",
	}

	var (
		statuses []string
		limit    int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List triggers, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := store.TriggerFilter{ProjectID: flags.projectID, Limit: limit}
			for _, s := range statuses {
				st := model.TriggerStatus(s)
				switch st {
				case model.TriggerPending, model.TriggerSent, model.TriggerDismissed, model.TriggerResolved:
				default:
					return fmt.Errorf("unknown status %q", s)
				}
				f.Statuses = append(f.Statuses, st)
			}
			triggers, err := a.store.ListTriggers(cmd.Context(), f)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), triggers, flags.output)
		},
	}
	list.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (PENDING, SENT, DISMISSED, RESOLVED)")
	list.Flags().IntVar(&limit, "limit", 0, "Maximum number of triggers")
	cmd.AddCommand(list)

	var ruleIDs []string
	resolve := &cobra.Command{
		Use:   "resolve <entity-id>",
		Short: "Resolve the open triggers of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(flags); err != nil {
				return err
			}
			n, err := a.engine.ResolveTriggersForEntity(cmd.Context(), flags.projectID, args[0], ruleIDs)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), map[string]int{"resolved": n}, flags.output)
		},
	}
	resolve.Flags().StringSliceVar(&ruleIDs, "rule", nil, "Only resolve these rule ids")
	cmd.AddCommand(resolve)

	cmd.AddCommand(&cobra.Command{
		Use:   "audit <trigger-id>",
		Short: "Show the audit trail of a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.store.GetAuditEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), entries, flags.output)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List the rule catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []ruleInfo
			for _, r := range a.engine.Catalog().Rules() {
				out = append(out, ruleInfo{
					ID:              r.ID,
					Event:           string(r.TriggerEvent),
					Category:        string(r.Category),
					CooldownMinutes: int(r.Cooldown.Minutes()),
					Notifiable:      r.Notifiable,
					Description:     r.Description,
				})
			}
			return outputResult(cmd.OutOrStdout(), out, flags.output)
		},
	})

	return cmd
}

type ruleInfo struct {
	ID              string `json:"id"`
	Event           string `json:"event"`
	Category        string `json:"category"`
	CooldownMinutes int    `json:"cooldown_minutes"`
	Notifiable      bool   `json:"notifiable"`
	Description     string `json:"description"`
}
