package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/coordination/internal/coordination"
	"github.com/nhle/coordination/internal/model"
)

func recordCmd(a *app, flags *globalFlags) *cobra.Command {
	var (
		eventType string
		userID    string
		entityID  string
		severity  string
		meta      []string
		occurred  string
		noProcess bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a coordination event",
		Long: `Record a coordination event and, unless --no-process is given,
evaluate it immediately.

Metadata values are parsed as numbers or booleans when possible.

Examples:
  coordinator record -p p1 --type blocker --user u1 --entity issue-1 \
      --severity HIGH --meta blockerDays=3
  coordinator record -p p1 --type interaction --user u1 --entity action-7 \
      --meta actionStatus=DONE`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireProject(flags); err != nil {
				return err
			}
			m, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			in := coordination.RecordInput{
				ProjectID:       flags.projectID,
				EventType:       model.EventType(eventType),
				TargetUserID:    userID,
				RelatedEntityID: entityID,
				Severity:        model.Severity(strings.ToUpper(severity)),
				Metadata:        m,
			}
			if occurred != "" {
				in.OccurredAt, err = time.Parse(time.RFC3339, occurred)
				if err != nil {
					return fmt.Errorf("parsing --occurred: %w", err)
				}
			}
			if noProcess {
				process := false
				in.ProcessImmediately = &process
			}

			res, err := a.engine.RecordCoordinationEvent(cmd.Context(), in)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, flags.output)
		},
	}

	cmd.Flags().StringVarP(&eventType, "type", "t", "", "Event type")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Target user id")
	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "Related entity id")
	cmd.Flags().StringVarP(&severity, "severity", "s", "", "Severity: LOW, MEDIUM, HIGH")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "Metadata key=value (repeatable)")
	cmd.Flags().StringVar(&occurred, "occurred", "", "Occurrence time (RFC3339), defaults to now")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Store the event without evaluating it")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func processCmd(a *app, flags *globalFlags) *cobra.Command {
	var eventIDs []string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Evaluate unprocessed events",
		Long: `Evaluate the given events, or every unprocessed event inside the
lookback window when no --event is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.engine.ProcessCoordinationEvents(cmd.Context(), coordination.ProcessOptions{
				EventIDs:  eventIDs,
				ProjectID: flags.projectID,
			})
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, flags.output)
		},
	}

	cmd.Flags().StringSliceVar(&eventIDs, "event", nil, "Event ids to (re)process")
	return cmd
}

func sweepCmd(a *app, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate open triggers for elapsed time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.engine.RunScheduledCoordinationSweep(cmd.Context(), flags.projectID)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, flags.output)
		},
	}
}

// parseMetadata turns key=value pairs into event metadata. Values that
// parse as numbers or booleans are stored as such.
func parseMetadata(pairs []string) (model.Metadata, error) {
	m := model.Metadata{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: want key=value", pair)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			m[key] = f
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			m[key] = b
			continue
		}
		m[key] = value
	}
	return m, nil
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}
