package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/sync"
)

func runCmd(a *app, flags *globalFlags) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process, sweep and deliver on a schedule",
		Long: `Run the coordination pipeline every scheduler.interval_sec seconds until
interrupted. With --once a single pass runs and its result is printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner := sync.New(a.engine, a.gate, sync.Options{
				ProjectID:           flags.projectID,
				Interval:            time.Duration(a.cfg.Scheduler.IntervalSec) * time.Second,
				DeliveriesPerMinute: a.cfg.Scheduler.DeliveriesPerMinute,
			}, a.logger)

			if once {
				res, err := runner.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return outputResult(cmd.OutOrStdout(), res, flags.output)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("coordinator running",
				zap.String("version", version),
				zap.String("project_id", flags.projectID),
				zap.Int("interval_sec", a.cfg.Scheduler.IntervalSec),
			)
			runner.Start(ctx)
			<-ctx.Done()
			runner.Stop()

			if ctx.Err() == context.Canceled {
				a.logger.Info("coordinator stopped")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}
