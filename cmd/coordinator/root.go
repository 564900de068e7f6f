package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nhle/coordination/internal/coordination"
	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/notify"
	"github.com/nhle/coordination/internal/rules"
	"github.com/nhle/coordination/internal/store"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dbPath     string
	projectID  string
	output     string
}

// app is the wiring built once per invocation.
type app struct {
	cfg    *model.AppConfig
	logger *zap.Logger
	store  *store.SQLiteStore
	engine *coordination.Engine
	gate   *notify.Gate
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Run and inspect the coordination nudge engine",
		Long: `coordinator records coordination events, turns them into escalation
triggers, and delivers in-app nudges subject to user preferences.

Configuration is read from ~/.config/coordinator/config.yaml and
COORDINATOR_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVarP(&flags.projectID, "project", "p", "", "Project id")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(recordCmd(a, flags))
	root.AddCommand(processCmd(a, flags))
	root.AddCommand(sweepCmd(a, flags))
	root.AddCommand(notifyCmd(a, flags))
	root.AddCommand(telemetryCmd(a, flags))
	root.AddCommand(prefsCmd(a, flags))
	root.AddCommand(triggersCmd(a, flags))
	root.AddCommand(runCmd(a, flags))
	root.AddCommand(configCmd(flags))

	return root
}

func (a *app) open(flags *globalFlags) error {
	cfg, err := model.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", cfg.Database.Path, err)
	}

	catalog := rules.DefaultCatalog().WithCooldowns(cfg.Rules.CooldownMinutes)

	a.cfg = cfg
	a.logger = logger
	a.store = s
	a.engine = coordination.NewEngine(s, catalog, logger,
		coordination.WithLookback(hours(cfg.Engine.LookbackHours)))
	a.gate = notify.NewGate(s, catalog, notify.ConfigFromApp(cfg.Gate), logger)
	return nil
}

func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// buildLogger creates the zap logger selected by the log config.
func buildLogger(c model.LogConfig) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if c.Development {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", c.Level, err)
		}
		logConfig.Level = level
	}

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func requireProject(flags *globalFlags) error {
	if flags.projectID == "" {
		return fmt.Errorf("--project is required")
	}
	return nil
}
