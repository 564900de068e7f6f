package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// EngineConfig tunes the trigger lifecycle engine.
type EngineConfig struct {
	// LookbackHours bounds the unprocessed-event scan.
	LookbackHours int `mapstructure:"lookback_hours" yaml:"lookback_hours"`
}

// GateConfig tunes the notification gate.
type GateConfig struct {
	ActivityWindowMinutes  int     `mapstructure:"activity_window_minutes" yaml:"activity_window_minutes"`
	DismissalCooldownHours int     `mapstructure:"dismissal_cooldown_hours" yaml:"dismissal_cooldown_hours"`
	QualityWindowDays      int     `mapstructure:"quality_window_days" yaml:"quality_window_days"`
	QualityMinSamples      int     `mapstructure:"quality_min_samples" yaml:"quality_min_samples"`
	DismissalRateThreshold float64 `mapstructure:"dismissal_rate_threshold" yaml:"dismissal_rate_threshold"`

	// EvidenceURLFormat is a fmt pattern taking the project id and the
	// related entity id.
	EvidenceURLFormat string `mapstructure:"evidence_url_format" yaml:"evidence_url_format"`
}

// RulesConfig overrides catalog settings per rule id.
type RulesConfig struct {
	CooldownMinutes map[string]int `mapstructure:"cooldown_minutes" yaml:"cooldown_minutes"`
}

// SchedulerConfig drives the periodic runner.
type SchedulerConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// DeliveriesPerMinute paces gate evaluations per project.
	DeliveriesPerMinute int `mapstructure:"deliveries_per_minute" yaml:"deliveries_per_minute"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Gate      GateConfig      `mapstructure:"gate" yaml:"gate"`
	Rules     RulesConfig     `mapstructure:"rules" yaml:"rules"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/coordinator/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "coordinator", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "coordinator.db")
	}
	return filepath.Join(home, ".config", "coordinator", "coordinator.db")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Engine:   EngineConfig{LookbackHours: 72},
		Gate: GateConfig{
			ActivityWindowMinutes:  30,
			DismissalCooldownHours: 24,
			QualityWindowDays:      14,
			QualityMinSamples:      10,
			DismissalRateThreshold: 0.45,
			EvidenceURLFormat:      "/projects/%s/entities/%s",
		},
		Rules: RulesConfig{CooldownMinutes: map[string]int{}},
		Scheduler: SchedulerConfig{
			IntervalSec:         300,
			DeliveriesPerMinute: 120,
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("engine.lookback_hours", d.Engine.LookbackHours)
	v.SetDefault("gate.activity_window_minutes", d.Gate.ActivityWindowMinutes)
	v.SetDefault("gate.dismissal_cooldown_hours", d.Gate.DismissalCooldownHours)
	v.SetDefault("gate.quality_window_days", d.Gate.QualityWindowDays)
	v.SetDefault("gate.quality_min_samples", d.Gate.QualityMinSamples)
	v.SetDefault("gate.dismissal_rate_threshold", d.Gate.DismissalRateThreshold)
	v.SetDefault("gate.evidence_url_format", d.Gate.EvidenceURLFormat)
	v.SetDefault("scheduler.interval_sec", d.Scheduler.IntervalSec)
	v.SetDefault("scheduler.deliveries_per_minute", d.Scheduler.DeliveriesPerMinute)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with COORDINATOR_ override file values
// (COORDINATOR_DATABASE_PATH, COORDINATOR_LOG_LEVEL, ...). If the file does
// not exist, defaults plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COORDINATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Rules.CooldownMinutes == nil {
		cfg.Rules.CooldownMinutes = map[string]int{}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("engine", cfg.Engine)
	v.Set("gate", cfg.Gate)
	v.Set("rules", cfg.Rules)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
