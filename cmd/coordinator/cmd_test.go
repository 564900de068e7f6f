package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/notify"
)

// testEnv points the CLI at a fresh database and a config path that does
// not exist, so every invocation runs on defaults.
type testEnv struct {
	config string
	db     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return testEnv{
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "coordination.db"),
	}
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e testEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := e.run(t, append(args, "-o", "json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

// ---------------------------------------------------------------------------
// command constructors
// ---------------------------------------------------------------------------

func TestRootCmd(t *testing.T) {
	root := newRootCmd()

	assert.Equal(t, "coordinator", root.Use)
	assert.NotEmpty(t, root.Long)

	for _, name := range []string{"config", "db", "project", "output"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "p", root.PersistentFlags().Lookup("project").Shorthand)
	assert.Equal(t, "table", root.PersistentFlags().Lookup("output").DefValue)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"record", "process", "sweep", "notify", "telemetry", "prefs", "triggers", "run", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestRecordCmd(t *testing.T) {
	cmd := recordCmd(&app{}, &globalFlags{})

	assert.Equal(t, "record", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.RunE)

	meta := cmd.Flags().Lookup("meta")
	require.NotNil(t, meta)
	assert.Equal(t, "m", meta.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("no-process"))
	assert.NotNil(t, cmd.Flags().Lookup("occurred"))
}

func TestRunCmd(t *testing.T) {
	cmd := runCmd(&app{}, &globalFlags{})

	assert.Equal(t, "run", cmd.Use)
	once := cmd.Flags().Lookup("once")
	require.NotNil(t, once)
	assert.Equal(t, "false", once.DefValue)
}

// ---------------------------------------------------------------------------
// parsers
// ---------------------------------------------------------------------------

func TestParseMetadata(t *testing.T) {
	m, err := parseMetadata([]string{"blockerDays=3", "resolved=false", "status=DONE", "note=a=b"})
	require.NoError(t, err)

	assert.Equal(t, 3.0, m["blockerDays"])
	assert.Equal(t, false, m["resolved"])
	assert.Equal(t, "DONE", m["status"])
	assert.Equal(t, "a=b", m["note"])

	days, ok := m.Number(model.MetaBlockerDays)
	assert.True(t, ok)
	assert.Equal(t, 3.0, days)
}

func TestParseMetadata_Invalid(t *testing.T) {
	for _, in := range []string{"novalue", "=3"} {
		_, err := parseMetadata([]string{in})
		assert.Error(t, err, in)
	}
}

func TestParseQuietHours(t *testing.T) {
	start, end, err := parseQuietHours("22-6")
	require.NoError(t, err)
	assert.Equal(t, 22, start)
	assert.Equal(t, 6, end)

	_, _, err = parseQuietHours("22")
	assert.Error(t, err)
	_, _, err = parseQuietHours("x-6")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// output
// ---------------------------------------------------------------------------

func TestOutputResult_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	res := &notify.DeliveryResult{Evaluated: 2, Sent: 1, Suppressed: map[notify.Reason]int{notify.ReasonQuietHours: 1}}
	require.NoError(t, outputResult(&buf, res, "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["evaluated"])
	assert.Equal(t, 1, got["sent"])
}

func TestOutputResult_Table(t *testing.T) {
	var buf bytes.Buffer
	res := &notify.DeliveryResult{Evaluated: 1, Suppressed: map[notify.Reason]int{notify.ReasonDailyCap: 1}}
	require.NoError(t, outputResult(&buf, res, "table"))

	assert.Contains(t, buf.String(), "Evaluated:")
	assert.Contains(t, buf.String(), "Suppressed (daily cap):")
}

// ---------------------------------------------------------------------------
// end to end
// ---------------------------------------------------------------------------

func TestRecordDeliverAndTelemetry(t *testing.T) {
	env := newTestEnv(t)

	var rec struct {
		Event   model.CoordinationEvent `json:"event"`
		Process struct {
			Created  int             `json:"created"`
			Triggers []model.Trigger `json:"triggers"`
		} `json:"process"`
	}
	env.runJSON(t, &rec, "record", "-p", "p1",
		"--type", "blocker", "--user", "u1", "--entity", "issue-1",
		"--severity", "high", "--meta", "blockerDays=3")

	assert.Equal(t, model.EventBlocker, rec.Event.Type)
	assert.NotEmpty(t, rec.Event.ID)
	require.Equal(t, 1, rec.Process.Created)
	trigger := rec.Process.Triggers[0]
	assert.Equal(t, "blocker-escalation", trigger.RuleID)
	assert.Equal(t, 2, trigger.EscalationLevel)

	var delivered notify.DeliveryResult
	env.runJSON(t, &delivered, "notify", "deliver", "-p", "p1")
	assert.Equal(t, 1, delivered.Evaluated)
	assert.Equal(t, 1, delivered.Sent)

	var unread []model.Notification
	env.runJSON(t, &unread, "notify", "unread", "-p", "p1", "-u", "u1")
	require.Len(t, unread, 1)
	assert.Equal(t, trigger.ID, unread[0].TriggerID)

	var audit []model.AuditEntry
	env.runJSON(t, &audit, "triggers", "audit", trigger.ID)
	require.Len(t, audit, 1)
	assert.Equal(t, notify.AuditActionNotificationCreated, audit[0].Action)

	var ev model.TelemetryEvent
	env.runJSON(t, &ev, "telemetry", "dismissed", "--trigger", trigger.ID, "--notification", unread[0].ID)
	assert.Equal(t, model.TelemetryDismissed, ev.Action)
	assert.Equal(t, "u1", ev.UserID)

	var dismissed []model.Trigger
	env.runJSON(t, &dismissed, "triggers", "list", "-p", "p1", "--status", "DISMISSED")
	require.Len(t, dismissed, 1)
	assert.Equal(t, trigger.ID, dismissed[0].ID)
}

func TestRecordNoProcess(t *testing.T) {
	env := newTestEnv(t)

	var rec struct {
		Event   model.CoordinationEvent `json:"event"`
		Process *json.RawMessage        `json:"process"`
	}
	env.runJSON(t, &rec, "record", "-p", "p1", "--type", "missing_standup",
		"--user", "u1", "--meta", "missingDays=2", "--no-process")
	assert.Nil(t, rec.Event.ProcessedAt)
	assert.Nil(t, rec.Process)

	var processed struct {
		Events  int `json:"events"`
		Created int `json:"created"`
	}
	env.runJSON(t, &processed, "process", "-p", "p1")
	assert.Equal(t, 1, processed.Events)
	assert.Equal(t, 1, processed.Created)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "record", "-p", "p1", "--type", "nonsense")
	assert.Error(t, err)
}

func TestRecordRequiresProject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "record", "--type", "blocker")
	assert.ErrorContains(t, err, "--project is required")
}

func TestPrefsSetAndGet(t *testing.T) {
	env := newTestEnv(t)

	var saved model.Preferences
	env.runJSON(t, &saved, "prefs", "set", "-p", "p1", "-u", "u1",
		"--mute", "STANDUPS,NOPE", "--quiet", "22-6", "--tz", "2000", "--max", "0")
	assert.Equal(t, []model.Category{model.CategoryStandups}, saved.MutedCategories)
	assert.Equal(t, 840, saved.TimezoneOffsetMinutes)
	assert.Equal(t, 1, saved.MaxNudgesPerDay)
	require.NotNil(t, saved.QuietHoursStart)
	assert.Equal(t, 22, *saved.QuietHoursStart)

	var got model.Preferences
	env.runJSON(t, &got, "prefs", "get", "-p", "p1", "-u", "u1")
	assert.Equal(t, saved.MutedCategories, got.MutedCategories)
	assert.Equal(t, 1, got.MaxNudgesPerDay)

	var defaults model.Preferences
	env.runJSON(t, &defaults, "prefs", "get", "-p", "p1", "-u", "someone-else")
	assert.Equal(t, 5, defaults.MaxNudgesPerDay)
	assert.Nil(t, defaults.QuietHoursStart)
}

func TestRunOnce(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "record", "-p", "p1", "--type", "blocker", "--user", "u1",
		"--entity", "issue-9", "--severity", "HIGH", "--meta", "blockerDays=2", "--no-process")
	require.NoError(t, err)

	var res struct {
		Process struct {
			Created int `json:"created"`
		} `json:"process"`
		Deliver struct {
			Sent int `json:"sent"`
		} `json:"deliver"`
	}
	env.runJSON(t, &res, "run", "--once", "-p", "p1")
	assert.Equal(t, 1, res.Process.Created)
	assert.Equal(t, 1, res.Deliver.Sent)
}

func TestConfigInitAndShow(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, env.config)
	_, err = os.Stat(env.config)
	require.NoError(t, err)

	_, err = env.run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = env.run(t, "config", "show")
	require.NoError(t, err)
	var cfg model.AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, env.db, cfg.Database.Path)
	assert.Equal(t, 72, cfg.Engine.LookbackHours)
}
