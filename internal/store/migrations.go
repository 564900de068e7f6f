package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// Timestamps are fixed-width UTC TEXT (see timeLayout) so range predicates
// compare lexically.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS coordination_events (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	event_type        TEXT NOT NULL,
	target_user_id    TEXT NOT NULL DEFAULT '',
	related_entity_id TEXT NOT NULL DEFAULT '',
	severity          TEXT NOT NULL DEFAULT '',
	metadata          TEXT NOT NULL DEFAULT '{}',
	occurred_at       TEXT NOT NULL,
	processed_at      TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_unprocessed
	ON coordination_events(processed_at, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_entity
	ON coordination_events(project_id, related_entity_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_user_type
	ON coordination_events(project_id, target_user_id, event_type, occurred_at);

CREATE TABLE IF NOT EXISTS coordination_triggers (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	rule_id           TEXT NOT NULL,
	target_user_id    TEXT NOT NULL,
	related_entity_id TEXT NOT NULL DEFAULT '',
	severity          TEXT NOT NULL,
	escalation_level  INTEGER NOT NULL CHECK(escalation_level BETWEEN 1 AND 3),
	dedup_key         TEXT NOT NULL,
	origin            TEXT NOT NULL DEFAULT '{}',
	status            TEXT NOT NULL DEFAULT 'PENDING'
		CHECK(status IN ('PENDING', 'SENT', 'DISMISSED', 'RESOLVED')),
	created_at        TEXT NOT NULL,
	resolved_at       TEXT,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_triggers_dedup
	ON coordination_triggers(project_id, dedup_key, created_at);
CREATE INDEX IF NOT EXISTS idx_triggers_status
	ON coordination_triggers(status, project_id);
CREATE INDEX IF NOT EXISTS idx_triggers_entity
	ON coordination_triggers(project_id, related_entity_id, status);

CREATE TABLE IF NOT EXISTS notifications (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	trigger_id        TEXT NOT NULL REFERENCES coordination_triggers(id),
	type              TEXT NOT NULL,
	severity          TEXT NOT NULL,
	title             TEXT NOT NULL,
	body              TEXT NOT NULL,
	related_entity_id TEXT NOT NULL DEFAULT '',
	context           TEXT NOT NULL DEFAULT '{}',
	read              INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created
	ON notifications(project_id, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_trigger_id
	ON notifications(trigger_id);

CREATE TABLE IF NOT EXISTS coordination_preferences (
	project_id              TEXT NOT NULL,
	user_id                 TEXT NOT NULL,
	muted_categories        TEXT NOT NULL DEFAULT '[]',
	quiet_hours_start       INTEGER,
	quiet_hours_end         INTEGER,
	timezone_offset_minutes INTEGER NOT NULL DEFAULT 0,
	max_nudges_per_day      INTEGER NOT NULL DEFAULT 5,
	channels                TEXT NOT NULL DEFAULT '["IN_APP"]',
	updated_at              TEXT NOT NULL,
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS notification_telemetry (
	id                TEXT PRIMARY KEY,
	action            TEXT NOT NULL CHECK(action IN ('viewed', 'resolved', 'dismissed')),
	project_id        TEXT NOT NULL,
	notification_id   TEXT NOT NULL DEFAULT '',
	trigger_id        TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	rule_id           TEXT NOT NULL,
	related_entity_id TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telemetry_user_rule
	ON notification_telemetry(project_id, user_id, rule_id, action, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	details     TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
