package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id             TEXT PRIMARY KEY,
	position       INTEGER NOT NULL,
	type           TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	contract_id    TEXT NOT NULL DEFAULT '',
	reference_type TEXT NOT NULL DEFAULT '',
	timestamp_ns   INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'hidden_unread',
	source         TEXT NOT NULL DEFAULT 'local',
	synced         INTEGER NOT NULL DEFAULT 0 CHECK(synced IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_notifications_position ON notifications(position);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
