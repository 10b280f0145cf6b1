package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create monitoring tables",
		SQL: `
			CREATE TABLE settings (
				id             INTEGER PRIMARY KEY CHECK (id = 1),
				webhook_url    TEXT NOT NULL DEFAULT '',
				webhook_secret TEXT NOT NULL DEFAULT ''
			);
			INSERT INTO settings (id) VALUES (1);

			CREATE TABLE monitored_groups (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				identifier     TEXT NOT NULL UNIQUE,
				name           TEXT NOT NULL,
				logo_path      TEXT NOT NULL DEFAULT '',
				webhook_url    TEXT NOT NULL DEFAULT '',
				webhook_secret TEXT NOT NULL DEFAULT '',
				created_at     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE keywords (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				text TEXT NOT NULL UNIQUE
			);

			CREATE TABLE keyword_groups (
				keyword_id INTEGER NOT NULL REFERENCES keywords(id) ON DELETE CASCADE,
				group_id   INTEGER NOT NULL REFERENCES monitored_groups(id) ON DELETE CASCADE,
				PRIMARY KEY (keyword_id, group_id)
			);

			CREATE TABLE matched_messages (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				group_name      TEXT NOT NULL,
				content         TEXT NOT NULL,
				sender          TEXT NOT NULL DEFAULT '',
				matched_keyword TEXT NOT NULL,
				message_date    TEXT NOT NULL
			);

			CREATE INDEX idx_matched_date ON matched_messages (message_date);
			CREATE INDEX idx_matched_group ON matched_messages (group_name);
		`,
	},
	{
		Version: 2,
		Name:    "create export tasks",
		SQL: `
			CREATE TABLE export_tasks (
				id               TEXT PRIMARY KEY,
				group_identifier TEXT NOT NULL,
				group_name       TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'pending',
				file_path        TEXT NOT NULL DEFAULT '',
				log              TEXT NOT NULL DEFAULT '',
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_export_status ON export_tasks (status);
		`,
	},
}
