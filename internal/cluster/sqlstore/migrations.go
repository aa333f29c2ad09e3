package sqlstore

// migrationsSQL is the embedded schema, applied statement by statement on
// open. Statements must stay idempotent.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS clusters (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	merged_into TEXT NOT NULL DEFAULT '',
	overall REAL NOT NULL DEFAULT 0,
	jurisdiction TEXT NOT NULL DEFAULT '',
	event_date TEXT NOT NULL DEFAULT '',
	canonical TEXT NOT NULL DEFAULT '{}',
	sar TEXT NOT NULL DEFAULT '[]',
	coords TEXT NOT NULL DEFAULT '',
	report TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_clusters_status ON clusters(status);

CREATE INDEX IF NOT EXISTS idx_clusters_event_date ON clusters(event_date);

CREATE TABLE IF NOT EXISTS members (
	cluster_id TEXT NOT NULL REFERENCES clusters(id),
	url_key TEXT NOT NULL,
	document TEXT NOT NULL,
	record TEXT NOT NULL,
	PRIMARY KEY (cluster_id, url_key)
);

CREATE INDEX IF NOT EXISTS idx_members_url_key ON members(url_key)
`
