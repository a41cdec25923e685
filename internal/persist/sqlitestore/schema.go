package sqlitestore

const schema = `
CREATE TABLE IF NOT EXISTS node_states (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS property_states (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_property_states_parent ON property_states(parent_id);

CREATE TABLE IF NOT EXISTS node_references (
	target_node_id TEXT NOT NULL,
	property_id    TEXT NOT NULL,
	PRIMARY KEY (target_node_id, property_id)
);

CREATE INDEX IF NOT EXISTS idx_node_references_target ON node_references(target_node_id);
`
