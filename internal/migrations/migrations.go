package migrations

// GetInitialSchema returns the initial database schema. The schema is applied
// on every open; statements are idempotent.
func GetInitialSchema() string {
	return initialSchema
}

const initialSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'INITIALIZING',
	last_connected_at TIMESTAMP,
	last_disconnected_at TIMESTAMP,
	last_message_at TIMESTAMP,
	last_qr TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS message_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	recipient TEXT NOT NULL,
	body TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 0,
	next_run_at TIMESTAMP,
	last_error TEXT,
	broadcast_id INTEGER,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_message_jobs_client_id ON message_jobs(client_id);
CREATE INDEX IF NOT EXISTS idx_message_jobs_broadcast_id ON message_jobs(broadcast_id);
CREATE INDEX IF NOT EXISTS idx_message_jobs_status ON message_jobs(status);

CREATE TABLE IF NOT EXISTS broadcasts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	name TEXT NOT NULL,
	body TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inbound_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	recipient TEXT,
	body TEXT NOT NULL,
	from_me INTEGER NOT NULL DEFAULT 0,
	ts INTEGER,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_inbound_messages_client_id ON inbound_messages(client_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
