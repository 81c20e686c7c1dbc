package database

// Account queries
const (
	insertAccountQuery = `
		INSERT INTO accounts (client_id, status)
		VALUES (?, ?)
		ON CONFLICT(client_id) DO NOTHING
	`

	selectAccountQuery = `
		SELECT id, client_id, status, last_connected_at, last_disconnected_at,
			   last_message_at, last_qr, created_at, updated_at
		FROM accounts
		WHERE client_id = ?
	`

	selectAllAccountsQuery = `
		SELECT id, client_id, status, last_connected_at, last_disconnected_at,
			   last_message_at, last_qr, created_at, updated_at
		FROM accounts
		ORDER BY id ASC
	`

	updateAccountStatusQuery = `
		UPDATE accounts
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE client_id = ?
	`

	updateAccountQRQuery = `
		UPDATE accounts
		SET status = ?, last_qr = ?, updated_at = CURRENT_TIMESTAMP
		WHERE client_id = ?
	`

	updateAccountReadyQuery = `
		UPDATE accounts
		SET status = ?, last_connected_at = ?, last_qr = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE client_id = ?
	`

	updateAccountDisconnectedQuery = `
		UPDATE accounts
		SET status = ?, last_disconnected_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE client_id = ?
	`

	updateAccountMessageSeenQuery = `
		UPDATE accounts
		SET status = ?, last_message_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE client_id = ?
	`

	resetAccountQuery = `
		INSERT INTO accounts (client_id, status)
		VALUES (?, ?)
		ON CONFLICT(client_id) DO UPDATE
		SET status = excluded.status, last_qr = NULL, updated_at = CURRENT_TIMESTAMP
	`

	deleteAccountQuery = `DELETE FROM accounts WHERE client_id = ?`
)

// Message job queries
const (
	insertJobQuery = `
		INSERT INTO message_jobs (client_id, recipient, body, status, attempts, max_attempts, broadcast_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectJobQuery = `
		SELECT id, client_id, recipient, body, status, attempts, max_attempts,
			   next_run_at, last_error, broadcast_id, created_at, updated_at
		FROM message_jobs
		WHERE id = ?
	`

	updateJobProcessingQuery = `
		UPDATE message_jobs
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	updateJobSentQuery = `
		UPDATE message_jobs
		SET status = ?, last_error = NULL, next_run_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	updateJobRetryQuery = `
		UPDATE message_jobs
		SET status = ?, attempts = ?, last_error = ?, next_run_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	updateJobFailedQuery = `
		UPDATE message_jobs
		SET status = ?, attempts = ?, last_error = ?, next_run_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	selectBroadcastJobCountsQuery = `
		SELECT status, COUNT(*)
		FROM message_jobs
		WHERE broadcast_id = ?
		GROUP BY status
	`
)

// Broadcast queries
const (
	insertBroadcastQuery = `
		INSERT INTO broadcasts (client_id, name, body, status)
		VALUES (?, ?, ?, ?)
	`

	selectBroadcastQuery = `
		SELECT id, client_id, name, body, status, created_at, updated_at
		FROM broadcasts
		WHERE id = ?
	`

	updateBroadcastStatusQuery = `
		UPDATE broadcasts
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
)

// Inbound message queries
const (
	insertInboundMessageQuery = `
		INSERT INTO inbound_messages (client_id, sender, recipient, body, from_me, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectInboundMessagesQuery = `
		SELECT id, client_id, sender, recipient, body, from_me, ts, created_at
		FROM inbound_messages
		WHERE (? = '' OR client_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`
)

// Settings queries
const (
	upsertSettingQuery = `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE
		SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`

	selectSettingQuery = `SELECT value FROM settings WHERE key = ?`
)
