package database

import (
	"context"
	"database/sql"
	"fmt"

	"wagate/internal/models"
)

func (d *Database) SaveInboundMessage(ctx context.Context, msg *models.InboundMessage) error {
	body, err := d.encryptor.encrypt(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to encrypt inbound body: %w", err)
	}

	return d.withRetry(ctx, "save inbound message", func() error {
		_, err := d.db.ExecContext(ctx, insertInboundMessageQuery,
			msg.ClientID, msg.From, msg.To, body, msg.FromMe, msg.Timestamp)
		return err
	})
}

// ListInboundMessages returns the newest inbound rows, optionally filtered by
// client identifier. limit must be positive.
func (d *Database) ListInboundMessages(ctx context.Context, clientID string, limit int) ([]models.InboundMessage, error) {
	rows, err := d.db.QueryContext(ctx, selectInboundMessagesQuery, clientID, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbound messages: %w", err)
	}
	defer rows.Close()

	var messages []models.InboundMessage
	for rows.Next() {
		var msg models.InboundMessage
		var body string
		var recipient sql.NullString
		var ts sql.NullInt64

		if err := rows.Scan(&msg.ID, &msg.ClientID, &msg.From, &recipient, &body,
			&msg.FromMe, &ts, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inbound message: %w", err)
		}

		msg.Body, err = d.encryptor.decrypt(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt inbound body: %w", err)
		}
		if recipient.Valid {
			msg.To = &recipient.String
		}
		if ts.Valid {
			msg.Timestamp = &ts.Int64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
