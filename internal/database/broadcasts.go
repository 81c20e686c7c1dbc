package database

import (
	"context"
	"database/sql"
	"fmt"

	"wagate/internal/models"
)

func (d *Database) CreateBroadcast(ctx context.Context, b *models.Broadcast) (int64, error) {
	body, err := d.encryptor.encrypt(b.Text)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt broadcast body: %w", err)
	}

	var id int64
	err = d.withRetry(ctx, "create broadcast", func() error {
		res, execErr := d.db.ExecContext(ctx, insertBroadcastQuery,
			b.ClientID, b.Name, body, models.BroadcastStatusQueued)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetBroadcast returns the broadcast for id, or nil when none exists.
func (d *Database) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	var b models.Broadcast
	var body string

	row := d.db.QueryRowContext(ctx, selectBroadcastQuery, id)
	err := row.Scan(&b.ID, &b.ClientID, &b.Name, &body, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}

	b.Text, err = d.encryptor.decrypt(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt broadcast body: %w", err)
	}
	return &b, nil
}

func (d *Database) UpdateBroadcastStatus(ctx context.Context, id int64, status models.BroadcastStatus) error {
	return d.withRetry(ctx, "update broadcast status", func() error {
		_, err := d.db.ExecContext(ctx, updateBroadcastStatusQuery, status, id)
		return err
	})
}
