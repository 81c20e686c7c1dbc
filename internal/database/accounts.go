package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wagate/internal/models"
)

// EnsureAccount creates the account row with status INITIALIZING if it does
// not exist yet and returns the current row either way.
func (d *Database) EnsureAccount(ctx context.Context, clientID string) (*models.Account, error) {
	err := d.withRetry(ctx, "ensure account", func() error {
		_, execErr := d.db.ExecContext(ctx, insertAccountQuery, clientID, models.AccountStatusInitializing)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return d.GetAccount(ctx, clientID)
}

// GetAccount returns the account for clientID, or nil when none exists.
func (d *Database) GetAccount(ctx context.Context, clientID string) (*models.Account, error) {
	row := d.db.QueryRowContext(ctx, selectAccountQuery, clientID)
	acc, err := d.scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (d *Database) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := d.db.QueryContext(ctx, selectAllAccountsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acc, err := d.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

func (d *Database) UpdateAccountStatus(ctx context.Context, clientID string, status models.AccountStatus) error {
	return d.withRetry(ctx, "update account status", func() error {
		_, err := d.db.ExecContext(ctx, updateAccountStatusQuery, status, clientID)
		return err
	})
}

// SetAccountQR stores a fresh QR payload and moves the account to QR state.
func (d *Database) SetAccountQR(ctx context.Context, clientID, qr string) error {
	encrypted, err := d.encryptor.encrypt(qr)
	if err != nil {
		return fmt.Errorf("failed to encrypt QR payload: %w", err)
	}
	return d.withRetry(ctx, "set account qr", func() error {
		_, err := d.db.ExecContext(ctx, updateAccountQRQuery, models.AccountStatusQR, encrypted, clientID)
		return err
	})
}

// MarkAccountReady records a successful connection: READY status, connect
// timestamp, QR payload cleared.
func (d *Database) MarkAccountReady(ctx context.Context, clientID string, at time.Time) error {
	return d.withRetry(ctx, "mark account ready", func() error {
		_, err := d.db.ExecContext(ctx, updateAccountReadyQuery, models.AccountStatusReady, at, clientID)
		return err
	})
}

func (d *Database) MarkAccountDisconnected(ctx context.Context, clientID string, at time.Time) error {
	return d.withRetry(ctx, "mark account disconnected", func() error {
		_, err := d.db.ExecContext(ctx, updateAccountDisconnectedQuery, models.AccountStatusDisconnected, at, clientID)
		return err
	})
}

// TouchAccountMessage updates the last-message timestamp and flips the
// account back to READY; traffic on the session proves it is alive.
func (d *Database) TouchAccountMessage(ctx context.Context, clientID string, at time.Time) error {
	return d.withRetry(ctx, "touch account message", func() error {
		_, err := d.db.ExecContext(ctx, updateAccountMessageSeenQuery, models.AccountStatusReady, at, clientID)
		return err
	})
}

// ResetAccount upserts the row back to INITIALIZING with the QR cleared,
// ahead of a forced reconnect.
func (d *Database) ResetAccount(ctx context.Context, clientID string) error {
	return d.withRetry(ctx, "reset account", func() error {
		_, err := d.db.ExecContext(ctx, resetAccountQuery, clientID, models.AccountStatusInitializing)
		return err
	})
}

func (d *Database) DeleteAccount(ctx context.Context, clientID string) error {
	return d.withRetry(ctx, "delete account", func() error {
		_, err := d.db.ExecContext(ctx, deleteAccountQuery, clientID)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanAccount(row rowScanner) (*models.Account, error) {
	var acc models.Account
	var lastConnected, lastDisconnected, lastMessage sql.NullTime
	var lastQR sql.NullString

	err := row.Scan(&acc.ID, &acc.ClientID, &acc.Status, &lastConnected,
		&lastDisconnected, &lastMessage, &lastQR, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastConnected.Valid {
		acc.LastConnectedAt = &lastConnected.Time
	}
	if lastDisconnected.Valid {
		acc.LastDisconnectedAt = &lastDisconnected.Time
	}
	if lastMessage.Valid {
		acc.LastMessageAt = &lastMessage.Time
	}
	if lastQR.Valid {
		qr, err := d.encryptor.decrypt(lastQR.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt QR payload: %w", err)
		}
		acc.LastQR = &qr
	}
	return &acc, nil
}
