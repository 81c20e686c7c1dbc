package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// SetSetting stores a runtime-tunable key/value pair.
func (d *Database) SetSetting(ctx context.Context, key, value string) error {
	return d.withRetry(ctx, "set setting", func() error {
		_, err := d.db.ExecContext(ctx, upsertSettingQuery, key, value)
		return err
	})
}

// GetSetting returns the stored value for key; found is false when the key
// was never set.
func (d *Database) GetSetting(ctx context.Context, key string) (value string, found bool, err error) {
	row := d.db.QueryRowContext(ctx, selectSettingQuery, key)
	err = row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

// GetIntSetting resolves an integer setting with the stored value taking
// precedence over the provided default. Unparseable stored values fall back
// to the default.
func (d *Database) GetIntSetting(ctx context.Context, key string, def int) (int, error) {
	value, found, err := d.GetSetting(ctx, key)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, nil
	}
	return n, nil
}
