package database

import (
	"database/sql"
	"fmt"

	apperrors "wagate/internal/errors"
	"wagate/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite stores for accounts, jobs, broadcasts, inbound
// messages and runtime settings.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to ping database")
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
