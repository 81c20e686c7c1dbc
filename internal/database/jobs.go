package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wagate/internal/models"
)

// CreateJob inserts a new queued job and returns its ID. A zero MaxAttempts
// is stored as-is: the worker resolves the ceiling from runtime settings at
// attempt time, so only caller-supplied ceilings are stamped on the row.
func (d *Database) CreateJob(ctx context.Context, job *models.Job) (int64, error) {
	body, err := d.encryptor.encrypt(job.Text)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt job body: %w", err)
	}

	var id int64
	err = d.withRetry(ctx, "create job", func() error {
		res, execErr := d.db.ExecContext(ctx, insertJobQuery,
			job.ClientID, job.To, body, models.JobStatusQueued, 0, job.MaxAttempts, job.BroadcastID)
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

// GetJob returns the job for id, or nil when none exists.
func (d *Database) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := d.db.QueryRowContext(ctx, selectJobQuery, id)
	job, err := d.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (d *Database) MarkJobProcessing(ctx context.Context, id int64) error {
	return d.withRetry(ctx, "mark job processing", func() error {
		_, err := d.db.ExecContext(ctx, updateJobProcessingQuery, models.JobStatusProcessing, id)
		return err
	})
}

func (d *Database) MarkJobSent(ctx context.Context, id int64) error {
	return d.withRetry(ctx, "mark job sent", func() error {
		_, err := d.db.ExecContext(ctx, updateJobSentQuery, models.JobStatusSent, id)
		return err
	})
}

// MarkJobRetry records a failed attempt that still has budget left: the job
// goes back to queued with its next eligible run time set.
func (d *Database) MarkJobRetry(ctx context.Context, id int64, attempts int, lastError string, nextRunAt time.Time) error {
	encrypted, err := d.encryptor.encrypt(lastError)
	if err != nil {
		return fmt.Errorf("failed to encrypt error text: %w", err)
	}
	return d.withRetry(ctx, "mark job retry", func() error {
		_, err := d.db.ExecContext(ctx, updateJobRetryQuery, models.JobStatusQueued, attempts, encrypted, nextRunAt, id)
		return err
	})
}

// MarkJobFailed records a terminal failure at the attempts ceiling.
func (d *Database) MarkJobFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	encrypted, err := d.encryptor.encrypt(lastError)
	if err != nil {
		return fmt.Errorf("failed to encrypt error text: %w", err)
	}
	return d.withRetry(ctx, "mark job failed", func() error {
		_, err := d.db.ExecContext(ctx, updateJobFailedQuery, models.JobStatusFailed, attempts, encrypted, id)
		return err
	})
}

// GetBroadcastStats derives per-status job counts for one broadcast.
func (d *Database) GetBroadcastStats(ctx context.Context, broadcastID int64) (models.BroadcastStats, error) {
	var stats models.BroadcastStats

	rows, err := d.db.QueryContext(ctx, selectBroadcastJobCountsQuery, broadcastID)
	if err != nil {
		return stats, fmt.Errorf("failed to count broadcast jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan broadcast counts: %w", err)
		}
		switch status {
		case models.JobStatusQueued:
			stats.Queued = count
		case models.JobStatusProcessing:
			stats.Processing = count
		case models.JobStatusSent:
			stats.Sent = count
		case models.JobStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (d *Database) scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var body string
	var nextRunAt sql.NullTime
	var lastError sql.NullString
	var broadcastID sql.NullInt64

	err := row.Scan(&job.ID, &job.ClientID, &job.To, &body, &job.Status,
		&job.Attempts, &job.MaxAttempts, &nextRunAt, &lastError, &broadcastID,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.Text, err = d.encryptor.decrypt(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt job body: %w", err)
	}

	if nextRunAt.Valid {
		job.NextRunAt = &nextRunAt.Time
	}
	if lastError.Valid {
		text, err := d.encryptor.decrypt(lastError.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt error text: %w", err)
		}
		job.LastError = &text
	}
	if broadcastID.Valid {
		job.BroadcastID = &broadcastID.Int64
	}
	return &job, nil
}
