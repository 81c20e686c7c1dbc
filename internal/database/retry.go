package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wagate/internal/constants"
	apperrors "wagate/internal/errors"
)

// withRetry executes a write operation with bounded retries for transient
// SQLite failures such as a locked database file.
func (d *Database) withRetry(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultDatabaseBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return apperrors.NewDatabaseError(operationName, err)
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > time.Duration(constants.DefaultDatabaseMaxBackoffMs)*time.Millisecond {
			backoff = time.Duration(constants.DefaultDatabaseMaxBackoffMs) * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return apperrors.NewDatabaseError(operationName, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr))
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	if strings.Contains(errStr, "database is locked") {
		return true
	}
	if strings.Contains(errStr, "disk I/O error") {
		return true
	}
	return false
}
