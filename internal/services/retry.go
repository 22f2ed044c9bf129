package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// isContention reports whether err is SQLite lock contention
func isContention(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// isUniqueViolation reports whether err is a storage-level uniqueness rejection
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withRetry runs op, retrying lock contention with exponential backoff up to
// attempts times. Other errors are returned at once. Exhausted retries
// surface as ErrStoreBusy.
func withRetry(ctx context.Context, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op()
		if lastErr != nil && !isContention(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))

	if err != nil && isContention(lastErr) {
		return errors.Join(ErrStoreBusy, lastErr)
	}
	return err
}
