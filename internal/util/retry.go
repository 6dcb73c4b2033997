package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DatabaseRetryOptions returns retry options tuned for transient overlay
// storage errors (SQLite busy/locked), matching treemount's overlay writer.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry options tuned for overlay storage errors.
func Retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn, DatabaseRetryOptions(ctx)...)
}

// RetryWithResult executes fn with retry options tuned for overlay storage
// errors and returns its result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, DatabaseRetryOptions(ctx)...)
}

// IsDatabaseLocked returns true if err indicates a transient SQLite lock.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
