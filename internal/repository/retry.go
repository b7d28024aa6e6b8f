package repository

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

const (
	retryAttempts    = 5
	retryBaseBackoff = 500 * time.Millisecond
	retryMaxBackoff  = 10 * time.Second
)

// isTransient reports whether a database error is worth retrying. SQLite
// under WAL returns SQLITE_BUSY when a writer holds the lock; Postgres and
// MySQL surface serialization failures and deadlocks similarly.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"deadlock",
		"serialization failure",
		"could not serialize access",
		"try restarting transaction",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to retryAttempts times, backing off exponentially with
// jitter between attempts. Only transient errors are retried; any other error
// is returned immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := retryBaseBackoff
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}

		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}
	return err
}
