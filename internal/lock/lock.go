// Package lock serializes duplicate-key lookups and inserts across import
// sessions. Every locker satisfies core.KeyLocker.
//
// Redis is preferred when several server instances share a database. The
// Postgres advisory lock is the fallback when Redis is not configured, and
// KeyMutex covers single-process deployments and the CLI.
package lock

import (
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/medimport/internal/core"
)

// ErrLockTimeout is returned when a key stays locked longer than the wait.
var ErrLockTimeout = errors.New("timed out waiting for key lock")

// DefaultWait is how long Lock waits for a busy key.
const DefaultWait = 5 * time.Second

// retryInterval is the polling delay for lockers without blocking acquire.
const retryInterval = 25 * time.Millisecond

// New returns the best locker for the available backends.
func New(client *redis.Client, db *sql.DB, ttl time.Duration) core.KeyLocker {
	if client != nil {
		return NewRedisLocker(client, ttl, DefaultWait)
	}
	if db != nil {
		return NewPGAdvisoryLocker(db, DefaultWait)
	}
	return NewKeyMutex()
}
