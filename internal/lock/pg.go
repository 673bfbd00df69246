package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"
)

// PGAdvisoryLocker implements core.KeyLocker with session-scoped Postgres
// advisory locks. Each held key pins one pool connection until released.
type PGAdvisoryLocker struct {
	db   *sql.DB
	wait time.Duration
}

// NewPGAdvisoryLocker creates an advisory-lock locker.
func NewPGAdvisoryLocker(db *sql.DB, wait time.Duration) *PGAdvisoryLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &PGAdvisoryLocker{db: db, wait: wait}
}

// LockID maps a key to the advisory lock id.
func LockID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Lock polls pg_try_advisory_lock until the key is acquired.
func (l *PGAdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	id := LockID(key)
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock conn: %w", err)
	}

	deadline := time.Now().Add(l.wait)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
			conn.Close()
			return nil, fmt.Errorf("advisory lock %s: %w", key, err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return func() {
		defer conn.Close()
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
			slog.Warn("release advisory lock", "key", key, "error", err)
		}
	}, nil
}
