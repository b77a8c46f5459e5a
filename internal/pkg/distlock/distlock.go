// Package distlock keeps two sweep processes from dispatching the same
// scheduled send. Redis is preferred; Postgres advisory locks are the fallback.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ErrNotHeld is returned when releasing a lock that was never acquired.
var ErrNotHeld = errors.New("distlock: lock not held")

// DistLock is the interface for distributed locking.
// A single instance must not be shared across goroutines.
type DistLock interface {
	// Acquire tries to take the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose hold expires on its own.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// KeepAlive extends lock every ttl/2 until the returned stop is called.
// Locks without an expiry get a no-op stop.
func KeepAlive(ctx context.Context, lock DistLock, ttl time.Duration) (stop func()) {
	ext, ok := lock.(Extender)
	interval := ttl / 2
	if !ok || interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := ext.Extend(ctx, ttl)
			if err == nil || ctx.Err() != nil {
				continue
			}
			logger.Warn("extend lock failed", "error", err)
			if errors.Is(err, ErrNotHeld) {
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Factory creates per-key locks on the configured backend.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
}

// NewFactory prefers redisClient when non-nil, otherwise Postgres.
func NewFactory(redisClient *redis.Client, db *sql.DB) *Factory {
	return &Factory{redis: redisClient, db: db}
}

// NewLock creates a lock for key. ttl only applies to the Redis backend;
// advisory locks live as long as their session.
func (f *Factory) NewLock(key string, ttl time.Duration) DistLock {
	if f.redis != nil {
		return NewRedisLock(f.redis, key, ttl)
	}
	return NewPGAdvisoryLock(f.db, key)
}

// PGAdvisoryLock holds pg_try_advisory_lock on a pinned connection, since
// advisory locks belong to the session that took them.
type PGAdvisoryLock struct {
	db     *sql.DB
	key    string
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, key: key, lockID: int64(h.Sum64())}
}

// Acquire implements DistLock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock %s: %w", l.key, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %s: %w", l.key, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release implements DistLock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrNotHeld
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("advisory unlock %s: %w", l.key, err)
	}
	return nil
}
