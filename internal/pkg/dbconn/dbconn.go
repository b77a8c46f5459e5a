// Package dbconn owns the process-wide Postgres pool and its connection state.
//
// A Manager replaces module-level "is connected" globals: callers invoke
// EnsureConnected before a run and then share the pool returned by DB.
// A failed ping is retried once after a fixed delay; a second failure is
// reported as a *ConnectionError. Callers that see a store error for which
// IsConnectionLoss is true call MarkDisconnected, so the next run pings again
// before it reads anything.
package dbconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// DefaultRetryDelay is the pause before the single reconnect attempt.
const DefaultRetryDelay = 2 * time.Second

// ConnectionError is returned when the store stays unreachable after the retry.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PoolConfig tunes the underlying *sql.DB.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Manager holds one pool for the lifetime of the process.
type Manager struct {
	db         *sql.DB
	retryDelay time.Duration

	mu        sync.Mutex
	connected bool
}

// Open creates a Manager for dsn. No connection is made until EnsureConnected.
func Open(dsn string, pool PoolConfig, retryDelay time.Duration) (*Manager, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return New(db, retryDelay), nil
}

// New wraps an existing pool.
func New(db *sql.DB, retryDelay time.Duration) *Manager {
	if retryDelay < 0 {
		retryDelay = 0
	}
	return &Manager{db: db, retryDelay: retryDelay}
}

// DB returns the shared pool.
func (m *Manager) DB() *sql.DB { return m.db }

// Connected reports whether the last EnsureConnected succeeded.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// EnsureConnected verifies the pool is reachable. An established connection
// is reused without a round trip.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	err := m.db.PingContext(ctx)
	if err == nil {
		m.connected = true
		logger.Info("database connected")
		return nil
	}

	logger.Warn("database ping failed, retrying", "error", err, "delay", m.retryDelay.String())

	timer := time.NewTimer(m.retryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return &ConnectionError{Attempts: 1, Err: ctx.Err()}
	case <-timer.C:
	}

	if err := m.db.PingContext(ctx); err != nil {
		logger.Error("database retry failed", "error", err)
		return &ConnectionError{Attempts: 2, Err: err}
	}

	m.connected = true
	logger.Info("database connected after retry")
	return nil
}

// MarkDisconnected forces the next EnsureConnected to ping again.
func (m *Manager) MarkDisconnected() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

// IsConnectionLoss reports whether err means the session to the store is gone
// rather than a query being rejected.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Close releases the pool.
func (m *Manager) Close() error {
	m.MarkDisconnected()
	return m.db.Close()
}
