// Package database holds the punishment store: a backend contract with an
// embedded SQLite implementation and a pooled MySQL implementation, and
// the Manager that translates domain operations into queries against it.
// The Manager is the only component that touches the tables; event
// handlers and moderation commands all go through it.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrStoreUnavailable means the backing engine could not be reached
	// or initialized. It is fatal to startup and is not retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPoolExhausted means no pooled connection became available within
	// the configured wait. Transient; surfaced to the caller's future.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPersistence means a read or write failed after a session was
	// obtained. Surfaced, never retried automatically.
	ErrPersistence = errors.New("persistence failure")
)

// Backend provides sessions against a SQL engine and guarantees table
// existence before first use. Exactly two implementations exist: the
// embedded SQLite engine and the pooled MySQL engine. Configuration picks
// one at construction; it is never switched at runtime.
type Backend interface {
	// Connect opens the engine and creates the punishment and player-IP
	// tables if absent. Idempotent.
	Connect() error

	// Acquire returns a connection good for one unit of work. The caller
	// must Close it on every exit path so pool slots are never leaked.
	Acquire(ctx context.Context) (*sqlx.Conn, error)

	// Healthy is a best-effort liveness probe. It returns false on any
	// failure and is used only for status reporting.
	Healthy(ctx context.Context) bool

	// Dialect names the SQL dialect ("sqlite3" or "mysql") for the few
	// statements that differ between engines.
	Dialect() string

	// Close releases the pool or handles. Safe to call multiple times.
	Close() error
}

func storeErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, errors.Join(ErrPersistence, err))
}
