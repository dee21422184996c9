package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS punishments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    punished_uuid TEXT NULL,
    punished_name TEXT NULL,
    punished_ip TEXT NULL,
    moderator_uuid TEXT,
    moderator_name TEXT NOT NULL,
    type TEXT NOT NULL,
    reason TEXT NOT NULL,
    ban_time INTEGER NOT NULL,
    expire_time INTEGER NOT NULL,
    active BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_punished_uuid ON punishments (punished_uuid, type, active);
CREATE INDEX IF NOT EXISTS idx_punished_ip ON punishments (punished_ip, type, active);
CREATE INDEX IF NOT EXISTS idx_active_type ON punishments (active, type);
CREATE TABLE IF NOT EXISTS player_ips (
    player_uuid TEXT PRIMARY KEY,
    ip_address TEXT NOT NULL,
    last_seen INTEGER NOT NULL
);`

// SQLiteBackend is the embedded single-file engine. There is no pool
// contention to manage: database/sql opens cheap per-call file handles,
// serialized by SQLite's own busy timeout.
type SQLiteBackend struct {
	path string
	log  *zap.SugaredLogger

	mu sync.Mutex
	db *sqlx.DB
}

// NewSQLiteBackend points the backend at a database file; the file and
// its parent directory are created on Connect.
func NewSQLiteBackend(path string, log *zap.SugaredLogger) *SQLiteBackend {
	return &SQLiteBackend{path: path, log: log}
}

// Connect opens the database file and ensures the tables exist.
func (b *SQLiteBackend) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", errors.Join(ErrStoreUnavailable, err))
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", b.path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", errors.Join(ErrStoreUnavailable, err))
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create sqlite tables: %w", errors.Join(ErrStoreUnavailable, err))
	}

	b.db = db
	b.log.Infow("sqlite store ready", "path", b.path)
	return nil
}

// Acquire hands out a connection; the caller closes it when done.
func (b *SQLiteBackend) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	b.mu.Lock()
	db := b.db
	b.mu.Unlock()
	if db == nil {
		return nil, ErrStoreUnavailable
	}
	return db.Connx(ctx)
}

// Healthy pings the database file.
func (b *SQLiteBackend) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	db := b.db
	b.mu.Unlock()
	if db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return db.PingContext(ctx) == nil
}

// Dialect names the engine for dialect-specific statements.
func (b *SQLiteBackend) Dialect() string { return "sqlite3" }

// Close releases the file handles. Safe to call multiple times.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
